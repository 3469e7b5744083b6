package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

const migrationsLogPrefix = "db:migrations"

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// ErrNoDownMigration means the latest applied migration ships no .down.sql.
var ErrNoDownMigration = errors.New("db: migration has no down step")

// Migration is one versioned step of the journal schema, read from
// <version>.up.sql and <version>.down.sql. A bare <version>.sql is up-only.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// MigrationState reports whether one migration is recorded as applied.
type MigrationState struct {
	Version string
	Applied bool
}

// Migrator is the subset of *pgxpool.Pool the migration steps use.
type Migrator interface {
	Execer
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const ledgerDDL = `CREATE TABLE IF NOT EXISTS journal_migrations (
    version TEXT        PRIMARY KEY,
    applied TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	appliedSQL = `SELECT EXISTS (SELECT 1 FROM journal_migrations WHERE version = $1)`
	recordSQL  = `INSERT INTO journal_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`
	latestSQL  = `SELECT version FROM journal_migrations ORDER BY version DESC LIMIT 1`
	forgetSQL  = `DELETE FROM journal_migrations WHERE version = $1`
)

// LoadMigrations reads the up and down steps in dir, ordered by version.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	byVersion := map[string]*Migration{}
	hasUp := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, path, err)
		}

		version, down := strings.TrimSuffix(name, ".sql"), false
		switch {
		case strings.HasSuffix(name, downSuffix):
			version, down = strings.TrimSuffix(name, downSuffix), true
		case strings.HasSuffix(name, upSuffix):
			version = strings.TrimSuffix(name, upSuffix)
		}
		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version}
			byVersion[version] = m
		}
		if down {
			m.Down = string(data)
			continue
		}
		if hasUp[version] {
			return nil, fmt.Errorf("%s - %s: more than one up step", migrationsLogPrefix, version)
		}
		hasUp[version] = true
		m.Up = string(data)
	}

	out := make([]Migration, 0, len(byVersion))
	for version, m := range byVersion {
		if !hasUp[version] {
			return nil, fmt.Errorf("%s - %s: down step without up step", migrationsLogPrefix, version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	slog.Info(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// RunMigrations applies every migration not yet recorded in the ledger, in order.
func RunMigrations(ctx context.Context, db Migrator, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", migrationsLogPrefix, len(migrations)))
	if _, err := db.Exec(ctx, ledgerDDL); err != nil {
		return fmt.Errorf("%s - create ledger: %w", migrationsLogPrefix, err)
	}

	applied := 0
	for _, m := range migrations {
		done, err := isApplied(ctx, db, m.Version)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if _, err := db.Exec(ctx, m.Up); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Version, err)
		}
		if _, err := db.Exec(ctx, recordSQL, m.Version); err != nil {
			return fmt.Errorf("%s - record %s: %w", migrationsLogPrefix, m.Version, err)
		}
		applied++
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete, %d applied", migrationsLogPrefix, applied))
	return nil
}

// MigrationStatus reports, per migration, whether the ledger records it.
func MigrationStatus(ctx context.Context, db Migrator, migrations []Migration) ([]MigrationState, error) {
	if _, err := db.Exec(ctx, ledgerDDL); err != nil {
		return nil, fmt.Errorf("%s - create ledger: %w", migrationsLogPrefix, err)
	}
	out := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		done, err := isApplied(ctx, db, m.Version)
		if err != nil {
			return nil, err
		}
		out = append(out, MigrationState{Version: m.Version, Applied: done})
	}
	return out, nil
}

// MigrationDown reverts the latest applied migration and returns its
// version, or "" when nothing is applied.
func MigrationDown(ctx context.Context, db Migrator, migrations []Migration) (string, error) {
	if _, err := db.Exec(ctx, ledgerDDL); err != nil {
		return "", fmt.Errorf("%s - create ledger: %w", migrationsLogPrefix, err)
	}

	var version string
	err := db.QueryRow(ctx, latestSQL).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		slog.Info(fmt.Sprintf("%s - Nothing to roll back", migrationsLogPrefix))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s - read ledger: %w", migrationsLogPrefix, err)
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == version {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("%s - applied migration %s is not in the migration dir", migrationsLogPrefix, version)
	}
	if strings.TrimSpace(target.Down) == "" {
		return "", fmt.Errorf("%s - %s: %w", migrationsLogPrefix, version, ErrNoDownMigration)
	}

	if _, err := db.Exec(ctx, target.Down); err != nil {
		return "", fmt.Errorf("%s - revert %s failed: %w", migrationsLogPrefix, version, err)
	}
	if _, err := db.Exec(ctx, forgetSQL, version); err != nil {
		return "", fmt.Errorf("%s - forget %s: %w", migrationsLogPrefix, version, err)
	}
	slog.Info(fmt.Sprintf("%s - Reverted %s", migrationsLogPrefix, version))
	return version, nil
}

func isApplied(ctx context.Context, db Migrator, version string) (bool, error) {
	var done bool
	if err := db.QueryRow(ctx, appliedSQL, version).Scan(&done); err != nil {
		return false, fmt.Errorf("%s - check %s: %w", migrationsLogPrefix, version, err)
	}
	return done, nil
}
