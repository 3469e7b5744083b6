// Package main is the entrypoint for the cluster-supervisor (binary name "supervisor" in Docker).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/morezero/cluster-supervisor/internal/config"
	"github.com/morezero/cluster-supervisor/internal/server"
	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/client"
	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/db"
	"github.com/morezero/cluster-supervisor/pkg/dispatcher"
	"github.com/morezero/cluster-supervisor/pkg/transport"
)

const usage = `Usage: supervisor [command]
       supervisor serve                 Start the supervisor (discovery sockets, HTTP, optional COMMS and journal).
       supervisor query                 List every registered component over TCP.
       supervisor find <type> [udp]     Look up instances of a component type (TCP unless "udp").
       supervisor look <addr> [type]    Probe a component's liveness (default type: supervisor).
       supervisor migrate up            Run journal migrations.
       supervisor migrate down          Revert the latest applied journal migration.
       supervisor migrate status        Show migration status.
       supervisor ensure-db [name]      Create database if missing (default name: supervisor_test). Uses DATABASE_URL host/user.
       supervisor clear                 Truncate the component journal; schema is preserved.

Commands:
  serve           (default) Start the cluster supervisor.
  query           Bulk query of the registry, printed as JSON.
  find            Targeted address lookup by type name (e.g. cellapp or CellApp).
  look            Liveness probe; for the supervisor itself use its internal address.
  migrate         Journal migrations (up, down, status).
  ensure-db       Create database (e.g. supervisor_test) on same host as DATABASE_URL.
  clear           Truncate journal data.

Environment: SUPERVISOR_UDP_ADDR, SUPERVISOR_TCP_ADDR, SUPERVISOR_INTERNAL_ADDR, SUPERVISOR_COMPONENTS_FILE,
COMMS_URL, DATABASE_URL (migrate, ensure-db, clear), MIGRATION_PATH, LOG_LEVEL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "query":
		if err := runQuery(); err != nil {
			log.Fatalf("supervisor query: %v", err)
		}
		return
	case "find":
		if len(args) < 2 {
			log.Fatalf("supervisor find: require component type")
		}
		kind := transport.KindTCP
		if len(args) > 2 && strings.EqualFold(args[2], "udp") {
			kind = transport.KindUDP
		}
		if err := runFind(args[1], kind); err != nil {
			log.Fatalf("supervisor find: %v", err)
		}
		return
	case "look":
		if len(args) < 2 {
			log.Fatalf("supervisor look: require address")
		}
		typeName := "supervisor"
		if len(args) > 2 {
			typeName = args[2]
		}
		if err := runLook(args[1], typeName); err != nil {
			log.Fatalf("supervisor look: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("supervisor migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up", "down", "status":
			if err := runMigrate(sub); err != nil {
				log.Fatalf("supervisor migrate %s: %v", sub, err)
			}
		default:
			log.Fatalf("supervisor migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("supervisor clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "supervisor_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("supervisor ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("supervisor: %v", err)
	}
}

// newClient targets the configured sockets. Wildcard hosts become loopback.
func newClient() (*client.Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	udp, err := dialable(cfg.UDPAddr)
	if err != nil {
		return nil, fmt.Errorf("SUPERVISOR_UDP_ADDR: %w", err)
	}
	tcp, err := dialable(cfg.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("SUPERVISOR_TCP_ADDR: %w", err)
	}
	return client.New(client.Options{
		UDPAddr: udp,
		TCPAddr: tcp,
		Identity: component.Info{
			Type:     component.Console,
			ID:       component.ID(os.Getpid()),
			Username: os.Getenv("USER"),
		},
		Timeout: cfg.RequestTimeout,
	}), nil
}

func dialable(s string) (addr.AppAddr, error) {
	a, err := addr.Parse(s)
	if err != nil {
		return addr.NoAddr, err
	}
	if ip := net.ParseIP(a.Host); a.Host == "" || (ip != nil && ip.IsUnspecified()) {
		a.Host = "127.0.0.1"
	}
	return a, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runQuery() error {
	c, err := newClient()
	if err != nil {
		return err
	}
	res := c.QueryAll(context.Background())
	if !res.Success {
		return fmt.Errorf("%s", res.Text)
	}
	views := dispatcher.ViewsOf(res.Value)
	return printJSON(dispatcher.ListResult{Components: views, Count: len(views)})
}

func runFind(typeName string, kind transport.Kind) error {
	t, err := component.ParseType(typeName)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	res := c.FindAddress(context.Background(), t, kind)
	if !res.Success {
		return fmt.Errorf("%s", res.Text)
	}
	if len(res.Value) == 0 {
		fmt.Printf("No %s registered.\n", t)
		return nil
	}
	views := dispatcher.ViewsOf(res.Value)
	return printJSON(dispatcher.ListResult{Components: views, Count: len(views)})
}

func runLook(target, typeName string) error {
	t, err := component.ParseType(typeName)
	if err != nil {
		return err
	}
	dest, err := dialable(target)
	if err != nil {
		return fmt.Errorf("address %q: %w", target, err)
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	res := c.Liveness(context.Background(), t, dest)
	if !res.Success {
		return fmt.Errorf("%s", res.Text)
	}
	fmt.Println(res.Value)
	return nil
}

func runMigrate(sub string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	switch sub {
	case "status":
		states, err := db.MigrationStatus(ctx, pool, migrations)
		if err != nil {
			return err
		}
		for _, st := range states {
			mark := "pending"
			if st.Applied {
				mark = "applied"
			}
			fmt.Printf("%-8s %s\n", mark, st.Version)
		}
		return nil
	case "down":
		version, err := db.MigrationDown(ctx, pool, migrations)
		if err != nil {
			return err
		}
		if version == "" {
			fmt.Println("Nothing to roll back.")
			return nil
		}
		fmt.Printf("Reverted %s\n", version)
		return nil
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearJournal(ctx, pool); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Replace path with target database name; query (e.g. sslmode) is kept on u.RawQuery.
	u.Path = "/" + dbName
	if err := db.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}
