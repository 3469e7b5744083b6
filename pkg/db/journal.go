package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/morezero/cluster-supervisor/pkg/events"
)

const journalLogPrefix = "db:journal"

const insertEventSQL = `INSERT INTO component_events
	(action, component_type, type_code, component_id, replaced_id, username,
	 internal_addr, external_addr, version, revision, supervisor, occurred)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Execer is the subset of *pgxpool.Pool the journal writes through.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Journal appends component change events to the component_events table.
// It implements events.EventPublisher; rows are never read back into the
// registry.
type Journal struct {
	db         Execer
	supervisor string
}

var _ events.EventPublisher = (*Journal)(nil)

// NewJournal creates a Journal. supervisor tags every row with the writing
// process, e.g. its service name.
func NewJournal(db Execer, supervisor string) *Journal {
	return &Journal{db: db, supervisor: supervisor}
}

// PublishChanged records one change event.
func (j *Journal) PublishChanged(ctx context.Context, event *events.ComponentChangedEvent) error {
	occurred, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	if err != nil {
		occurred = time.Now().UTC()
	}
	var replaced *int64
	if event.ReplacedID != nil {
		v := int64(*event.ReplacedID)
		replaced = &v
	}

	_, err = j.db.Exec(ctx, insertEventSQL,
		event.Action, event.ComponentType, event.TypeCode, int64(event.ComponentID), replaced,
		event.Username, event.InternalAddr, event.ExternalAddr, event.Version,
		event.Revision, j.supervisor, occurred,
	)
	if err != nil {
		return fmt.Errorf("%s - failed to record %s %s/%d: %w", journalLogPrefix, event.Action, event.ComponentType, event.ComponentID, err)
	}
	slog.Debug(fmt.Sprintf("%s - recorded %s %s/%d rev=%d", journalLogPrefix, event.Action, event.ComponentType, event.ComponentID, event.Revision))
	return nil
}
