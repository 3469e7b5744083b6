package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/morezero/cluster-supervisor/pkg/events"
)

const journalTestPrefix = "db:journal_test"

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestJournal_PublishChanged(t *testing.T) {
	fake := &fakeExecer{}
	j := NewJournal(fake, "supervisor-a")
	replaced := uint64(3)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := j.PublishChanged(context.Background(), &events.ComponentChangedEvent{
		Action:        events.ActionReplaced,
		ComponentType: "dbmgr",
		TypeCode:      1,
		ComponentID:   4,
		ReplacedID:    &replaced,
		Username:      "kbe",
		InternalAddr:  "10.0.0.1:30001",
		Revision:      9,
		Timestamp:     ts.Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatalf("%s - PublishChanged: %v", journalTestPrefix, err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("%s - expected 1 insert, got %d", journalTestPrefix, len(fake.calls))
	}
	call := fake.calls[0]
	if !strings.HasPrefix(call.sql, "INSERT INTO component_events") {
		t.Errorf("%s - unexpected sql %q", journalTestPrefix, call.sql)
	}
	if len(call.args) != 12 {
		t.Fatalf("%s - expected 12 args, got %d", journalTestPrefix, len(call.args))
	}
	if call.args[0] != events.ActionReplaced || call.args[3] != int64(4) {
		t.Errorf("%s - unexpected action/id args %v", journalTestPrefix, call.args[:4])
	}
	if got, ok := call.args[4].(*int64); !ok || got == nil || *got != 3 {
		t.Errorf("%s - expected replaced id 3, got %v", journalTestPrefix, call.args[4])
	}
	if call.args[10] != "supervisor-a" {
		t.Errorf("%s - expected supervisor tag, got %v", journalTestPrefix, call.args[10])
	}
	if got := call.args[11].(time.Time); !got.Equal(ts) {
		t.Errorf("%s - expected occurred %v, got %v", journalTestPrefix, ts, got)
	}
}

func TestJournal_NoReplacedID(t *testing.T) {
	fake := &fakeExecer{}
	j := NewJournal(fake, "")
	if err := j.PublishChanged(context.Background(), &events.ComponentChangedEvent{
		Action:      events.ActionRegistered,
		ComponentID: 2,
		Timestamp:   "not-a-time",
	}); err != nil {
		t.Fatalf("%s - PublishChanged: %v", journalTestPrefix, err)
	}
	if got := fake.calls[0].args[4].(*int64); got != nil {
		t.Errorf("%s - expected nil replaced id, got %v", journalTestPrefix, *got)
	}
	if _, ok := fake.calls[0].args[11].(time.Time); !ok {
		t.Errorf("%s - expected a fallback timestamp", journalTestPrefix)
	}
}

func TestJournal_ExecError(t *testing.T) {
	boom := errors.New("connection refused")
	j := NewJournal(&fakeExecer{err: boom}, "")
	err := j.PublishChanged(context.Background(), &events.ComponentChangedEvent{Action: events.ActionDeregistered})
	if !errors.Is(err, boom) {
		t.Errorf("%s - expected wrapped exec error, got %v", journalTestPrefix, err)
	}
}

func TestClearJournal(t *testing.T) {
	fake := &fakeExecer{}
	if err := ClearJournal(context.Background(), fake); err != nil {
		t.Fatalf("%s - ClearJournal: %v", journalTestPrefix, err)
	}
	if !strings.Contains(fake.calls[0].sql, "TRUNCATE TABLE component_events") {
		t.Errorf("%s - unexpected sql %q", journalTestPrefix, fake.calls[0].sql)
	}
}
