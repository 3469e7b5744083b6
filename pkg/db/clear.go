package db

import (
	"context"
	"fmt"
	"log/slog"
)

const clearLogPrefix = "db:clear"

// ClearJournal truncates the component event journal. Schema is preserved;
// RESTART IDENTITY resets the id sequence.
func ClearJournal(ctx context.Context, db Execer) error {
	slog.Info(fmt.Sprintf("%s - Clearing component journal", clearLogPrefix))

	if _, err := db.Exec(ctx, `TRUNCATE TABLE component_events RESTART IDENTITY`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Component journal cleared", clearLogPrefix))
	return nil
}
