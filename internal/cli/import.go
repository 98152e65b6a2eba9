package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"cookietrail/services/recorder/internal/knowledge"
	"cookietrail/services/recorder/internal/store"
)

// referenceWriter is the part of the Postgres store an import needs.
type referenceWriter interface {
	Health(ctx context.Context) error
	EnsureReferenceTable(ctx context.Context, table string) error
	ReplaceReferenceRows(ctx context.Context, table string, rows []store.ReferenceRow) (store.ImportResult, error)
}

// Execute implements the go-flags Commander interface for ImportKBCommand.
func (c *ImportKBCommand) Execute(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), secondsOr(c.TimeoutSeconds, time.Minute))
	defer cancel()

	src, err := knowledge.Resolve(ctx, c.From, sourceOptions(c.fs, c.Table))
	if err != nil {
		return err
	}
	defer src.Close()

	db, err := store.NewPostgres(ctx, c.To)
	if err != nil {
		return fmt.Errorf("connect destination database: %w", err)
	}
	defer db.Close()

	return c.run(ctx, outputOrStdout(c.out), src, db)
}

func (c *ImportKBCommand) run(ctx context.Context, out io.Writer, src knowledge.Source, db referenceWriter) error {
	if err := db.Health(ctx); err != nil {
		return fmt.Errorf("destination database unreachable: %w", err)
	}

	entries, err := src.Fetch(ctx)
	if err != nil {
		return err
	}

	rows := make([]store.ReferenceRow, 0, len(entries))
	for position, entry := range entries {
		rows = append(rows, store.RowFromEntry(position, entry))
	}

	if err := db.EnsureReferenceTable(ctx, c.Table); err != nil {
		return fmt.Errorf("prepare reference table: %w", err)
	}

	result, err := db.ReplaceReferenceRows(ctx, c.Table, rows)
	if err != nil {
		return err
	}

	if wantsJSON(c.globals) {
		return writeJSON(out, result)
	}
	fmt.Fprintf(out, "imported %d entries into %s (replaced %d)\n", result.Imported, result.Table, result.Replaced)
	return nil
}
