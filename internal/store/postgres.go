package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultReferenceTable = "cookie_reference_entries"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// referenceTable validates a table name and returns it quoted for SQL.
func referenceTable(name string) (string, error) {
	if name == "" {
		name = DefaultReferenceTable
	}
	if !tableNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid reference table name %q", name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

func (p *Postgres) EnsureReferenceTable(ctx context.Context, table string) error {
	quoted, err := referenceTable(table)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
		   position integer PRIMARY KEY,
		   id text NOT NULL,
		   cookie text NOT NULL,
		   domain text NOT NULL DEFAULT '',
		   category text NOT NULL DEFAULT '',
		   description text NOT NULL DEFAULT '',
		   platform text NOT NULL DEFAULT '',
		   retention_period text NOT NULL DEFAULT '',
		   data_controller text NOT NULL DEFAULT '',
		   privacy_link text NOT NULL DEFAULT ''
		 )`, quoted))
	if err != nil {
		return fmt.Errorf("create reference table: %w", err)
	}
	return nil
}

// ListReferenceRows returns every row of the table in position order.
func (p *Postgres) ListReferenceRows(ctx context.Context, table string) ([]ReferenceRow, error) {
	quoted, err := referenceTable(table)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT position, id, cookie, domain, category, description,
		        platform, retention_period, data_controller, privacy_link
		 FROM %s
		 ORDER BY position ASC`, quoted))
	if err != nil {
		return nil, fmt.Errorf("query reference rows: %w", err)
	}
	defer rows.Close()

	result := make([]ReferenceRow, 0)
	for rows.Next() {
		var row ReferenceRow
		if err := rows.Scan(
			&row.Position,
			&row.ID,
			&row.Cookie,
			&row.Domain,
			&row.Category,
			&row.Description,
			&row.Platform,
			&row.RetentionPeriod,
			&row.DataController,
			&row.PrivacyLink,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return result, nil
}

// ReplaceReferenceRows swaps the table contents for rows in one transaction.
// Rows without an id get a generated one.
func (p *Postgres) ReplaceReferenceRows(ctx context.Context, table string, rows []ReferenceRow) (ImportResult, error) {
	quoted, err := referenceTable(table)
	if err != nil {
		return ImportResult{}, err
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback(ctx)

	deleted, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, quoted))
	if err != nil {
		return ImportResult{}, fmt.Errorf("clear reference table: %w", err)
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s (position, id, cookie, domain, category, description,
		                 platform, retention_period, data_controller, privacy_link)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, quoted)

	batch := &pgx.Batch{}
	for _, row := range rows {
		id := row.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(insert,
			row.Position,
			id,
			row.Cookie,
			row.Domain,
			row.Category,
			row.Description,
			row.Platform,
			row.RetentionPeriod,
			row.DataController,
			row.PrivacyLink,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return ImportResult{}, fmt.Errorf("insert reference row: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return ImportResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ImportResult{}, err
	}

	return ImportResult{
		Table:    table,
		Replaced: int(deleted.RowsAffected()),
		Imported: len(rows),
	}, nil
}
