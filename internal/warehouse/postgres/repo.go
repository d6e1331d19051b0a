// Package postgres implements warehouse.Repository on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadsync/internal/pipeline"
	"leadsync/internal/warehouse"
)

type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	warehouse.Register("postgres", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

// InsertRows appends records one statement per record. Exports vary in which
// columns they carry, so rows in the same batch can have different column
// lists; per-row statements also give per-row error isolation: a bad record
// is reported and skipped, not fatal.
func (r *Repo) InsertRows(ctx context.Context, table string, records []pipeline.Record) ([]warehouse.RowError, error) {
	var rowErrs []warehouse.RowError

	for i, rec := range records {
		cols := warehouse.RowColumns(rec)
		if len(cols) == 0 {
			rowErrs = append(rowErrs, warehouse.RowError{Index: i, Err: fmt.Errorf("empty record")})
			continue
		}

		sql, args := buildRowInsertSQL(table, cols, rec)
		if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
			if ctx.Err() != nil {
				return rowErrs, ctx.Err()
			}
			rowErrs = append(rowErrs, warehouse.RowError{Index: i, Err: err})
		}
	}
	return rowErrs, nil
}

// buildRowInsertSQL constructs one INSERT and its args.
//
// It is pure and deterministic so placeholder numbering and identifier
// quoting can be unit tested without a database.
func buildRowInsertSQL(table string, cols []string, rec pipeline.Record) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")

	args := make([]any, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
		args = append(args, rec[c])
	}
	b.WriteString(")")

	return b.String(), args
}

func (r *Repo) LastImportedDay(ctx context.Context, table string) (time.Time, bool, error) {
	q := fmt.Sprintf(
		`SELECT imported_date FROM %s ORDER BY imported_date DESC LIMIT 1`,
		table,
	)

	var day time.Time
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("postgres: read cursor: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return time.Time{}, false, rows.Err()
	}
	if err := rows.Scan(&day); err != nil {
		return time.Time{}, false, fmt.Errorf("postgres: scan cursor: %w", err)
	}
	return day, true, nil
}

func (r *Repo) MarkDayImported(ctx context.Context, table string, day time.Time) error {
	q := fmt.Sprintf(
		`INSERT INTO %s (imported_date, imported_at) VALUES ($1, $2)`,
		table,
	)
	if _, err := r.pool.Exec(ctx, q, day, time.Now().UTC()); err != nil {
		return fmt.Errorf("postgres: mark day %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

// pgIdent quotes a Postgres identifier.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
