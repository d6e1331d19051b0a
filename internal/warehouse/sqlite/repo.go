// Package sqlite implements warehouse.Repository on SQLite.
//
// SQLite is not a production warehouse target; this backend exists for local
// runs and integration tests, where a file (or :memory:) database stands in
// for the real staging area.
//
// Timestamps are stored as RFC3339Nano strings and cursor days as
// "2006-01-02" strings: SQLite has TEXT affinity for time-like values and
// explicit strings round-trip reliably.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"leadsync/internal/pipeline"
	"leadsync/internal/warehouse"
)

type Repo struct {
	db *sql.DB
}

func init() {
	warehouse.Register("sqlite", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) InsertRows(ctx context.Context, table string, records []pipeline.Record) ([]warehouse.RowError, error) {
	var rowErrs []warehouse.RowError

	for i, rec := range records {
		cols := warehouse.RowColumns(rec)
		if len(cols) == 0 {
			rowErrs = append(rowErrs, warehouse.RowError{Index: i, Err: fmt.Errorf("empty record")})
			continue
		}

		var b strings.Builder
		b.WriteString("INSERT INTO ")
		b.WriteString(table)
		b.WriteString(" (")
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ident(c))
		}
		b.WriteString(") VALUES (")
		args := make([]any, 0, len(cols))
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, bindValue(rec[c]))
		}
		b.WriteString(")")

		if _, err := r.db.ExecContext(ctx, b.String(), args...); err != nil {
			if ctx.Err() != nil {
				return rowErrs, ctx.Err()
			}
			rowErrs = append(rowErrs, warehouse.RowError{Index: i, Err: err})
		}
	}
	return rowErrs, nil
}

func (r *Repo) LastImportedDay(ctx context.Context, table string) (time.Time, bool, error) {
	q := fmt.Sprintf(`SELECT imported_date FROM %s ORDER BY imported_date DESC LIMIT 1`, table)

	var s string
	err := r.db.QueryRowContext(ctx, q).Scan(&s)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: read cursor: %w", err)
	}

	day, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: parse cursor %q: %w", s, err)
	}
	return day, true, nil
}

func (r *Repo) MarkDayImported(ctx context.Context, table string, day time.Time) error {
	q := fmt.Sprintf(`INSERT INTO %s (imported_date, imported_at) VALUES (?, ?)`, table)
	_, err := r.db.ExecContext(ctx, q,
		day.Format("2006-01-02"),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark day %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

// bindValue converts pipeline value types to SQLite-friendly bindings.
func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
