// Package snowflake implements warehouse.Repository on Snowflake.
//
// Identifier note: column names are emitted unquoted. Snowflake folds
// unquoted identifiers to upper case, which matches staging tables created
// the same way; quoting would instead demand an exact-case match and break
// against the default DDL.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"leadsync/internal/pipeline"
	"leadsync/internal/warehouse"
)

type Repo struct {
	db *sql.DB
}

func init() {
	warehouse.Register("snowflake", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("snowflake", cfg.DSN)
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

		q, args := buildRowInsertSQL(table, cols, rec)
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			if ctx.Err() != nil {
				return rowErrs, ctx.Err()
			}
			rowErrs = append(rowErrs, warehouse.RowError{Index: i, Err: err})
		}
	}
	return rowErrs, nil
}

// buildRowInsertSQL constructs one INSERT with ? placeholders.
// Pure, for unit testing without a Snowflake account.
func buildRowInsertSQL(table string, cols []string, rec pipeline.Record) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")

	args := make([]any, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
		args = append(args, rec[c])
	}
	b.WriteString(")")
	return b.String(), args
}

func (r *Repo) LastImportedDay(ctx context.Context, table string) (time.Time, bool, error) {
	q := fmt.Sprintf(`SELECT imported_date FROM %s ORDER BY imported_date DESC LIMIT 1`, table)

	var day time.Time
	err := r.db.QueryRowContext(ctx, q).Scan(&day)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("snowflake: read cursor: %w", err)
	}
	return day, true, nil
}

func (r *Repo) MarkDayImported(ctx context.Context, table string, day time.Time) error {
	q := fmt.Sprintf(`INSERT INTO %s (imported_date, imported_at) VALUES (?, ?)`, table)
	if _, err := r.db.ExecContext(ctx, q, day, time.Now().UTC()); err != nil {
		return fmt.Errorf("snowflake: mark day %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}
