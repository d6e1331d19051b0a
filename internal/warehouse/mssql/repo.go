// Package mssql implements warehouse.Repository on Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"leadsync/internal/pipeline"
	"leadsync/internal/warehouse"
)

type Repo struct {
	db *sql.DB
}

func init() {
	warehouse.Register("mssql", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// buildRowInsertSQL constructs one INSERT with @pN placeholders.
// Pure, for unit testing without a SQL Server instance.
func buildRowInsertSQL(table string, cols []string, rec pipeline.Record) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES (")

	args := make([]any, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
		args = append(args, rec[c])
	}
	b.WriteString(")")
	return b.String(), args
}

func (r *Repo) LastImportedDay(ctx context.Context, table string) (time.Time, bool, error) {
	q := fmt.Sprintf(`SELECT TOP 1 imported_date FROM %s ORDER BY imported_date DESC`, table)

	var day time.Time
	err := r.db.QueryRowContext(ctx, q).Scan(&day)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("mssql: read cursor: %w", err)
	}
	return day, true, nil
}

func (r *Repo) MarkDayImported(ctx context.Context, table string, day time.Time) error {
	q := fmt.Sprintf(`INSERT INTO %s (imported_date, imported_at) VALUES (@p1, @p2)`, table)
	if _, err := r.db.ExecContext(ctx, q, day, time.Now().UTC()); err != nil {
		return fmt.Errorf("mssql: mark day %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

// ident quotes a SQL Server identifier with brackets.
func ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
