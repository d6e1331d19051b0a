// Package warehouse defines the loading side of the import job: an append
// repository for Derived Row records and the day-granularity import cursor.
//
// Backends register themselves under a kind string; the job constructs one
// repository from config and passes it down explicitly. There is no
// package-level connection state.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"leadsync/internal/pipeline"
)

// Config is the minimal configuration needed to construct a Repository.
type Config struct {
	Kind string
	DSN  string
}

// RowError reports the failure of a single record during InsertRows.
// Index is the record's position in the batch slice.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

// Repository is the backend-agnostic warehouse interface.
//
// IMPORTANT: InsertRows is append-only and per-row tolerant: a failing record
// is reported in the returned slice, the rest of the batch still loads. The
// returned error is reserved for batch-fatal conditions (connection loss,
// missing table). Whether row errors block the day is the caller's policy.
type Repository interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// InsertRows appends records to table. See the per-row tolerance note
	// above.
	InsertRows(ctx context.Context, table string, records []pipeline.Record) ([]RowError, error)

	// LastImportedDay reads the most recent day marked complete in the
	// cursor table. ok is false when the log is empty.
	LastImportedDay(ctx context.Context, table string) (day time.Time, ok bool, err error)

	// MarkDayImported appends day to the cursor log. The log is append-only;
	// the cursor is never decremented.
	MarkDayImported(ctx context.Context, table string, day time.Time) error
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering the
// same kind twice panics: ambiguous backend selection must fail fast.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("warehouse: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ---- shared helpers for backends ----

var canonicalOrder = buildCanonicalOrder()

func buildCanonicalOrder() map[string]int {
	cols := pipeline.OutputColumns()
	m := make(map[string]int, len(cols))
	for i, c := range cols {
		m[c] = i
	}
	return m
}

// RowColumns returns rec's keys in a deterministic insert order: the
// pipeline's canonical column order first, any extra keys alphabetically
// after. Exports vary in which trailing columns they carry, so the column
// list is computed per record, not per batch.
func RowColumns(rec pipeline.Record) []string {
	cols := make([]string, 0, len(rec))
	for k := range rec {
		cols = append(cols, k)
	}
	sort.Slice(cols, func(i, j int) bool {
		oi, iok := canonicalOrder[cols[i]]
		oj, jok := canonicalOrder[cols[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		default:
			return cols[i] < cols[j]
		}
	})
	return cols
}
