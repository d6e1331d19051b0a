// Package pipeline implements the daily row-transformation pipeline: raw
// semicolon-delimited CRM export in, derived lead records out.
//
// Stages, in order:
//
//	parse → NormalizeColumns → coerce (fixed per-field policy) → derive
//
// The pipeline is strictly single-pass and order-preserving. Malformed rows
// are skipped, malformed values degrade to nil; only a missing or empty
// header fails a batch.
package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Options controls batch parsing.
type Options struct {
	// Comma is the field delimiter. Zero means the CRM default ';'.
	Comma rune

	// Latin1 wraps the source in an ISO 8859-1 decoder. The CRM's legacy
	// export path still serves latin-1; the newer one serves UTF-8.
	Latin1 bool

	// OnRowError is invoked for each skipped row (1-based physical line).
	// May be nil.
	OnRowError func(line int, err error)
}

// Stream is a finite, lazy sequence of Derived Rows for one day's batch.
//
// Ownership contract:
//   - The consumer must drain Records until it closes, then call Wait.
//   - Wait reports the terminal error, if any (bad header, canceled context).
//     Row-level degradation is never a terminal error.
type Stream struct {
	Records <-chan Record

	done chan struct{}
	err  error
}

// Wait blocks until the producer has finished and returns its terminal error.
func (s *Stream) Wait() error {
	<-s.done
	return s.err
}

// ParseBatch streams one day's raw export through the full transformation
// pipeline. It returns immediately; records arrive on Stream.Records.
func ParseBatch(ctx context.Context, src io.Reader, opt Options) *Stream {
	out := make(chan Record)
	s := &Stream{
		Records: out,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(out)
		s.err = run(ctx, src, opt, out)
	}()

	return s
}

func run(ctx context.Context, src io.Reader, opt Options, out chan<- Record) error {
	comma := opt.Comma
	if comma == 0 {
		comma = ';'
	}
	if opt.Latin1 {
		src = charmap.ISO8859_1.NewDecoder().Reader(src)
	}

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	line := 0
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	hdr, err := readRec()
	if err == io.EOF {
		return ErrNoColumns
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	rawHeader := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		rawHeader[i] = strings.TrimSpace(h)
	}

	columns, err := NormalizeColumns(rawHeader)
	if err != nil {
		return err
	}
	plan := compileCoercePlan(columns)

	row := make([]any, len(columns))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// A malformed row degrades to a skip, never a batch failure.
			if opt.OnRowError != nil {
				opt.OnRowError(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		// A row wider than the header is malformed and skipped whole; there
		// is no column to receive the extra values. Short rows pad with nil.
		if len(rec) > len(columns) {
			if opt.OnRowError != nil {
				opt.OnRowError(line, fmt.Errorf("row has %d fields, header has %d", len(rec), len(columns)))
			}
			continue
		}

		for i := range columns {
			if i >= len(rec) {
				row[i] = nil
				continue
			}
			v := rec[i]
			if v == "" {
				row[i] = nil
			} else {
				row[i] = v
			}
		}

		plan.apply(row)

		r := make(Record, len(columns)+len(derivedColumns))
		for i, c := range columns {
			r[c] = row[i]
		}
		derive(r)

		select {
		case out <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
