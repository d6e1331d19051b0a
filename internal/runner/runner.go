// Package runner drives the day-by-day import loop: read the cursor, fetch
// each pending day from the CRM, transform, load, mark the day imported.
package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"leadsync/internal/config"
	"leadsync/internal/metrics"
	"leadsync/internal/pipeline"
	"leadsync/internal/warehouse"
)

// Fetcher retrieves one day's CSV export. Implemented by crm.Client.
type Fetcher interface {
	FetchDay(ctx context.Context, day time.Time) (io.ReadCloser, error)
}

// Logger is the subset of *log.Logger the runner uses.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner executes the import job for one invocation.
type Runner struct {
	Fetcher Fetcher
	Repo    warehouse.Repository
	Job     config.Job

	// Logger defaults to the standard logger.
	Logger Logger

	// Now is a clock seam for tests. Defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) logf(format string, v ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, v...)
		return
	}
	log.Printf(format, v...)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run imports every pending day up to (but not including) today.
//
// The cursor is read once at the start: the day after the last imported day,
// or Run.StartDate when the cursor table is empty. Each completed day appends
// a cursor row, so a crash resumes where it stopped. Already-imported days
// are never re-fetched.
//
// A failed day (fetch error, header error, batch-fatal insert error) aborts
// the run without marking the day, so the next invocation retries it.
func (r *Runner) Run(ctx context.Context) (err error) {
	runID := uuid.NewString()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run %s: panic: %v", runID, rec)
		}
	}()

	today := dateOnly(r.now().UTC())

	start, err := r.firstPendingDay(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	if !start.Before(today) {
		r.logf("stage=run run_id=%s status=up_to_date next_day=%s", runID, start.Format("2006-01-02"))
		return nil
	}

	r.logf("stage=run run_id=%s job=%s first_day=%s today=%s", runID, r.Job.Name, start.Format("2006-01-02"), today.Format("2006-01-02"))

	days := 0
	for day := start; day.Before(today); day = day.AddDate(0, 0, 1) {
		if r.Job.Run.MaxDays > 0 && days >= r.Job.Run.MaxDays {
			r.logf("stage=run run_id=%s status=max_days_reached max_days=%d", runID, r.Job.Run.MaxDays)
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}

		if err := r.importDay(ctx, runID, day); err != nil {
			return fmt.Errorf("run %s: day %s: %w", runID, day.Format("2006-01-02"), err)
		}
		days++
	}

	metrics.IncCounter("leadsync.runs.completed", 1, "run_id:"+runID)
	r.logf("stage=run run_id=%s status=done days_imported=%d", runID, days)
	return nil
}

// firstPendingDay returns the first day that still needs importing.
func (r *Runner) firstPendingDay(ctx context.Context) (time.Time, error) {
	last, ok, err := r.Repo.LastImportedDay(ctx, r.Job.Warehouse.CursorTable)
	if err != nil {
		return time.Time{}, fmt.Errorf("read cursor: %w", err)
	}

	start := r.Job.Run.StartDay()
	if !ok {
		return start, nil
	}

	next := dateOnly(last.UTC()).AddDate(0, 0, 1)
	if next.After(start) {
		return next, nil
	}
	return start, nil
}

func (r *Runner) importDay(ctx context.Context, runID string, day time.Time) error {
	dayTag := "day:" + day.Format("2006-01-02")
	begun := r.now()

	body, err := r.Fetcher.FetchDay(ctx, day)
	if err != nil {
		metrics.IncCounter("leadsync.fetch.errors", 1, dayTag)
		return fmt.Errorf("fetch: %w", err)
	}
	defer body.Close()

	var skipped int
	opt := pipeline.Options{
		Latin1: r.Job.CRM.Encoding != "utf8",
		OnRowError: func(line int, rowErr error) {
			skipped++
			r.logf("stage=parse run_id=%s day=%s line=%d skipped err=%v", runID, day.Format("2006-01-02"), line, rowErr)
		},
	}

	stream := pipeline.ParseBatch(ctx, body, opt)

	var records []pipeline.Record
	for rec := range stream.Records {
		records = append(records, rec)
	}
	if err := stream.Wait(); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	metrics.IncCounter("leadsync.rows.parsed", float64(len(records)), dayTag)
	if skipped > 0 {
		metrics.IncCounter("leadsync.rows.skipped", float64(skipped), dayTag)
	}

	rowErrs, err := r.Repo.InsertRows(ctx, r.Job.Warehouse.Table, records)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if len(rowErrs) > 0 {
		metrics.IncCounter("leadsync.load.row_errors", float64(len(rowErrs)), dayTag)
		for _, re := range rowErrs {
			r.logf("stage=load run_id=%s day=%s row=%d err=%v", runID, day.Format("2006-01-02"), re.Index, re.Err)
		}
		if r.Job.Run.StrictLoadErrors {
			return fmt.Errorf("load: %d row errors", len(rowErrs))
		}
	}
	loaded := len(records) - len(rowErrs)
	metrics.IncCounter("leadsync.rows.loaded", float64(loaded), dayTag)

	if err := r.Repo.MarkDayImported(ctx, r.Job.Warehouse.CursorTable, day); err != nil {
		return fmt.Errorf("mark imported: %w", err)
	}

	metrics.IncCounter("leadsync.days.imported", 1)
	metrics.ObserveDuration("leadsync.day.duration_seconds", r.now().Sub(begun))

	r.logf("stage=day run_id=%s day=%s parsed=%d skipped=%d loaded=%d row_errors=%d elapsed=%s",
		runID, day.Format("2006-01-02"), len(records), skipped, loaded, len(rowErrs),
		r.now().Sub(begun).Truncate(time.Millisecond))
	return nil
}

// dateOnly truncates a time to midnight UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
