package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"leadsync/internal/config"
	"leadsync/internal/pipeline"
	"leadsync/internal/warehouse"
)

const sampleCSV = "lead_id;nombre;email\n" +
	"L1;Ana;ANA@EXAMPLE.COM\n" +
	"L2;Luis;luis@example.com\n"

type fakeFetcher struct {
	days []time.Time
	err  error
	// errOn, when set, fails only that day.
	errOn time.Time
}

func (f *fakeFetcher) FetchDay(ctx context.Context, day time.Time) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.errOn.IsZero() && day.Equal(f.errOn) {
		return nil, fmt.Errorf("export unavailable")
	}
	f.days = append(f.days, day)
	return io.NopCloser(strings.NewReader(sampleCSV)), nil
}

type fakeRepo struct {
	last    time.Time
	hasLast bool

	cursorErr error
	insertErr error
	rowErrs   []warehouse.RowError
	markErr   error

	inserted [][]pipeline.Record
	marked   []time.Time
}

func (f *fakeRepo) Close() {}

func (f *fakeRepo) InsertRows(ctx context.Context, table string, records []pipeline.Record) ([]warehouse.RowError, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, records)
	return f.rowErrs, nil
}

func (f *fakeRepo) LastImportedDay(ctx context.Context, table string) (time.Time, bool, error) {
	if f.cursorErr != nil {
		return time.Time{}, false, f.cursorErr
	}
	return f.last, f.hasLast, nil
}

func (f *fakeRepo) MarkDayImported(ctx context.Context, table string, day time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, day)
	return nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func testJob() config.Job {
	return config.Job{
		Name: "avi_leads",
		CRM:  config.CRM{Encoding: "utf8"},
		Warehouse: config.Warehouse{
			Table:       "leads",
			CursorTable: "imported_dates",
		},
		Run: config.Run{StartDate: "2024-01-01"},
	}
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestRunner(fetcher *fakeFetcher, repo *fakeRepo, job config.Job, today string) *Runner {
	return &Runner{
		Fetcher: fetcher,
		Repo:    repo,
		Job:     job,
		Logger:  nopLogger{},
		Now:     func() time.Time { return day(today).Add(10 * time.Hour) },
	}
}

func TestRun_ImportsAllPendingDays(t *testing.T) {
	fetcher := &fakeFetcher{}
	repo := &fakeRepo{}
	r := newTestRunner(fetcher, repo, testJob(), "2024-01-04")

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []time.Time{day("2024-01-01"), day("2024-01-02"), day("2024-01-03")}
	if len(fetcher.days) != len(want) {
		t.Fatalf("fetched %d days, want %d: %v", len(fetcher.days), len(want), fetcher.days)
	}
	for i := range want {
		if !fetcher.days[i].Equal(want[i]) {
			t.Fatalf("fetched[%d] = %v, want %v", i, fetcher.days[i], want[i])
		}
		if !repo.marked[i].Equal(want[i]) {
			t.Fatalf("marked[%d] = %v, want %v", i, repo.marked[i], want[i])
		}
	}
	if len(repo.inserted) != 3 || len(repo.inserted[0]) != 2 {
		t.Fatalf("inserted batches = %d, first batch rows = %d", len(repo.inserted), len(repo.inserted[0]))
	}
}

func TestRun_ResumesFromCursor(t *testing.T) {
	fetcher := &fakeFetcher{}
	repo := &fakeRepo{last: day("2024-01-02"), hasLast: true}
	r := newTestRunner(fetcher, repo, testJob(), "2024-01-04")

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetcher.days) != 1 || !fetcher.days[0].Equal(day("2024-01-03")) {
		t.Fatalf("fetched = %v, want only 2024-01-03", fetcher.days)
	}
}

func TestRun_UpToDate(t *testing.T) {
	fetcher := &fakeFetcher{}
	repo := &fakeRepo{last: day("2024-01-03"), hasLast: true}
	r := newTestRunner(fetcher, repo, testJob(), "2024-01-04")

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetcher.days) != 0 {
		t.Fatalf("fetched %v, want nothing", fetcher.days)
	}
}

// A cursor behind the configured start date must not re-import days before
// the start date.
func TestRun_StartDateWinsOverOlderCursor(t *testing.T) {
	job := testJob()
	job.Run.StartDate = "2024-01-03"
	fetcher := &fakeFetcher{}
	repo := &fakeRepo{last: day("2023-06-01"), hasLast: true}
	r := newTestRunner(fetcher, repo, job, "2024-01-05")

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetcher.days) != 2 || !fetcher.days[0].Equal(day("2024-01-03")) {
		t.Fatalf("fetched = %v, want 2024-01-03 and 2024-01-04", fetcher.days)
	}
}

func TestRun_MaxDaysCapsInvocation(t *testing.T) {
	job := testJob()
	job.Run.MaxDays = 2
	fetcher := &fakeFetcher{}
	repo := &fakeRepo{}
	r := newTestRunner(fetcher, repo, job, "2024-01-10")

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetcher.days) != 2 {
		t.Fatalf("fetched %d days, want 2", len(fetcher.days))
	}
	if len(repo.marked) != 2 {
		t.Fatalf("marked %d days, want 2", len(repo.marked))
	}
}

func TestRun_FetchErrorAbortsWithoutMarking(t *testing.T) {
	fetcher := &fakeFetcher{errOn: day("2024-01-02")}
	repo := &fakeRepo{}
	r := newTestRunner(fetcher, repo, testJob(), "2024-01-04")

	err := r.Run(context.Background())
	if err == nil {
		t.Fatalf("Run succeeded, want fetch error")
	}
	if !strings.Contains(err.Error(), "2024-01-02") {
		t.Fatalf("error does not name the day: %v", err)
	}
	// Day one completed before the failure; day two was never marked.
	if len(repo.marked) != 1 || !repo.marked[0].Equal(day("2024-01-01")) {
		t.Fatalf("marked = %v, want only 2024-01-01", repo.marked)
	}
}

func TestRun_CursorErrorAborts(t *testing.T) {
	repo := &fakeRepo{cursorErr: errors.New("relation does not exist")}
	r := newTestRunner(&fakeFetcher{}, repo, testJob(), "2024-01-04")

	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("Run succeeded, want cursor error")
	}
}

func TestRun_RowErrorsToleratedByDefault(t *testing.T) {
	fetcher := &fakeFetcher{}
	repo := &fakeRepo{rowErrs: []warehouse.RowError{{Index: 0, Err: errors.New("bad value")}}}
	r := newTestRunner(fetcher, repo, testJob(), "2024-01-02")

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.marked) != 1 {
		t.Fatalf("day with row errors not marked: %v", repo.marked)
	}
}

func TestRun_StrictLoadErrorsAborts(t *testing.T) {
	job := testJob()
	job.Run.StrictLoadErrors = true
	fetcher := &fakeFetcher{}
	repo := &fakeRepo{rowErrs: []warehouse.RowError{{Index: 0, Err: errors.New("bad value")}}}
	r := newTestRunner(fetcher, repo, job, "2024-01-02")

	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("Run succeeded, want strict load error")
	}
	if len(repo.marked) != 0 {
		t.Fatalf("failed day was marked: %v", repo.marked)
	}
}

func TestRun_InsertErrorAborts(t *testing.T) {
	repo := &fakeRepo{insertErr: errors.New("connection reset")}
	r := newTestRunner(&fakeFetcher{}, repo, testJob(), "2024-01-02")

	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("Run succeeded, want insert error")
	}
	if len(repo.marked) != 0 {
		t.Fatalf("failed day was marked: %v", repo.marked)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(&fakeFetcher{}, &fakeRepo{}, testJob(), "2024-01-04")
	if err := r.Run(ctx); err == nil {
		t.Fatalf("Run succeeded with canceled context")
	}
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2024, 3, 5, 17, 45, 12, 999, time.UTC)
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if got := dateOnly(in); !got.Equal(want) {
		t.Fatalf("dateOnly = %v, want %v", got, want)
	}
}
