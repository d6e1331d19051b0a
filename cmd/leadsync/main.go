package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"leadsync/internal/config"
	"leadsync/internal/crm"
	"leadsync/internal/metrics"
	"leadsync/internal/metrics/datadog"
	"leadsync/internal/runner"
	"leadsync/internal/warehouse"

	// register all warehouse backends with the factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "leadsync/internal/warehouse/all"
)

// main is the entry point for the import binary. It loads the job config,
// optionally initializes a metrics backend, and executes the day loop.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		validate          bool
		once              bool
		maxDays           int
	)

	flag.StringVar(&cfgPath, "config", "configs/jobs/avi_leads.json", "job config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none; overrides config)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&once, "once", false, "import at most one day and exit")
	flag.IntVar(&maxDays, "max-days", 0, "cap on days imported this run (overrides config; 0 keeps config value)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	// Local development convenience; in production the env is already set.
	_ = godotenv.Load()

	job, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.Validate(job)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	if maxDays > 0 {
		job.Run.MaxDays = maxDays
	}
	if once {
		job.Run.MaxDays = 1
	}

	// Decide metrics backend: flag → config → none.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = job.Metrics.Backend
	}
	switch backendName {
	case "datadog":
		jobName := job.Name
		if jobName == "" {
			jobName = "leadsync"
		}

		flushEvery := time.Duration(job.Metrics.FlushSeconds) * time.Second
		extraTags := datadog.ParseTagsCSV(job.Metrics.Tags)
		if env := os.Getenv("METRICS_TAGS"); env != "" {
			extraTags = append(extraTags, datadog.ParseTagsCSV(env)...)
		}

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    jobName,
			Tags:       extraTags,
			FlushEvery: flushEvery,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, jobName, extraTags)
			metrics.SetBackend(b)

			// Close() stops the periodic flush loop and performs a final Flush().
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := job.CRM.ResolveToken()
	if err != nil {
		fatalf("%v", err)
	}
	dsn, err := job.Warehouse.ResolveDSN()
	if err != nil {
		fatalf("%v", err)
	}

	fetcher := crm.New(crm.Config{
		BaseURL:    job.CRM.BaseURL,
		Token:      token,
		WorkshopID: job.CRM.WorkshopID,
		Timeout:    job.CRM.Timeout(),
	})

	repo, err := warehouse.New(ctx, warehouse.Config{Kind: job.Warehouse.Kind, DSN: dsn})
	if err != nil {
		fatalf("warehouse: %v", err)
	}
	defer repo.Close()

	if *verbose {
		log.Printf("job: name=%s crm=%s warehouse=%s table=%s cursor=%s",
			job.Name, job.CRM.BaseURL, job.Warehouse.Kind, job.Warehouse.Table, job.Warehouse.CursorTable)
	}

	start := time.Now()
	r := &runner.Runner{Fetcher: fetcher, Repo: repo, Job: job}
	if err := r.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
