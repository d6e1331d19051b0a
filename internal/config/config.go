// Package config defines the JSON job configuration and its validation.
//
// Secrets (CRM token, warehouse DSN) are never stored in the JSON file.
// The file names the environment variable that holds the value, and Resolve
// reads it at startup. A literal value in the file is allowed for local
// development but produces a validation warning.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Job is the root of a job config file.
type Job struct {
	Name      string    `json:"job"`
	CRM       CRM       `json:"crm"`
	Warehouse Warehouse `json:"warehouse"`
	Run       Run       `json:"run"`
	Metrics   Metrics   `json:"metrics"`
}

// CRM configures the lead export endpoint.
type CRM struct {
	BaseURL string `json:"base_url"`

	// TokenEnv names the environment variable holding the API token.
	// Token is a literal fallback for local runs.
	TokenEnv string `json:"token_env,omitempty"`
	Token    string `json:"token,omitempty"`

	WorkshopID string `json:"workshop_id"`

	// Encoding of the export body: "latin1" (default) or "utf8".
	Encoding string `json:"encoding,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Warehouse selects the destination backend and tables.
type Warehouse struct {
	// Kind: "postgres" | "sqlite" | "mssql" | "snowflake"
	Kind string `json:"kind"`

	DSNEnv string `json:"dsn_env,omitempty"`
	DSN    string `json:"dsn,omitempty"`

	// Table receives transformed lead rows.
	Table string `json:"table"`

	// CursorTable is the append-only log of imported days.
	CursorTable string `json:"cursor_table"`
}

// Run controls the day loop.
type Run struct {
	// StartDate is the first day ever imported, "2006-01-02".
	// Used only when the cursor table is empty.
	StartDate string `json:"start_date"`

	// StrictLoadErrors makes any per-row insert failure abort the day
	// instead of being logged and counted.
	StrictLoadErrors bool `json:"strict_load_errors,omitempty"`

	// MaxDays caps how many days one invocation imports. 0 means no cap.
	MaxDays int `json:"max_days,omitempty"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend: "datadog" | "none" (default none).
	Backend      string `json:"backend,omitempty"`
	FlushSeconds int    `json:"flush_seconds,omitempty"`

	// Tags is a comma-separated tag list, e.g. "env:prod,team:data".
	Tags string `json:"tags,omitempty"`
}

// Load reads and decodes a job config file.
func Load(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var j Job
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&j); err != nil {
		return Job{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return j, nil
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path points into the JSON document.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Validate checks a decoded Job and returns all findings. The caller decides
// whether warnings are fatal; any SeverityError issue means the config must
// not run.
func Validate(j Job) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(j.Name) == "" {
		warnf("job", "empty job name, metrics default to job:leadsync")
	}

	// CRM.
	if strings.TrimSpace(j.CRM.BaseURL) == "" {
		errf("crm.base_url", "required")
	} else if !strings.HasPrefix(j.CRM.BaseURL, "http://") && !strings.HasPrefix(j.CRM.BaseURL, "https://") {
		errf("crm.base_url", "must start with http:// or https://")
	}
	if j.CRM.TokenEnv == "" && j.CRM.Token == "" {
		errf("crm.token_env", "either token_env or token is required")
	}
	if j.CRM.Token != "" {
		warnf("crm.token", "literal token in config file, prefer token_env")
	}
	if strings.TrimSpace(j.CRM.WorkshopID) == "" {
		errf("crm.workshop_id", "required")
	}
	switch j.CRM.Encoding {
	case "", "latin1", "utf8":
	default:
		errf("crm.encoding", "unknown encoding %q (want latin1 or utf8)", j.CRM.Encoding)
	}
	if j.CRM.TimeoutSeconds < 0 {
		errf("crm.timeout_seconds", "must be >= 0")
	}

	// Warehouse.
	switch j.Warehouse.Kind {
	case "postgres", "sqlite", "mssql", "snowflake":
	case "":
		errf("warehouse.kind", "required")
	default:
		errf("warehouse.kind", "unknown kind %q", j.Warehouse.Kind)
	}
	if j.Warehouse.DSNEnv == "" && j.Warehouse.DSN == "" {
		errf("warehouse.dsn_env", "either dsn_env or dsn is required")
	}
	if j.Warehouse.DSN != "" {
		warnf("warehouse.dsn", "literal DSN in config file, prefer dsn_env")
	}
	if strings.TrimSpace(j.Warehouse.Table) == "" {
		errf("warehouse.table", "required")
	}
	if strings.TrimSpace(j.Warehouse.CursorTable) == "" {
		errf("warehouse.cursor_table", "required")
	}

	// Run.
	if j.Run.StartDate != "" {
		if _, err := time.Parse("2006-01-02", j.Run.StartDate); err != nil {
			errf("run.start_date", "not a valid date (want 2006-01-02): %v", err)
		}
	}
	if j.Run.MaxDays < 0 {
		errf("run.max_days", "must be >= 0")
	}

	// Metrics.
	switch j.Metrics.Backend {
	case "", "none", "datadog":
	default:
		warnf("metrics.backend", "unknown backend %q, metrics will be disabled", j.Metrics.Backend)
	}
	if j.Metrics.FlushSeconds < 0 {
		errf("metrics.flush_seconds", "must be >= 0")
	}

	return issues
}

// ResolveToken returns the CRM API token, env var first.
func (c CRM) ResolveToken() (string, error) {
	return resolveSecret(c.TokenEnv, c.Token, "crm token")
}

// ResolveDSN returns the warehouse DSN, env var first.
func (w Warehouse) ResolveDSN() (string, error) {
	return resolveSecret(w.DSNEnv, w.DSN, "warehouse dsn")
}

func resolveSecret(envName, literal, what string) (string, error) {
	if envName != "" {
		v := os.Getenv(envName)
		if v == "" {
			return "", fmt.Errorf("%s: environment variable %s is empty", what, envName)
		}
		return v, nil
	}
	if literal == "" {
		return "", fmt.Errorf("%s: not configured", what)
	}
	return literal, nil
}

// Timeout returns the configured CRM request timeout, zero when unset so the
// client applies its own default.
func (c CRM) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StartDay parses Run.StartDate, defaulting to 2024-01-01 (UTC) when empty.
// Validate has already rejected malformed dates.
func (r Run) StartDay() time.Time {
	if r.StartDate == "" {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	d, err := time.Parse("2006-01-02", r.StartDate)
	if err != nil {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return d
}
