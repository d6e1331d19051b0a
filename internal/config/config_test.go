package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validJob() Job {
	return Job{
		Name: "avi_leads",
		CRM: CRM{
			BaseURL:    "https://crm.example.com/export",
			TokenEnv:   "CRM_TOKEN",
			WorkshopID: "42",
		},
		Warehouse: Warehouse{
			Kind:        "postgres",
			DSNEnv:      "WAREHOUSE_DSN",
			Table:       "staging.avi_crm",
			CursorTable: "staging.avi_imported_dates",
		},
		Run: Run{StartDate: "2024-01-01"},
	}
}

func errorPaths(issues []Issue) map[string]bool {
	out := map[string]bool{}
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			out[iss.Path] = true
		}
	}
	return out
}

func TestValidate_OK(t *testing.T) {
	if errs := errorPaths(Validate(validJob())); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Job)
		wantPath string
	}{
		{"missing_base_url", func(j *Job) { j.CRM.BaseURL = "" }, "crm.base_url"},
		{"bad_scheme", func(j *Job) { j.CRM.BaseURL = "ftp://x" }, "crm.base_url"},
		{"no_token_source", func(j *Job) { j.CRM.TokenEnv = ""; j.CRM.Token = "" }, "crm.token_env"},
		{"missing_workshop", func(j *Job) { j.CRM.WorkshopID = " " }, "crm.workshop_id"},
		{"bad_encoding", func(j *Job) { j.CRM.Encoding = "utf16" }, "crm.encoding"},
		{"unknown_warehouse", func(j *Job) { j.Warehouse.Kind = "bigquery" }, "warehouse.kind"},
		{"no_dsn_source", func(j *Job) { j.Warehouse.DSNEnv = "" }, "warehouse.dsn_env"},
		{"missing_table", func(j *Job) { j.Warehouse.Table = "" }, "warehouse.table"},
		{"missing_cursor_table", func(j *Job) { j.Warehouse.CursorTable = "" }, "warehouse.cursor_table"},
		{"bad_start_date", func(j *Job) { j.Run.StartDate = "01/02/2024" }, "run.start_date"},
		{"negative_max_days", func(j *Job) { j.Run.MaxDays = -1 }, "run.max_days"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			j := validJob()
			tc.mutate(&j)
			errs := errorPaths(Validate(j))
			if !errs[tc.wantPath] {
				t.Fatalf("expected error at %s, got %v", tc.wantPath, Validate(j))
			}
		})
	}
}

func TestValidate_LiteralSecretsWarn(t *testing.T) {
	j := validJob()
	j.CRM.TokenEnv = ""
	j.CRM.Token = "plaintext"
	j.Warehouse.DSNEnv = ""
	j.Warehouse.DSN = "postgres://..."

	var warns []string
	for _, iss := range Validate(j) {
		if iss.Severity == SeverityWarning {
			warns = append(warns, iss.Path)
		}
	}

	want := map[string]bool{"crm.token": false, "warehouse.dsn": false}
	for _, p := range warns {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, seen := range want {
		if !seen {
			t.Fatalf("expected warning at %s, got warnings %v", p, warns)
		}
	}
	if errs := errorPaths(Validate(j)); len(errs) != 0 {
		t.Fatalf("literal secrets should not be errors: %v", errs)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")
	body := `{
  "job": "avi_leads",
  "crm": {
    "base_url": "https://crm.example.com/export",
    "token_env": "CRM_TOKEN",
    "workshop_id": "42",
    "encoding": "latin1",
    "timeout_seconds": 90
  },
  "warehouse": {
    "kind": "sqlite",
    "dsn": "file:leads.db",
    "table": "leads",
    "cursor_table": "imported_dates"
  },
  "run": {"start_date": "2024-01-01", "max_days": 7}
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	j, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if j.Name != "avi_leads" || j.CRM.WorkshopID != "42" || j.Warehouse.Kind != "sqlite" {
		t.Fatalf("decoded %+v", j)
	}
	if j.CRM.Timeout() != 90*time.Second {
		t.Fatalf("timeout = %v", j.CRM.Timeout())
	}
	if j.Run.MaxDays != 7 {
		t.Fatalf("max_days = %d", j.Run.MaxDays)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")
	if err := os.WriteFile(path, []byte(`{"jobname": "typo"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("Load accepted unknown field")
	}
}

func TestResolveSecret(t *testing.T) {
	t.Setenv("LEADSYNC_TEST_TOKEN", "s3cret")

	c := CRM{TokenEnv: "LEADSYNC_TEST_TOKEN", Token: "literal"}
	got, err := c.ResolveToken()
	if err != nil || got != "s3cret" {
		t.Fatalf("ResolveToken = %q, %v", got, err)
	}

	c = CRM{Token: "literal"}
	got, err = c.ResolveToken()
	if err != nil || got != "literal" {
		t.Fatalf("ResolveToken literal = %q, %v", got, err)
	}

	c = CRM{TokenEnv: "LEADSYNC_TEST_MISSING"}
	if _, err := c.ResolveToken(); err == nil {
		t.Fatalf("empty env var should error")
	}
}

func TestStartDay(t *testing.T) {
	r := Run{}
	if got := r.StartDay(); !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("default StartDay = %v", got)
	}
	r = Run{StartDate: "2025-06-15"}
	if got := r.StartDay(); !got.Equal(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartDay = %v", got)
	}
}
