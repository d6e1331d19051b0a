package mssql

import (
	"testing"

	"leadsync/internal/pipeline"
)

func TestBuildRowInsertSQL(t *testing.T) {
	rec := pipeline.Record{"lead_id": "1", "equipo": "bdc"}
	q, args := buildRowInsertSQL("staging.avi_crm", []string{"lead_id", "equipo"}, rec)

	want := `INSERT INTO staging.avi_crm ([lead_id], [equipo]) VALUES (@p1, @p2)`
	if q != want {
		t.Fatalf("sql = %q, want %q", q, want)
	}
	if len(args) != 2 || args[0] != "1" || args[1] != "bdc" {
		t.Fatalf("args = %v", args)
	}
}

func TestIdent(t *testing.T) {
	if got := ident("fuente"); got != "[fuente]" {
		t.Fatalf("ident = %s", got)
	}
	if got := ident("we]ird"); got != "[we]]ird]" {
		t.Fatalf("ident escape = %s", got)
	}
}
