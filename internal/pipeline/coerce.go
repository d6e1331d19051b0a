package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldKind selects the coercion applied to one canonical field.
type fieldKind int

const (
	kindNone fieldKind = iota
	kindDate
	kindID
	kindPostal
	kindPhone
	kindInt
	kindCategory
	kindText
	kindEmail
)

// fieldPolicies is the fixed per-field coercion policy. Fields absent from a
// given export are simply skipped; fields absent from this table pass through
// as raw strings.
var fieldPolicies = map[string]fieldKind{
	// day-first calendar timestamps
	"lead_creacion":      kindDate,
	"primera_llamada":    kindDate,
	"ultima_llamada":     kindDate,
	"fecha_agendada":     kindDate,
	"fecha_modificacion": kindDate,
	"fecha_venta":        kindDate,

	// identifiers forced to string form
	"lead_id": kindID,
	"cita_id": kindID,

	"cliente_cp": kindPostal,

	"cliente_telefono":  kindPhone,
	"cliente_movil":     kindPhone,
	"vendedor_telefono": kindPhone,

	"kilometros": kindInt,

	// closed, low-cardinality values; tagged but not transformed
	"lead_tipo":    kindCategory,
	"origen_lead":  kindCategory,
	"estado_cita":  kindCategory,
	"cliente_tipo": kindCategory,
	"marca":        kindCategory,
	"modelo":       kindCategory,

	// long free text
	"detalle_origen_lead": kindText,
	"detalle_origen_raw":  kindText,
	"observaciones":       kindText,

	"cliente_email":  kindEmail,
	"vendedor_email": kindEmail,
}

// dateLayouts are tried in order. The CRM exports day-first timestamps
// ("31/12/2024 18:05:00"); the ISO forms cover re-exports that went through
// other tooling. Go's "2/1" layout digits accept both padded and unpadded
// day/month values.
var dateLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006 15:04:05",
	"2-1-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// coercePlan is a header-compiled view of fieldPolicies: one kind per column
// position, so per-row application is an index walk with no map lookups.
type coercePlan struct {
	kinds []fieldKind
}

func compileCoercePlan(columns []string) coercePlan {
	kinds := make([]fieldKind, len(columns))
	for i, c := range columns {
		kinds[i] = fieldPolicies[c]
	}
	return coercePlan{kinds: kinds}
}

// apply coerces a positional row in place.
//
// Coercion never fails a row: a value that does not parse degrades to nil
// (or 0 for kilometros) and processing continues.
func (p coercePlan) apply(row []any) {
	for i, kind := range p.kinds {
		if i >= len(row) {
			return
		}
		switch kind {
		case kindNone, kindCategory:
			// pass through
		case kindDate:
			row[i] = coerceDate(row[i])
		case kindID, kindPhone:
			row[i] = coerceString(row[i])
		case kindPostal:
			row[i] = coercePostal(row[i])
		case kindInt:
			row[i] = coerceCount(row[i])
		case kindText:
			row[i] = coerceText(row[i])
		case kindEmail:
			row[i] = coerceEmail(row[i])
		}
	}
}

// coerceDate parses a day-first calendar timestamp. Unparseable values become
// nil, never an error.
func coerceDate(v any) any {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return nil
}

// coerceString forces a value to its string representation, preserving nil.
func coerceString(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// coercePostal parses a postal code as an integer and re-renders it
// zero-padded to 5 digits. The CRM emits codes that lost their leading zero
// ("8028") and occasionally float artifacts ("8028.0"); both normalize to
// "08028". Unparseable values become nil.
func coercePostal(v any) any {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return fmt.Sprintf("%05d", int(f))
}

// coerceCount parses an integer count, defaulting unparseable or missing
// values to 0.
func coerceCount(v any) any {
	s, ok := stringValue(v)
	if !ok {
		return int64(0)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return int64(0)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return int64(0)
	}
	return int64(f)
}

func coerceText(v any) any {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	return strings.TrimSpace(s)
}

func coerceEmail(v any) any {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	return strings.ToLower(s)
}

// stringValue extracts a raw string; parser output is string-or-nil, but the
// fallback keeps coercions total over any value shape.
func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	default:
		return fmt.Sprint(t), true
	}
}
