package pipeline

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"leadsync/internal/pipeline/refdata"
)

// Derivations. Each derivation is a pure function of a single coerced row;
// none of them reads another derivation's output and none of them raises on
// missing or malformed input; everything degrades to nil per field.

// leadTypeByPrefix maps the campaign string's first token to a lead type.
var leadTypeByPrefix = map[string]string{
	"vn": "vehiculo nuevo",
	"vo": "vehiculo de ocasion",
}

// brandFixes repairs known misspellings seen in the CRM's brand field.
var brandFixes = map[string]string{
	"Citren":  "Citroen",
	"Citröen": "Citroen",
}

var brandTitle = cases.Title(language.Spanish)

// derive appends all computed fields to rec. rec must already be coerced.
func derive(rec Record) {
	rec["equipo"] = deriveEquipo(rec)

	mins, hours, days := deriveResponseTimes(rec)
	rec["tiempo_de_respuesta_minutos"] = mins
	rec["tiempo_de_respuesta_horas"] = hours
	rec["tiempo_de_respuesta_dias"] = days

	rec["telefono_unificado"] = deriveTelefonoUnificado(rec)
	rec["marca_normalizada"] = deriveMarcaNormalizada(rec)
	rec["tipo_de_lead"] = deriveTipoDeLead(rec)
	rec["tipo_venta_normalizado"] = deriveTipoVenta(rec)
	rec["fuente"] = deriveFuente(rec)
}

// deriveEquipo classifies the creating user as call-center ("bdc") or
// dealership ("concesionario"). A missing user is dealership.
func deriveEquipo(rec Record) string {
	if u, ok := rec["usuario_alta"].(string); ok && refdata.IsBDCUser(u) {
		return "bdc"
	}
	return "concesionario"
}

// deriveResponseTimes computes the delta between lead creation and first
// call in minutes, hours and days, each rounded to 2 decimals. If either
// timestamp is null all three figures are nil.
func deriveResponseTimes(rec Record) (mins, hours, days any) {
	created, ok1 := rec["lead_creacion"].(time.Time)
	firstCall, ok2 := rec["primera_llamada"].(time.Time)
	if !ok1 || !ok2 {
		return nil, nil, nil
	}

	m := round2(firstCall.Sub(created).Seconds() / 60)
	h := round2(m / 60)
	d := round2(h / 24)
	return m, h, d
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// deriveTelefonoUnificado collapses the two phone fields into one: mobile
// wins over landline. Values are trimmed and stripped of the trailing ".0"
// float artifact the export leaves on numeric-looking phones.
func deriveTelefonoUnificado(rec Record) any {
	if p := cleanPhone(rec["cliente_movil"]); p != "" {
		return p
	}
	if p := cleanPhone(rec["cliente_telefono"]); p != "" {
		return p
	}
	return nil
}

func cleanPhone(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ".0")
}

// deriveMarcaNormalizada fixes known misspellings when a brand is present,
// and otherwise tries to recover the brand from the campaign string's second
// token, accepting only known automotive brands (title-cased). Anything else
// is nil.
func deriveMarcaNormalizada(rec Record) any {
	if marca, ok := rec["marca"].(string); ok && marca != "" {
		if fixed, bad := brandFixes[marca]; bad {
			return fixed
		}
		return marca
	}

	campana, ok := rec["campana"].(string)
	if !ok {
		return nil
	}
	parts := strings.Fields(campana)
	if len(parts) < 2 {
		return nil
	}
	guess := strings.ToLower(strings.TrimSpace(parts[1]))
	if !refdata.IsBrand(guess) {
		return nil
	}
	return brandTitle.String(guess)
}

// deriveTipoDeLead reads the campaign string's first token: "vn" is a
// new-vehicle lead, "vo" a used-vehicle lead. Any other prefix, or an empty
// campaign, yields nil.
func deriveTipoDeLead(rec Record) any {
	campana, ok := rec["campana"].(string)
	if !ok {
		return nil
	}
	parts := strings.Fields(campana)
	if len(parts) == 0 {
		return nil
	}
	if t, ok := leadTypeByPrefix[strings.ToLower(parts[0])]; ok {
		return t
	}
	return nil
}

// deriveTipoVenta uses the sale-type field when it carries a value, and
// falls back to the campaign string's first token otherwise. A
// whitespace-only sale type still counts as a value and yields the trimmed
// empty string, never the campaign fallback.
func deriveTipoVenta(rec Record) any {
	if tv, ok := rec["tipo_venta"].(string); ok && tv != "" {
		return strings.TrimSpace(tv)
	}
	campana, ok := rec["campana"].(string)
	if !ok {
		return nil
	}
	parts := strings.Fields(campana)
	if len(parts) == 0 {
		return nil
	}
	return strings.TrimSpace(parts[0])
}

// deriveFuente buckets the lead origin into a traffic source. Unmapped and
// missing origins land in "sin_fuente".
func deriveFuente(rec Record) any {
	origen, ok := rec["origen_lead"].(string)
	if !ok {
		return "sin_fuente"
	}
	if s, ok := refdata.SourceFor(origen); ok {
		return s
	}
	return "sin_fuente"
}
