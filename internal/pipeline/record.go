package pipeline

// Record is one transformed lead/appointment event, keyed by canonical column
// name. Values are nil, string, int64, float64 or time.Time depending on the
// field's coercion policy. A Record is immutable once emitted by a Stream.
type Record map[string]any

// canonicalColumns is the de-duplicated field-name set of the CRM export
// after column normalization, in export order. Exports may omit trailing
// fields; the pipeline only emits keys that were actually present.
var canonicalColumns = []string{
	"lead_id",
	"lead_tipo",
	"origen_lead",
	"detalle_origen_lead",
	"detalle_origen_raw",
	"observaciones",
	"link_ficha",
	"campana",
	"usuario_creacion_lead",
	"cita_id",
	"estado_cita",
	"motivo_no_compra",
	"usuario_alta",
	"lead_creacion",
	"primera_llamada",
	"ultima_llamada",
	"fecha_agendada",
	"fecha_modificacion",
	"usuario_ultima_modificacion",
	"fecha_venta",
	"paga_y_senal",
	"usuario_asignado_lead",
	"vendedor_nombre",
	"vendedor_apellido",
	"asistencia",
	"centro",
	"cliente_nombre",
	"cliente_apellidos",
	"cliente_razon_social",
	"cliente_tipo",
	"cliente_cp",
	"cliente_provincia",
	"cliente_telefono",
	"cliente_movil",
	"cliente_email",
	"marca",
	"modelo",
	"motor",
	"kilometros",
	"combustible",
	"matricula",
	"tipo_venta",
	"vendedor_apellido_1",
	"vendedor_telefono",
	"vendedor_email",
	"gclid",
	"gad_source",
	"utm_source",
	"utm_medium",
	"utm_campaign",
}

// derivedColumns are appended to every Record by the derivation stage.
var derivedColumns = []string{
	"equipo",
	"tiempo_de_respuesta_minutos",
	"tiempo_de_respuesta_horas",
	"tiempo_de_respuesta_dias",
	"telefono_unificado",
	"marca_normalizada",
	"tipo_de_lead",
	"tipo_venta_normalizado",
	"fuente",
}

// OutputColumns returns the full output field-name contract in canonical
// order: the normalized export columns followed by the derived columns.
// The returned slice is a copy; callers may reorder it.
func OutputColumns() []string {
	out := make([]string, 0, len(canonicalColumns)+len(derivedColumns))
	out = append(out, canonicalColumns...)
	out = append(out, derivedColumns...)
	return out
}
