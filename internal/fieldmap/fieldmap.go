// Package fieldmap translates between the localized (Spanish, wire/UI)
// field schema and the canonical (English, storage) field schema.
//
// The mapping is a fixed symmetric table applied exactly once at each
// system boundary: inbound payloads are canonicalized before any logic
// sees them, and stored records are localized on the way out. Unknown
// fields pass through untranslated so forward-compatible extras survive
// a round trip.
package fieldmap

// operationFields maps localized top-level operation field names to their
// canonical equivalents.
var operationFields = map[string]string{
	"habitacion": "room",
	"tipo":       "roomType",
	"horaInicio": "startTime",
	"horaFin":    "endTime",
	"sesionId":   "sessionId",
	"completada": "complete",
	"fallida":    "failed",
	"fotoFallo":  "failurePhoto",
	"razon":      "reason",
	"pasos":      "steps",
	"creadoEn":   "createdAt",
	"editadoEn":  "updatedAt",
}

// stepFields maps localized step field names to their canonical equivalents.
var stepFields = map[string]string{
	"horaInicio":       "startTime",
	"horaCompletado":   "completedTime",
	"duracionSegundos": "elapsedSeconds",
	"foto":             "photo",
	"validacion":       "verdict",
	"corregido":        "corrected",
	"ignorado":         "ignored",
	"fallido":          "failed",
	"categoriaFoto":    "photoCategory",
}

// verdictFields maps localized verdict field names to their canonical
// equivalents.
var verdictFields = map[string]string{
	"valido":     "valid",
	"esperado":   "expected",
	"encontrado": "found",
}

var (
	operationFieldsInv = invert(operationFields)
	stepFieldsInv      = invert(stepFields)
	verdictFieldsInv   = invert(verdictFields)
)

func invert(m map[string]string) map[string]string {
	inv := make(map[string]string, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}

// ToCanonical translates a localized operation payload into canonical field
// names, recursing into the steps array and each step's verdict.
func ToCanonical(localized map[string]any) map[string]any {
	return translateOperation(localized, operationFields, stepFields, verdictFields, "pasos")
}

// ToLocalized translates a canonical operation record into localized field
// names for the wire.
func ToLocalized(canonical map[string]any) map[string]any {
	return translateOperation(canonical, operationFieldsInv, stepFieldsInv, verdictFieldsInv, "steps")
}

func translateOperation(in map[string]any, opTable, stepTable, verdictTable map[string]string, stepsKey string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == stepsKey {
			out[rename(k, opTable)] = translateSteps(v, stepTable, verdictTable)
			continue
		}
		out[rename(k, opTable)] = v
	}
	return out
}

func translateSteps(v any, stepTable, verdictTable map[string]string) any {
	steps, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(steps))
	for i, s := range steps {
		sm, ok := s.(map[string]any)
		if !ok {
			out[i] = s
			continue
		}
		ts := make(map[string]any, len(sm))
		for k, val := range sm {
			canonical := rename(k, stepTable)
			if canonical == "verdict" || k == "verdict" {
				if vm, ok := val.(map[string]any); ok {
					val = translateFlat(vm, verdictTable)
				}
			}
			ts[canonical] = val
		}
		out[i] = ts
	}
	return out
}

func translateFlat(in map[string]any, table map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[rename(k, table)] = v
	}
	return out
}

// rename returns the mapped name for known fields and the original name
// for unknown ones.
func rename(k string, table map[string]string) string {
	if mapped, ok := table[k]; ok {
		return mapped
	}
	return k
}
