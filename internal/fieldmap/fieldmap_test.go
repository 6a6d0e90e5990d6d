package fieldmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localizedFixture() map[string]any {
	return map[string]any{
		"id":         "op-7",
		"habitacion": "Garden",
		"tipo":       "habitacion",
		"horaInicio": "2026-03-14T09:30:00Z",
		"horaFin":    "2026-03-14T10:15:00Z",
		"sesionId":   "visit-3",
		"completada": true,
		"razon":      "cierre normal",
		"pasos": []any{
			map[string]any{
				"id":               float64(1),
				"horaInicio":       "2026-03-14T09:30:00Z",
				"horaCompletado":   "2026-03-14T09:40:00Z",
				"duracionSegundos": float64(600),
				"foto":             "photos/op-7/1.jpg",
				"categoriaFoto":    "cama",
				"corregido":        true,
				"validacion": map[string]any{
					"valido":     true,
					"esperado":   "cama hecha con sábanas limpias",
					"encontrado": "cama correctamente hecha",
				},
			},
			map[string]any{
				"id":         float64(2),
				"horaInicio": "2026-03-14T09:40:00Z",
				"ignorado":   true,
			},
		},
	}
}

func TestToCanonical(t *testing.T) {
	got := ToCanonical(localizedFixture())

	assert.Equal(t, "Garden", got["room"])
	assert.Equal(t, "habitacion", got["roomType"])
	assert.Equal(t, "2026-03-14T09:30:00Z", got["startTime"])
	assert.Equal(t, "2026-03-14T10:15:00Z", got["endTime"])
	assert.Equal(t, "visit-3", got["sessionId"])
	assert.Equal(t, true, got["complete"])
	assert.Equal(t, "cierre normal", got["reason"])

	// Localized names must not leak through.
	assert.NotContains(t, got, "habitacion")
	assert.NotContains(t, got, "pasos")

	steps, ok := got["steps"].([]any)
	require.True(t, ok)
	require.Len(t, steps, 2)

	first := steps[0].(map[string]any)
	assert.Equal(t, "2026-03-14T09:40:00Z", first["completedTime"])
	assert.Equal(t, float64(600), first["elapsedSeconds"])
	assert.Equal(t, "photos/op-7/1.jpg", first["photo"])
	assert.Equal(t, "cama", first["photoCategory"])
	assert.Equal(t, true, first["corrected"])

	verdict, ok := first["verdict"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, verdict["valid"])
	assert.Equal(t, "cama hecha con sábanas limpias", verdict["expected"])
	assert.Equal(t, "cama correctamente hecha", verdict["found"])

	second := steps[1].(map[string]any)
	assert.Equal(t, true, second["ignored"])
}

func TestRoundTrip(t *testing.T) {
	in := localizedFixture()
	out := ToLocalized(ToCanonical(localizedFixture()))
	assert.Equal(t, in, out)
}

func TestUnknownFieldsPassThrough(t *testing.T) {
	in := map[string]any{
		"id":          "op-1",
		"habitacion":  "Garden",
		"extraCampo":  "se conserva",
		"clientBuild": float64(412),
		"pasos": []any{
			map[string]any{"id": float64(1), "notaLibre": "hola"},
		},
	}

	canonical := ToCanonical(in)
	assert.Equal(t, "se conserva", canonical["extraCampo"])
	assert.Equal(t, float64(412), canonical["clientBuild"])
	step := canonical["steps"].([]any)[0].(map[string]any)
	assert.Equal(t, "hola", step["notaLibre"])

	back := ToLocalized(canonical)
	assert.Equal(t, in, back)
}

func TestTranslationIsAppliedOnce(t *testing.T) {
	// Canonicalizing an already-canonical map must be a no-op for mapped
	// fields (they are unknown to the localized table), so an accidental
	// double application cannot corrupt field names.
	canonical := ToCanonical(localizedFixture())
	again := ToCanonical(canonical)
	assert.Equal(t, canonical["room"], again["room"])
	assert.Equal(t, canonical["startTime"], again["startTime"])
}
