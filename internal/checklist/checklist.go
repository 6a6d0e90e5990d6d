// Package checklist holds the static per-room-type step definitions.
//
// Definitions are code, not data: the set of room types changes with
// releases, and the session machine depends on stable step ids and
// ordering within each type.
package checklist

import "fmt"

// Step is one checklist item. PhotoCategory is empty for steps that do not
// require photographic evidence; Expectation is the text handed to the AI
// validator and is phrased from the cleaner's point of view.
type Step struct {
	ID            int
	Title         string
	PhotoCategory string
	Expectation   string
}

// Definition is the ordered checklist for one room type.
type Definition struct {
	RoomType string
	Steps    []Step
}

// PhotoRequired reports whether the step must be completed with evidence.
func (s Step) PhotoRequired() bool {
	return s.PhotoCategory != ""
}

var definitions = map[string]Definition{
	"habitacion": {
		RoomType: "habitacion",
		Steps: []Step{
			{ID: 1, Title: "Ventilar la habitación"},
			{ID: 2, Title: "Retirar ropa de cama usada"},
			{ID: 3, Title: "Hacer la cama", PhotoCategory: "cama",
				Expectation: "cama hecha con sábanas limpias y sin arrugas"},
			{ID: 4, Title: "Limpiar superficies y espejos"},
			{ID: 5, Title: "Aspirar y fregar el suelo", PhotoCategory: "suelo",
				Expectation: "suelo limpio, sin manchas ni objetos"},
			{ID: 6, Title: "Reponer amenities"},
		},
	},
	"bano": {
		RoomType: "bano",
		Steps: []Step{
			{ID: 1, Title: "Retirar toallas usadas"},
			{ID: 2, Title: "Limpiar y desinfectar el inodoro", PhotoCategory: "inodoro",
				Expectation: "inodoro limpio y desinfectado, tapa bajada"},
			{ID: 3, Title: "Limpiar ducha y mampara", PhotoCategory: "ducha",
				Expectation: "mampara sin restos de cal ni jabón"},
			{ID: 4, Title: "Limpiar lavabo y espejo"},
			{ID: 5, Title: "Reponer toallas y papel", PhotoCategory: "toallas",
				Expectation: "toallas limpias dobladas y papel repuesto"},
			{ID: 6, Title: "Fregar el suelo"},
		},
	},
	"cocina": {
		RoomType: "cocina",
		Steps: []Step{
			{ID: 1, Title: "Lavar y guardar la vajilla"},
			{ID: 2, Title: "Limpiar encimera y fuegos", PhotoCategory: "encimera",
				Expectation: "encimera despejada, sin restos de comida"},
			{ID: 3, Title: "Limpiar el interior del microondas"},
			{ID: 4, Title: "Revisar y limpiar la nevera", PhotoCategory: "nevera",
				Expectation: "nevera sin alimentos caducados y limpia"},
			{ID: 5, Title: "Sacar la basura", PhotoCategory: "basura",
				Expectation: "cubo vacío con bolsa nueva"},
			{ID: 6, Title: "Fregar el suelo"},
		},
	},
	"salon": {
		RoomType: "salon",
		Steps: []Step{
			{ID: 1, Title: "Ordenar cojines y mantas"},
			{ID: 2, Title: "Quitar el polvo de muebles y pantallas"},
			{ID: 3, Title: "Aspirar sofá y alfombras", PhotoCategory: "sofa",
				Expectation: "sofá ordenado con cojines colocados"},
			{ID: 4, Title: "Fregar el suelo", PhotoCategory: "suelo",
				Expectation: "suelo limpio, sin manchas ni objetos"},
		},
	},
}

// ForRoomType returns the checklist definition for a room type.
func ForRoomType(roomType string) (Definition, error) {
	def, ok := definitions[roomType]
	if !ok {
		return Definition{}, fmt.Errorf("checklist: unknown room type %q", roomType)
	}
	return def, nil
}

// RoomTypes returns the known room types.
func RoomTypes() []string {
	types := make([]string, 0, len(definitions))
	for t := range definitions {
		types = append(types, t)
	}
	return types
}
