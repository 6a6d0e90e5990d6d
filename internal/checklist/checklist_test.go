package checklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForRoomType(t *testing.T) {
	def, err := ForRoomType("habitacion")
	require.NoError(t, err)
	assert.Equal(t, "habitacion", def.RoomType)
	assert.NotEmpty(t, def.Steps)

	_, err = ForRoomType("garaje")
	assert.Error(t, err)
}

func TestDefinitionsAreWellFormed(t *testing.T) {
	for _, rt := range RoomTypes() {
		def, err := ForRoomType(rt)
		require.NoError(t, err)

		seen := map[int]bool{}
		prev := 0
		for _, s := range def.Steps {
			assert.False(t, seen[s.ID], "%s: duplicate step id %d", rt, s.ID)
			seen[s.ID] = true
			assert.Greater(t, s.ID, prev, "%s: step ids must be ordered", rt)
			prev = s.ID
			assert.NotEmpty(t, s.Title, "%s: step %d has no title", rt, s.ID)
			if s.PhotoRequired() {
				assert.NotEmpty(t, s.Expectation,
					"%s: photo-gated step %d needs expectation text", rt, s.ID)
			}
		}
	}
}
