package contextengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromoteMovesIDToFront(t *testing.T) {
	out := promote([]string{"a", "b", "c"}, "b", 7)
	assert.Equal(t, []string{"b", "a", "c"}, out)
}

func TestPromoteDeduplicatesExistingEntry(t *testing.T) {
	out := promote([]string{"a", "b"}, "a", 7)
	assert.Equal(t, []string{"a", "b"}, out)
	for _, id := range out {
		n := 0
		for _, other := range out {
			if other == id {
				n++
			}
		}
		assert.Equal(t, 1, n, "no identifier should appear twice")
	}
}

func TestPromoteTruncatesToN(t *testing.T) {
	out := promote([]string{"a", "b", "c", "d", "e"}, "f", 3)
	assert.Len(t, out, 3)
	assert.Equal(t, []string{"f", "a", "b"}, out)
}

func TestPromoteNewIDAlwaysLeads(t *testing.T) {
	out := promote(nil, "only", 7)
	assert.Equal(t, []string{"only"}, out)
}
