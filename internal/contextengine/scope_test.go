package contextengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
	assert.False(t, contains(nil, "a"))
}

func TestWithoutRemovesOnlyMatchingEntries(t *testing.T) {
	out := without([]string{"a", "b", "a", "c"}, "a")
	assert.Equal(t, []string{"b", "c"}, out)
}

func TestWithoutOnMissingValueIsNoOp(t *testing.T) {
	out := without([]string{"a", "b"}, "z")
	assert.Equal(t, []string{"a", "b"}, out)
}
