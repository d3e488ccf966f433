package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactParamsNoPatternsReturnsOriginal(t *testing.T) {
	params := map[string]any{"a": 1}
	out := redactParams(params, nil)
	out["a"] = 2
	assert.Equal(t, 2, params["a"], "with no patterns, redactParams must return the same map, not a copy")
}

func TestRedactParamsTopLevelAndNested(t *testing.T) {
	params := map[string]any{
		"username": "alice",
		"password": "hunter2",
		"metadata": map[string]any{
			"credentials": "should-go",
			"note":        "keep me",
		},
	}

	out := redactParams(params, DefaultRedactedParamPaths)
	require.NotNil(t, out)

	assert.Equal(t, "alice", out["username"])
	assert.Equal(t, RedactedSentinel, out["password"])

	nested, ok := out["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, RedactedSentinel, nested["credentials"])
	assert.Equal(t, "keep me", nested["note"])

	// original is untouched
	assert.Equal(t, "hunter2", params["password"])

	ReleaseRedacted(out)
}

func TestRedactParamsWildcardSegmentMatchesAnyKey(t *testing.T) {
	params := map[string]any{
		"oauth": map[string]any{"token": "abc123"},
	}
	out := redactParams(params, []string{"*.token"})
	nested := out["oauth"].(map[string]any)
	assert.Equal(t, RedactedSentinel, nested["token"])
	ReleaseRedacted(out)
}
