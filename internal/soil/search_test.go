package soil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedIsDeterministicAndNormalized(t *testing.T) {
	v1 := hashEmbed([]string{"garden", "memo", "garden"})
	v2 := hashEmbed([]string{"garden", "memo", "garden"})
	assert.Equal(t, v1, v2)

	var sumSq float64
	for _, x := range v1 {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-6, "a non-empty embedding should be L2-normalized")
}

func TestHashEmbedEmptyTermsIsZeroVector(t *testing.T) {
	v := hashEmbed(nil)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestEncodeVectorRoundTripsAsJSONArrayText(t *testing.T) {
	v := hashEmbed([]string{"memo"})
	s := encodeVector(v)
	assert.True(t, len(s) > 2)
	assert.Equal(t, byte('['), s[0])
	assert.Equal(t, byte(']'), s[len(s)-1])
}

func TestQuickCachePrefixFallback(t *testing.T) {
	c := newQuickCache()
	c.put("names||memo garden", []string{"soil_a", "soil_b"})

	got, ok := c.get("names||memo garden plan")
	require.True(t, ok, "a longer miss should fall back to the longest cached prefix")
	assert.Equal(t, []string{"soil_a", "soil_b"}, got)

	_, ok = c.get("completely unrelated query")
	assert.False(t, ok)
}

func TestQuickCacheEvictsOldestPastCap(t *testing.T) {
	c := newQuickCache()
	for i := 0; i < quickCacheCap+10; i++ {
		c.put(fmt.Sprintf("key-%d", i), []string{"x"})
	}
	assert.LessOrEqual(t, len(c.t.Keys()), quickCacheCap)
}

func TestSearchFactsDeepEffortFindsCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddFact(ctx, TypeNote, map[string]any{
		"title": "Weekend plan", "description": "hike near the garden trail",
	}, nil, time.Time{})
	require.NoError(t, err)

	results, _, err := s.SearchFacts("garden", CoverageContent, EffortDeep, TypeNote, 10, "")
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearchFactsQuickEffortUsesCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddFact(ctx, TypeNote, map[string]any{
		"title": "Reading list", "description": "finish the novel",
	}, nil, time.Time{})
	require.NoError(t, err)

	first, _, err := s.SearchFacts("novel", CoverageContent, EffortQuick, TypeNote, 10, "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, _, err := s.SearchFacts("novel", CoverageContent, EffortQuick, TypeNote, 10, "")
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, second[0].ID)
}
