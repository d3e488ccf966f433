package soil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddFactGetFactRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := map[string]any{"title": "x", "description": "hello world"}
	f, err := s.AddFact(ctx, TypeNote, payload, nil, time.Time{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.ID, "soil_"))
	assert.Equal(t, FidelityFull, f.Fidelity)

	got, err := s.GetFact(f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.IntegrityHash, got.IntegrityHash)
	assert.JSONEq(t, `{"title":"x","description":"hello world"}`, string(got.Data))
}

func TestAmendFactSupersession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f1, err := s.AddFact(ctx, TypeNote, map[string]any{"description": "x"}, nil, time.Time{})
	require.NoError(t, err)

	f2, err := s.AmendFact(ctx, f1.ID, TypeNote, map[string]any{"description": "y", "supersedes": f1.ID}, nil, time.Time{})
	require.NoError(t, err)

	reread, err := s.GetFact(f1.ID)
	require.NoError(t, err)
	require.NotNil(t, reread.SupersededBy)
	assert.Equal(t, f2.ID, *reread.SupersededBy)

	facts, _, err := s.ListFacts(FactFilter{Type: TypeNote, OnlyNotSuperseded: true})
	require.NoError(t, err)
	for _, f := range facts {
		assert.NotEqual(t, f1.ID, f.ID)
	}

	rels, err := s.QuerySystemRelationsFor(f2.ID, f1.ID, RelSupersedes)
	require.NoError(t, err)
	require.Len(t, rels, 1)
}

func TestAddSystemRelationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1, err := s.AddSystemRelation(ctx, RelResultOf, "soil_a", "Action", "soil_b", "ActionResult", nil, nil)
	require.NoError(t, err)

	r2, err := s.AddSystemRelation(ctx, RelResultOf, "soil_a", "Action", "soil_b", "ActionResult", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
}

func TestSearchFactsByContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddFact(ctx, TypeNote, map[string]any{"title": "Grocery list", "description": "buy milk and eggs"}, nil, time.Time{})
	require.NoError(t, err)
	_, err = s.AddFact(ctx, TypeNote, map[string]any{"title": "Unrelated", "description": "nothing in common"}, nil, time.Time{})
	require.NoError(t, err)

	results, _, err := s.SearchFacts("milk", CoverageContent, EffortStandard, TypeNote, 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, string(results[0].Data), "milk")
}
