package relations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden/internal/coordinator"
	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/soil"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	soilStore, err := soil.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { soilStore.Close() })
	coreStore, err := core.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { coreStore.Close() })
	coord := coordinator.New(soilStore, coreStore, 200*time.Millisecond, nil)
	return NewEngine(coord, nil, nil)
}

func TestLinkAcceptsExplicitLinkKind(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	r, err := e.Link(ctx, "explicit_link", "core_a", "Artifact", "core_b", "Note", ids.CurrentDay()+7, 1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "explicit_link", r.Kind)

	_, err = e.Link(ctx, "result_of", "core_a", "Artifact", "core_b", "Note", ids.CurrentDay()+7, 1, nil, nil)
	require.Error(t, err)
}

func TestLinkKeepsEvidenceDistinctFromMetadata(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	r, err := e.Link(ctx, "relates_to", "core_a", "Artifact", "core_b", "Artifact", 30, 1.0,
		map[string]any{"source": "user_note"}, map[string]any{"ui_color": "blue"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"user_note"}`, string(r.Evidence))
	assert.JSONEq(t, `{"ui_color":"blue"}`, string(r.Metadata))
}

func TestSweepFossilizationCarriesEvidenceNotMetadata(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	const createdDay = 100
	var r *core.UserRelation
	withToday(createdDay, func() {
		var err error
		r, err = e.Link(ctx, "relates_to", "core_a", "Artifact", "core_b", "Artifact", createdDay+2, 1.0,
			map[string]any{"source": "user_note"}, map[string]any{"ui_color": "blue"})
		require.NoError(t, err)
	})

	withToday(createdDay+2+GraceDays+1, func() {
		res, err := e.Sweep(ctx, false)
		require.NoError(t, err)
		require.Contains(t, res.FossilizedRelationIDs, r.ID)
	})

	soilID, err := ids.Repin(r.ID, ids.Soil)
	require.NoError(t, err)
	sysRel, err := e.Coord.Soil.GetSystemRelation(soilID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"user_note"}`, string(sysRel.Evidence))
	assert.Empty(t, sysRel.Metadata, "metadata is not carried over on fossilization, only evidence")

	_, err = e.Coord.Core.GetUserRelation(r.ID)
	assert.Error(t, err, "relation is removed from core once fossilized")
}
