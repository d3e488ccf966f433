package relations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
	"github.com/memogarden/memogarden/internal/soil"
)

func TestExploreRefusesRadiusAboveHardCap(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Explore("core_a", DirBoth, ExploreRadiusCap+1, "", 0)
	me, ok := memerr.As(err)
	require.True(t, ok)
	assert.Equal(t, memerr.ValidationError, me.Code)
}

func TestExploreWalksUserAndSystemEdges(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	horizon := ids.CurrentDay() + 10

	_, err := e.Link(ctx, "refers_to", "core_a", "Artifact", "core_b", "Artifact", horizon, 1, nil, nil)
	require.NoError(t, err)
	_, err = e.Link(ctx, "refers_to", "core_b", "Artifact", "core_c", "Artifact", horizon, 1, nil, nil)
	require.NoError(t, err)
	_, err = e.Coord.Soil.AddSystemRelation(ctx, soil.RelCites, "core_a", "Artifact", "core_x", "Note", nil, nil)
	require.NoError(t, err)

	res, err := e.Explore("core_a", DirOutgoing, 2, "", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"core_a", "core_b", "core_c", "core_x"}, res.Nodes)

	// One hop only reaches the direct neighbors.
	res, err = e.Explore("core_a", DirOutgoing, 1, "", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"core_a", "core_b", "core_x"}, res.Nodes)

	// Incoming direction walks edges the other way.
	res, err = e.Explore("core_b", DirIncoming, 1, "", 0)
	require.NoError(t, err)
	assert.Contains(t, res.Nodes, "core_a")
	assert.NotContains(t, res.Nodes, "core_c")
}

func TestExploreKindFilterAndNodeCap(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	horizon := ids.CurrentDay() + 10

	_, err := e.Link(ctx, "refers_to", "core_a", "Artifact", "core_b", "Artifact", horizon, 1, nil, nil)
	require.NoError(t, err)
	_, err = e.Coord.Soil.AddSystemRelation(ctx, soil.RelCites, "core_a", "Artifact", "core_x", "Note", nil, nil)
	require.NoError(t, err)

	res, err := e.Explore("core_a", DirOutgoing, 1, "cites", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"core_a", "core_x"}, res.Nodes)

	res, err = e.Explore("core_a", DirOutgoing, 1, "", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Nodes), 2)
}

func TestExploreTerminatesOnCycles(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	horizon := ids.CurrentDay() + 10

	_, err := e.Link(ctx, "refers_to", "core_a", "Artifact", "core_b", "Artifact", horizon, 1, nil, nil)
	require.NoError(t, err)
	_, err = e.Link(ctx, "refers_to", "core_b", "Artifact", "core_a", "Artifact", horizon, 1, nil, nil)
	require.NoError(t, err)

	res, err := e.Explore("core_a", DirBoth, ExploreRadiusCap, "", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"core_a", "core_b"}, res.Nodes)
}
