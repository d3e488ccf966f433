package relations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden/internal/ids"
)

func TestFactSignificanceOrphanedWithoutInboundRelations(t *testing.T) {
	e := newTestEngine(t)
	sig, err := e.FactSignificance("soil_lonely")
	require.NoError(t, err)
	assert.True(t, sig.Orphaned)
}

func TestFactSignificanceIsMaxInboundAliveHorizon(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	today := ids.CurrentDay()

	_, err := e.Link(ctx, "refers_to", "core_a", "Artifact", "soil_f", "Note", today+5, 1, nil, nil)
	require.NoError(t, err)
	_, err = e.Link(ctx, "mentions", "core_b", "Artifact", "soil_f", "Note", today+9, 1, nil, nil)
	require.NoError(t, err)

	sig, err := e.FactSignificance("soil_f")
	require.NoError(t, err)
	assert.False(t, sig.Orphaned)
	assert.Equal(t, today+9, sig.Value)
}

func TestFactSignificanceIgnoresExpiredRelations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// A horizon far in the past: the row is stored alive, but day 10 is
	// long before today, so the relation is already expired.
	_, err := e.Link(ctx, "refers_to", "core_a", "Artifact", "soil_f", "Note", 10, 1, nil, nil)
	require.NoError(t, err)

	sig, err := e.FactSignificance("soil_f")
	require.NoError(t, err)
	assert.True(t, sig.Orphaned)
}
