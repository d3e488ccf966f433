package coordinator

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/soil"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	soilStore, err := soil.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { soilStore.Close() })
	coreStore, err := core.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { coreStore.Close() })
	return New(soilStore, coreStore, 200*time.Millisecond, nil)
}

func TestCoordinatedSoilFirstCommit(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	var entityID string
	err := c.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error {
		e, _, err := core.CreateEntityTx(coreTx, core.TypeArtifact, map[string]any{"title": "x"}, nil, nil)
		if err != nil {
			return err
		}
		entityID = e.ID
		f, err := soil.BuildFact(soil.TypeEntityDelta, map[string]any{
			"entity_uuid": e.ID, "entity_type": string(e.Type), "commit": e.Hash, "parent": []string{},
		}, nil, time.Time{})
		if err != nil {
			return err
		}
		return c.Soil.InsertFactTx(soilTx, f)
	})
	require.NoError(t, err)

	got, err := c.Core.GetEntity(entityID)
	require.NoError(t, err)
	assert.Equal(t, core.TypeArtifact, got.Type)
	assert.Equal(t, StatusNormal, c.Status())
}

func TestWriterSlotBusyTimeout(t *testing.T) {
	c := newTestCoordinator(t)
	<-c.soilWriter // simulate a held writer slot, never released

	err := c.WithSoilWriter(context.Background(), func(tx *sql.Tx) error { return nil })
	require.Error(t, err)
}

func TestStartupConsistencyCheckDetectsOrphanDelta(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Soil.AddFact(ctx, soil.TypeEntityDelta, map[string]any{
		"entity_uuid": "core_missing", "entity_type": "Artifact", "commit": "deadbeef", "parent": []string{},
	}, nil, time.Time{})
	require.NoError(t, err)

	mismatches, err := c.StartupConsistencyCheck()
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, StatusInconsistent, c.Status())
}

func TestRepairReplaysDeltaChainAndRestoresNormalStatus(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	var entityID, trueHash string
	err := c.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error {
		e, _, err := core.CreateEntityTx(coreTx, core.TypeArtifact, map[string]any{"title": "x"}, nil, nil)
		if err != nil {
			return err
		}
		entityID = e.ID
		trueHash = e.Hash
		f, err := soil.BuildFact(soil.TypeEntityDelta, map[string]any{
			"entity_uuid": e.ID, "entity_type": string(e.Type), "commit": e.Hash, "parent": []string{},
			"ops": map[string]any{"set": map[string]any{"title": "x"}},
		}, nil, time.Time{})
		if err != nil {
			return err
		}
		return c.Soil.InsertFactTx(soilTx, f)
	})
	require.NoError(t, err)

	// Simulate Core drift: corrupt the stored hash directly, bypassing the
	// coordinator, so StartupConsistencyCheck flags it.
	_, err = c.Core.DB().Exec(`UPDATE entities SET hash = ? WHERE id = ?`, "core_corrupted_hash", entityID)
	require.NoError(t, err)

	mismatches, err := c.StartupConsistencyCheck()
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, StatusInconsistent, c.Status())

	res, err := c.Repair(ctx)
	require.NoError(t, err)
	require.Empty(t, res.Unrecoverable)
	require.Contains(t, res.Repaired, entityID)
	assert.Equal(t, StatusNormal, c.Status())

	restored, err := c.Core.GetEntity(entityID)
	require.NoError(t, err)
	assert.Equal(t, trueHash, restored.Hash)
}

func TestRepairReplaysMultiStepDeltaChainInOrder(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	writeDelta := func(soilTx *sql.Tx, e *core.Entity, parent []string, set map[string]any) error {
		f, err := soil.BuildFact(soil.TypeEntityDelta, map[string]any{
			"entity_uuid": e.ID, "entity_type": string(e.Type), "commit": e.Hash, "parent": parent,
			"ops": map[string]any{"set": set},
		}, nil, time.Time{})
		if err != nil {
			return err
		}
		return c.Soil.InsertFactTx(soilTx, f)
	}

	var entityID string
	err := c.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error {
		e, _, err := core.CreateEntityTx(coreTx, core.TypeArtifact, map[string]any{"title": "v1"}, nil, nil)
		if err != nil {
			return err
		}
		entityID = e.ID
		return writeDelta(soilTx, e, []string{}, map[string]any{"title": "v1"})
	})
	require.NoError(t, err)

	prev, err := c.Core.GetEntity(entityID)
	require.NoError(t, err)
	var finalHash string
	err = c.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error {
		e, _, err := core.EditEntityTx(coreTx, entityID, core.SetOps{"title": []byte(`"v2"`)}, nil, prev.Hash)
		if err != nil {
			return err
		}
		finalHash = e.Hash
		return writeDelta(soilTx, e, []string{prev.Hash}, map[string]any{"title": "v2"})
	})
	require.NoError(t, err)

	_, err = c.Core.DB().Exec(`UPDATE entities SET hash = ? WHERE id = ?`, "core_corrupted_hash", entityID)
	require.NoError(t, err)

	res, err := c.Repair(ctx)
	require.NoError(t, err)
	require.Empty(t, res.Unrecoverable)
	require.Contains(t, res.Repaired, entityID)

	restored, err := c.Core.GetEntity(entityID)
	require.NoError(t, err)
	assert.Equal(t, finalHash, restored.Hash)
	assert.Equal(t, 2, restored.Version)
	assert.JSONEq(t, `{"title":"v2"}`, string(restored.Data))
}

func TestReadOnlyRefusesAllWriterEntryPoints(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	c.SetStatus(StatusReadOnly)

	err := c.WithSoilWriter(ctx, func(tx *sql.Tx) error { return nil })
	requirePermissionDenied(t, err)

	err = c.WithCoreWriter(ctx, func(tx *sql.Tx) error { return nil })
	requirePermissionDenied(t, err)

	err = c.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error { return nil })
	requirePermissionDenied(t, err)

	// read_only has no carve-out for recovery either.
	err = c.WithCoreWriterForRecovery(ctx, func(tx *sql.Tx) error { return nil })
	requirePermissionDenied(t, err)
}

func TestSafeModeRefusesOrdinaryWritesButAllowsRecovery(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	c.SetStatus(StatusSafeMode)

	err := c.WithSoilWriter(ctx, func(tx *sql.Tx) error { return nil })
	requirePermissionDenied(t, err)

	err = c.WithCoreWriter(ctx, func(tx *sql.Tx) error { return nil })
	requirePermissionDenied(t, err)

	err = c.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error { return nil })
	requirePermissionDenied(t, err)

	// safe_mode's one permitted write path: recovery.
	err = c.WithCoreWriterForRecovery(ctx, func(tx *sql.Tx) error { return nil })
	require.NoError(t, err)
}

func requirePermissionDenied(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission_denied")
}

func TestRepairReportsUnrecoverableWhenNoDeltaHistory(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	e, err := c.Core.CreateEntity(ctx, core.TypeArtifact, map[string]any{"title": "orphan"}, nil, nil)
	require.NoError(t, err)

	res, err := c.Repair(ctx)
	require.NoError(t, err)
	require.Len(t, res.Unrecoverable, 1)
	assert.Equal(t, e.ID, res.Unrecoverable[0].EntityID)
	assert.Empty(t, res.Repaired)
}
