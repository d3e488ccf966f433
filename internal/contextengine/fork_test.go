package contextengine

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

func newCoreTx(t *testing.T) *sql.Tx {
	t.Helper()
	s, err := core.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	tx, err := s.DB().Begin()
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

func TestForkSnapshotsParentContainersWithoutSharing(t *testing.T) {
	tx := newCoreTx(t)
	now := ids.NowFunc().UTC()

	_, err := RecordAccessTx(tx, "op-1", OwnerOperator, "core_a", "Artifact", 7, 5*time.Second, now)
	require.NoError(t, err)

	_, childFd, deltas, err := ForkTx(tx, "op-1", OwnerOperator, "agent-9")
	require.NoError(t, err)
	require.NotEmpty(t, deltas)
	assert.Equal(t, []string{"core_a"}, childFd.Containers)
	assert.Equal(t, OwnerAgent, childFd.OwnerType)
	require.NotNil(t, childFd.ParentFrame)

	// The child's later accesses never leak back into the parent.
	_, err = RecordAccessTx(tx, "agent-9", OwnerAgent, "core_b", "Artifact", 7, 5*time.Second, now)
	require.NoError(t, err)

	_, parentFd, err := FindFrameTx(tx, "op-1", OwnerOperator)
	require.NoError(t, err)
	assert.Equal(t, []string{"core_a"}, parentFd.Containers)

	_, childNow, err := FindFrameTx(tx, "agent-9", OwnerAgent)
	require.NoError(t, err)
	assert.Equal(t, []string{"core_b", "core_a"}, childNow.Containers)
}

func TestRejoinLinksViewMergeAndDestroysChildFrame(t *testing.T) {
	tx := newCoreTx(t)
	now := ids.NowFunc().UTC()

	_, err := RecordAccessTx(tx, "op-1", OwnerOperator, "core_a", "Artifact", 7, 5*time.Second, now)
	require.NoError(t, err)
	_, _, _, err = ForkTx(tx, "op-1", OwnerOperator, "agent-9")
	require.NoError(t, err)
	_, err = RecordAccessTx(tx, "agent-9", OwnerAgent, "core_b", "Artifact", 7, 5*time.Second, now)
	require.NoError(t, err)

	_, childFd, err := FindFrameTx(tx, "agent-9", OwnerAgent)
	require.NoError(t, err)
	require.NotNil(t, childFd.ViewHead)
	childViewHead := *childFd.ViewHead

	deltas, err := RejoinTx(tx, "agent-9", now)
	require.NoError(t, err)
	require.NotEmpty(t, deltas)

	// Rejoin leaves the parent's containers untouched (round-trip law);
	// only the ViewMerge is linked at the head of its stream.
	_, parentFd, err := FindFrameTx(tx, "op-1", OwnerOperator)
	require.NoError(t, err)
	assert.Equal(t, []string{"core_a"}, parentFd.Containers)
	require.NotNil(t, parentFd.ViewHead)

	mergeEntity, err := core.GetEntityTx(tx, *parentFd.ViewHead)
	require.NoError(t, err)
	assert.Equal(t, core.TypeViewMerge, mergeEntity.Type)
	merge, err := unmarshalView(mergeEntity.Data)
	require.NoError(t, err)
	assert.Equal(t, []string{childViewHead}, merge.MergedViews)

	// The child frame is destroyed: no longer findable by owner.
	_, _, err = FindFrameTx(tx, "agent-9", OwnerAgent)
	me, ok := memerr.As(err)
	require.True(t, ok)
	assert.Equal(t, memerr.NotFound, me.Code)
}

func TestRejoinWithoutParentFails(t *testing.T) {
	tx := newCoreTx(t)
	now := ids.NowFunc().UTC()

	_, err := RecordAccessTx(tx, "agent-solo", OwnerAgent, "core_a", "Artifact", 7, 5*time.Second, now)
	require.NoError(t, err)

	_, err = RejoinTx(tx, "agent-solo", now)
	me, ok := memerr.As(err)
	require.True(t, ok)
	assert.Equal(t, memerr.ValidationError, me.Code)
}
