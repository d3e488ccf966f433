package contextengine

import (
	"database/sql"
	"time"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// ForkTx implements the `fork` half of subordinate contexts: a
// subagent forks a subordinate frame from parentOwnerUUID/parentOwnerType,
// owned by the subagent itself (childAgentUUID) and linked back via
// ParentFrame. The child inherits a one-time snapshot copy of the
// parent's containers; nothing further is inherited automatically.
func ForkTx(tx *sql.Tx, parentOwnerUUID string, parentOwnerType OwnerType, childAgentUUID string) (*core.Entity, FrameData, []*core.EntityDeltaRecord, error) {
	pending := &pendingDeltas{}
	parentEntity, parentFrame, parentCreateDelta, err := GetOrCreateFrameTx(tx, parentOwnerUUID, parentOwnerType)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	pending.add(parentCreateDelta)

	snapshot := append([]string{}, parentFrame.Containers...)
	childFrame := FrameData{
		OwnerUUID:    childAgentUUID,
		OwnerType:    OwnerAgent,
		Containers:   snapshot,
		ActiveScopes: []string{},
		ParentFrame:  &parentEntity.ID,
	}
	entity, delta, err := core.CreateEntityTx(tx, core.TypeContextFrame, childFrame, nil, nil)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	pending.add(delta)
	return entity, childFrame, pending.Deltas, nil
}

// RejoinTx implements `rejoin`: a ViewMerge record is appended to
// both parent and child streams referencing the child's final View, and
// the child frame is destroyed (soft-deleted, so lineage stays
// inspectable). The parent's containers are left untouched; only the
// ViewMerge links the two streams.
func RejoinTx(tx *sql.Tx, childAgentUUID string, now time.Time) ([]*core.EntityDeltaRecord, error) {
	pending := &pendingDeltas{}

	childEntity, childFrame, err := FindFrameTx(tx, childAgentUUID, OwnerAgent)
	if err != nil {
		return nil, err
	}
	if childFrame.ParentFrame == nil {
		return nil, memerr.Validation("owner", "frame has no parent; nothing to rejoin")
	}
	parentEntity, err := core.GetEntityTx(tx, *childFrame.ParentFrame)
	if err != nil {
		return nil, err
	}
	parentFrame, err := unmarshalFrame(parentEntity.Data)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	merge := ViewData{
		OwnerFrame:  parentEntity.ID,
		Prev:        parentFrame.ViewHead,
		StartedAt:   now,
		EndedAt:     &now,
		MergedViews: viewHeadList(childFrame.ViewHead),
	}

	parentMergeEntity, parentDelta, err := core.CreateEntityTx(tx, core.TypeViewMerge, merge, nil, nil)
	if err != nil {
		return nil, err
	}
	pending.add(parentDelta)

	childMerge := merge
	childMerge.OwnerFrame = childEntity.ID
	childMerge.Prev = childFrame.ViewHead
	childMergeEntity, childDelta, err := core.CreateEntityTx(tx, core.TypeViewMerge, childMerge, nil, nil)
	if err != nil {
		return nil, err
	}
	pending.add(childDelta)

	parentFrame.ViewHead = &parentMergeEntity.ID
	_, pfDelta, err := saveFrameTx(tx, parentEntity, parentFrame)
	if err != nil {
		return nil, err
	}
	pending.add(pfDelta)

	childFrame.ViewHead = &childMergeEntity.ID
	updatedChild, cfDelta, err := saveFrameTx(tx, childEntity, childFrame)
	if err != nil {
		return nil, err
	}
	pending.add(cfDelta)

	_, forgetDelta, err := core.ForgetEntityTx(tx, updatedChild.ID, updatedChild.Hash)
	if err != nil {
		return nil, err
	}
	pending.add(forgetDelta)

	return pending.Deltas, nil
}

func viewHeadList(head *string) []string {
	if head == nil {
		return nil
	}
	return []string{*head}
}
