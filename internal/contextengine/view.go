package contextengine

import (
	"database/sql"
	"time"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// pendingDeltas threads EntityDelta records produced by bookkeeping writes
// (frame/view edits triggered automatically by a mutation) back to the
// caller, which must insert them into Soil in the same coordinated
// transaction as the triggering mutation. These are not routed back
// through capture/append themselves — only verb-level mutations trigger
// automatic capture, which keeps the bookkeeping from recursing into
// itself.
type pendingDeltas struct {
	Deltas []*core.EntityDeltaRecord
}

func (p *pendingDeltas) add(d *core.EntityDeltaRecord) {
	if d != nil {
		p.Deltas = append(p.Deltas, d)
	}
}

func loadViewTx(tx *sql.Tx, id string) (*core.Entity, ViewData, error) {
	e, err := core.GetEntityTx(tx, id)
	if err != nil {
		return nil, ViewData{}, err
	}
	vd, err := unmarshalView(e.Data)
	if err != nil {
		return nil, ViewData{}, memerr.Internal(ids.DiagnosticID(), err)
	}
	return e, vd, nil
}

// coalesces reports whether a new action with the given primary scope,
// arriving at "now", may append to the still-open view vd (last action at
// lastActionAt) rather than starting a fresh one.
func coalesces(vd ViewData, lastActionAt time.Time, now time.Time, primaryScope string, timeout time.Duration) bool {
	if vd.EndedAt != nil {
		return false
	}
	if now.Sub(lastActionAt) > timeout {
		return false
	}
	if vd.PrimaryScope != "" && primaryScope != "" && vd.PrimaryScope != primaryScope {
		return false
	}
	if len(vd.Actions) > 0 && vd.Actions[len(vd.Actions)-1].Kind == ActionBreak {
		return false
	}
	return true
}

// appendToFrameViewTx appends one action to frameID's current View,
// starting a fresh View when coalescence fails, and repoints the frame's
// view_head as needed. Every entity write this performs is recorded as a
// pending EntityDelta for the caller to persist.
func appendToFrameViewTx(tx *sql.Tx, frameEntity *core.Entity, fd FrameData, action ViewAction, timeout time.Duration, pending *pendingDeltas) (FrameData, error) {
	now := action.At
	var cur *core.Entity
	var curData ViewData
	var canCoalesce bool

	if fd.ViewHead != nil {
		var err error
		cur, curData, err = loadViewTx(tx, *fd.ViewHead)
		if err != nil {
			if me, ok := memerr.As(err); !ok || me.Code != memerr.NotFound {
				return fd, err
			}
		} else {
			lastAt := curData.StartedAt
			if len(curData.Actions) > 0 {
				lastAt = curData.Actions[len(curData.Actions)-1].At
			}
			canCoalesce = coalesces(curData, lastAt, now, action.Scope, timeout)
		}
	}

	if canCoalesce {
		curData.Actions = append(curData.Actions, action)
		_, delta, err := saveViewTx(tx, cur, curData)
		if err != nil {
			return fd, err
		}
		pending.add(delta)
		return fd, nil
	}

	if cur != nil && curData.EndedAt == nil {
		ended := now
		curData.EndedAt = &ended
		_, delta, err := saveViewTx(tx, cur, curData)
		if err != nil {
			return fd, err
		}
		pending.add(delta)
	}

	newView := ViewData{
		OwnerFrame:   frameEntity.ID,
		Prev:         fd.ViewHead,
		StartedAt:    now,
		Actions:      []ViewAction{action},
		PrimaryScope: action.Scope,
	}
	entity, delta, err := core.CreateEntityTx(tx, core.TypeView, newView, nil, nil)
	if err != nil {
		return fd, err
	}
	pending.add(delta)
	fd.ViewHead = &entity.ID
	return fd, nil
}

func saveViewTx(tx *sql.Tx, e *core.Entity, vd ViewData) (*core.Entity, *core.EntityDeltaRecord, error) {
	set, err := fieldSetFrom(vd)
	if err != nil {
		return nil, nil, err
	}
	return core.EditEntityTx(tx, e.ID, set, nil, e.Hash)
}

// AppendMutationEventTx appends a mutation event to the current Views of
// (i) the acting owner's frame and (ii) every currently-active scope
// frame. Suspended scope frames (one the owner `leave`-ed) are skipped.
// Returns
// every EntityDelta produced so the caller writes them to Soil within the
// same coordinated transaction as the mutation itself, and the containers
// snapshot for automatic capture.
func AppendMutationEventTx(tx *sql.Tx, ownerUUID string, ownerType OwnerType, targetID string, now time.Time, coalescenceTimeout time.Duration) (containers []string, deltas []*core.EntityDeltaRecord, err error) {
	pending := &pendingDeltas{}

	ownerFrameEntity, ownerFrame, createDelta, err := GetOrCreateFrameTx(tx, ownerUUID, ownerType)
	if err != nil {
		return nil, nil, err
	}
	pending.add(createDelta)

	primaryScope := ""
	if ownerFrame.PrimaryScope != nil {
		primaryScope = *ownerFrame.PrimaryScope
	}

	action := ViewAction{Kind: ActionMutation, TargetID: targetID, Scope: primaryScope, At: now}
	ownerFrame, err = appendToFrameViewTx(tx, ownerFrameEntity, ownerFrame, action, coalescenceTimeout, pending)
	if err != nil {
		return nil, nil, err
	}
	_, frameDelta, err := saveFrameTx(tx, ownerFrameEntity, ownerFrame)
	if err != nil {
		return nil, nil, err
	}
	pending.add(frameDelta)

	captured := ownerFrame.Containers

	for _, scope := range ownerFrame.ActiveScopes {
		scopeEntity, scopeFrame, scopeCreateDelta, serr := GetOrCreateFrameTx(tx, scope, OwnerScope)
		if serr != nil {
			continue
		}
		pending.add(scopeCreateDelta)
		if scope == primaryScope {
			captured = scopeFrame.Containers
		}
		if scopeFrame.Suspended {
			continue
		}
		scopeAction := ViewAction{Kind: ActionMutation, TargetID: targetID, Scope: scope, At: now}
		scopeFrame, err = appendToFrameViewTx(tx, scopeEntity, scopeFrame, scopeAction, coalescenceTimeout, pending)
		if err != nil {
			return nil, nil, err
		}
		_, sDelta, err := saveFrameTx(tx, scopeEntity, scopeFrame)
		if err != nil {
			return nil, nil, err
		}
		pending.add(sDelta)
	}

	return captured, pending.Deltas, nil
}
