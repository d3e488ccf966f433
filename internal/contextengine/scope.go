package contextengine

import (
	"database/sql"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// EnterTx implements the `enter` verb: adds scope to the owner's
// active set; if it is the owner's first active scope, it becomes
// primary. Entering never auto-focuses an already-non-empty active set.
// Every frame write this performs is returned as a pending EntityDelta
// for the caller to persist to Soil in the same coordinated transaction.
func EnterTx(tx *sql.Tx, ownerUUID string, ownerType OwnerType, scope string) (*core.Entity, FrameData, []*core.EntityDeltaRecord, error) {
	pending := &pendingDeltas{}
	e, fd, createDelta, err := GetOrCreateFrameTx(tx, ownerUUID, ownerType)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	// Re-entering resumes a scope frame suspended by an earlier leave.
	if scopeEntity, scopeFd, serr := FindFrameTx(tx, scope, OwnerScope); serr == nil && scopeFd.Suspended {
		scopeFd.Suspended = false
		_, sDelta, serr := saveFrameTx(tx, scopeEntity, scopeFd)
		if serr != nil {
			return nil, FrameData{}, nil, serr
		}
		pending.add(sDelta)
	}
	if contains(fd.ActiveScopes, scope) {
		pending.add(createDelta)
		return e, fd, pending.Deltas, nil
	}
	fd.ActiveScopes = append(fd.ActiveScopes, scope)
	if fd.PrimaryScope == nil {
		fd.PrimaryScope = &scope
	}
	if createDelta != nil {
		// The frame was just created inside this call; its creation
		// delta hasn't been persisted yet, so fold the scope directly
		// into the about-to-be-inserted entity instead of editing it.
		entity, delta, err := reinsertWithData(tx, e, fd)
		if err != nil {
			return nil, FrameData{}, nil, err
		}
		pending.add(delta)
		return entity, fd, pending.Deltas, nil
	}
	updated, delta, err := saveFrameTx(tx, e, fd)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	pending.add(delta)
	return updated, fd, pending.Deltas, nil
}

// reinsertWithData overwrites a just-created (same-transaction, version 1)
// entity's data in place rather than going through the optimistic-lock
// edit path, since no EntityDelta for its creation has been committed yet
// for callers to chain against. Data and hash are rewritten together so
// the creation delta's commit hash stays recomputable.
func reinsertWithData(tx *sql.Tx, e *core.Entity, fd FrameData) (*core.Entity, *core.EntityDeltaRecord, error) {
	return core.RewriteCreationTx(tx, e, fd)
}

// LeaveTx implements the `leave` verb: removes scope from the
// active set. If the removed scope was primary, the next most-recently-
// entered remaining active scope (the last element of ActiveScopes after
// removal) becomes primary, rather than leaving primary null: an
// operator shouldn't lose focus entirely just because they stepped out of
// one scope while still inside others. On leave, once no other owner still
// has the scope active, the scope's own frame is marked Suspended so it
// stops accepting new View appends until a member re-enters.
func LeaveTx(tx *sql.Tx, ownerUUID string, ownerType OwnerType, scope string) (*core.Entity, FrameData, []*core.EntityDeltaRecord, error) {
	pending := &pendingDeltas{}
	e, fd, createDelta, err := GetOrCreateFrameTx(tx, ownerUUID, ownerType)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	pending.add(createDelta)
	if !contains(fd.ActiveScopes, scope) {
		return e, fd, pending.Deltas, nil
	}
	fd.ActiveScopes = without(fd.ActiveScopes, scope)
	if fd.PrimaryScope != nil && *fd.PrimaryScope == scope {
		if len(fd.ActiveScopes) > 0 {
			promoted := fd.ActiveScopes[len(fd.ActiveScopes)-1]
			fd.PrimaryScope = &promoted
		} else {
			fd.PrimaryScope = nil
		}
	}
	updated, delta, err := saveFrameTx(tx, e, fd)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	pending.add(delta)

	if scopeEntity, scopeFd, serr := FindFrameTx(tx, scope, OwnerScope); serr == nil {
		if stillActiveElsewhere, aerr := anyOtherOwnerHasActive(tx, scope, ownerUUID); aerr == nil && !stillActiveElsewhere {
			scopeFd.Suspended = true
			_, sDelta, serr := saveFrameTx(tx, scopeEntity, scopeFd)
			if serr != nil {
				return nil, FrameData{}, nil, serr
			}
			pending.add(sDelta)
		}
	}
	return updated, fd, pending.Deltas, nil
}

// anyOtherOwnerHasActive is a best-effort check so a scope frame only
// suspends once no participant still has it active; a full index over
// "which frames have scope X active" is out of scope for this substrate,
// so this scans ContextFrame entities directly.
func anyOtherOwnerHasActive(tx *sql.Tx, scope, excludeOwner string) (bool, error) {
	rows, err := tx.Query(`SELECT data FROM entities WHERE type = ? AND deleted = 0`, string(core.TypeContextFrame))
	if err != nil {
		return false, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return false, memerr.Internal(ids.DiagnosticID(), err)
		}
		fd, err := unmarshalFrame(raw)
		if err != nil {
			continue
		}
		if fd.OwnerUUID == excludeOwner {
			continue
		}
		if contains(fd.ActiveScopes, scope) {
			return true, nil
		}
	}
	return false, nil
}

// FocusTx implements the `focus` verb: sets primary scope, which
// must already be in the owner's active set.
func FocusTx(tx *sql.Tx, ownerUUID string, ownerType OwnerType, scope string) (*core.Entity, FrameData, []*core.EntityDeltaRecord, error) {
	pending := &pendingDeltas{}
	e, fd, createDelta, err := GetOrCreateFrameTx(tx, ownerUUID, ownerType)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	pending.add(createDelta)
	if !contains(fd.ActiveScopes, scope) {
		return nil, FrameData{}, nil, memerr.Validation("scope", "scope is not active for this owner")
	}
	fd.PrimaryScope = &scope
	updated, delta, err := saveFrameTx(tx, e, fd)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	pending.add(delta)
	// Re-focusing an already-suspended scope frame resumes it.
	if scopeEntity, scopeFd, serr := FindFrameTx(tx, scope, OwnerScope); serr == nil && scopeFd.Suspended {
		scopeFd.Suspended = false
		_, sDelta, serr := saveFrameTx(tx, scopeEntity, scopeFd)
		if serr != nil {
			return nil, FrameData{}, nil, serr
		}
		pending.add(sDelta)
	}
	return updated, fd, pending.Deltas, nil
}
