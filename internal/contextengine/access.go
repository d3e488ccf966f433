package contextengine

import (
	"database/sql"
	"time"

	"github.com/memogarden/memogarden/internal/core"
)

// promote moves id to the front of containers, trimming from the tail to
// at most n entries and de-duplicating.
func promote(containers []string, id string, n int) []string {
	out := make([]string, 0, n)
	out = append(out, id)
	for _, c := range containers {
		if c == id {
			continue
		}
		out = append(out, c)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// RecordAccessTx implements the read-path half of the container rule:
// only substantive types promote containers; primitive types are a no-op.
// A substantive access also appends a "visit" event to the owner's current
// View, subject to the same coalescence rule as mutations, and promotes
// the accessed identifier in every currently-active scope frame so a
// scope's containers track what its members are attending to. Returns the
// EntityDeltas produced (frame edits, and possibly view edits/creations)
// for the caller to persist to Soil.
func RecordAccessTx(tx *sql.Tx, ownerUUID string, ownerType OwnerType, targetID, targetType string, n int, coalescenceTimeout time.Duration, now time.Time) ([]*core.EntityDeltaRecord, error) {
	if !IsSubstantive(targetType) {
		return nil, nil
	}
	if n <= 0 {
		n = DefaultContextBoundN
	}
	pending := &pendingDeltas{}

	entity, fd, createDelta, err := GetOrCreateFrameTx(tx, ownerUUID, ownerType)
	if err != nil {
		return nil, err
	}
	pending.add(createDelta)

	fd.Containers = promote(fd.Containers, targetID, n)

	primaryScope := ""
	if fd.PrimaryScope != nil {
		primaryScope = *fd.PrimaryScope
	}
	action := ViewAction{Kind: ActionVisit, TargetID: targetID, Scope: primaryScope, At: now}
	fd, err = appendToFrameViewTx(tx, entity, fd, action, coalescenceTimeout, pending)
	if err != nil {
		return nil, err
	}

	_, delta, err := saveFrameTx(tx, entity, fd)
	if err != nil {
		return nil, err
	}
	pending.add(delta)

	for _, scope := range fd.ActiveScopes {
		scopeEntity, scopeFd, scopeCreateDelta, serr := GetOrCreateFrameTx(tx, scope, OwnerScope)
		if serr != nil {
			continue
		}
		pending.add(scopeCreateDelta)
		scopeFd.Containers = promote(scopeFd.Containers, targetID, n)
		if !scopeFd.Suspended {
			scopeAction := ViewAction{Kind: ActionVisit, TargetID: targetID, Scope: scope, At: now}
			scopeFd, err = appendToFrameViewTx(tx, scopeEntity, scopeFd, scopeAction, coalescenceTimeout, pending)
			if err != nil {
				return nil, err
			}
		}
		_, sDelta, err := saveFrameTx(tx, scopeEntity, scopeFd)
		if err != nil {
			return nil, err
		}
		pending.add(sDelta)
	}
	return pending.Deltas, nil
}
