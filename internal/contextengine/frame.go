package contextengine

import (
	"database/sql"
	"encoding/json"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// FindFrameTx looks up the single ContextFrame belonging to
// (ownerUUID, ownerType), inside tx.
func FindFrameTx(tx *sql.Tx, ownerUUID string, ownerType OwnerType) (*core.Entity, FrameData, error) {
	e, err := core.FindOneTx(tx, core.TypeContextFrame, map[string]any{
		"owner_uuid": ownerUUID, "owner_type": string(ownerType),
	})
	if err != nil {
		return nil, FrameData{}, err
	}
	fd, err := unmarshalFrame(e.Data)
	if err != nil {
		return nil, FrameData{}, memerr.Internal(ids.DiagnosticID(), err)
	}
	return e, fd, nil
}

// GetOrCreateFrameTx returns the owner's frame, creating a fresh one
// (empty containers, no active scopes) on first registration. Creating a
// frame is itself an entity creation and produces an EntityDeltaRecord
// the caller must still persist to Soil in the same coordinated
// transaction, matching every other Core mutation.
func GetOrCreateFrameTx(tx *sql.Tx, ownerUUID string, ownerType OwnerType) (*core.Entity, FrameData, *core.EntityDeltaRecord, error) {
	e, fd, err := FindFrameTx(tx, ownerUUID, ownerType)
	if err == nil {
		return e, fd, nil, nil
	}
	if me, ok := memerr.As(err); !ok || me.Code != memerr.NotFound {
		return nil, FrameData{}, nil, err
	}

	fd = FrameData{OwnerUUID: ownerUUID, OwnerType: ownerType, Containers: []string{}, ActiveScopes: []string{}}
	entity, delta, err := core.CreateEntityTx(tx, core.TypeContextFrame, fd, nil, nil)
	if err != nil {
		return nil, FrameData{}, nil, err
	}
	return entity, fd, delta, nil
}

// saveFrameTx persists an updated FrameData back onto its entity,
// enforcing the optimistic-lock pattern every Core edit uses. Returns the
// EntityDeltaRecord the caller must write to Soil.
func saveFrameTx(tx *sql.Tx, e *core.Entity, fd FrameData) (*core.Entity, *core.EntityDeltaRecord, error) {
	set, err := fieldSetFrom(fd)
	if err != nil {
		return nil, nil, err
	}
	return core.EditEntityTx(tx, e.ID, set, nil, e.Hash)
}

// fieldSetFrom decomposes a struct into a full-replacement SetOps map
// (one entry per top-level JSON field), used to push an entire updated
// FrameData/ViewData payload through core's generic field-path edit API.
func fieldSetFrom(v any) (core.SetOps, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return core.SetOps(m), nil
}
