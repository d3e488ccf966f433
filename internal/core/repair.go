package core

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// DeltaStep is one EntityDelta fact's payload, enough to replay it against
// Core. The coordinator reads these out of Soil in chain order and
// hands them to RestoreEntityFromDeltasTx.
type DeltaStep struct {
	Commit string
	Parent []string
	Set    SetOps
	Unset  UnsetOps
}

// RestoreEntityFromDeltasTx rebuilds entityID's Core row by replaying its
// full EntityDelta chain in order, rather than by recomputing hashes from
// scratch: each step's Commit is taken as ground truth (it is what Soil,
// the source of truth, already recorded) and verified against a
// recomputed hash so a step that doesn't actually reproduce is reported
// rather than silently written. An extra EntityDelta without a matching
// Core update is detectable and repairable; the Core row is reconstructed
// from the Soil deltas, never the other way around.
func RestoreEntityFromDeltasTx(tx *sql.Tx, typ EntityType, entityID string, steps []DeltaStep, createdAt, updatedAt time.Time) (*Entity, error) {
	if len(steps) == 0 {
		return nil, memerr.Internal(ids.DiagnosticID(), errNoSteps(entityID))
	}

	decoded := map[string]json.RawMessage{}
	var previousHash *string
	version := 0
	for _, step := range steps {
		for k, v := range step.Set {
			decoded[k] = v
		}
		for _, k := range step.Unset {
			delete(decoded, k)
		}
		raw, err := ids.CanonicalJSON(decoded)
		if err != nil {
			return nil, memerr.Internal(ids.DiagnosticID(), err)
		}
		recomputed, err := computeEntityHash(typ, raw, previousHash)
		if err != nil {
			return nil, memerr.Internal(ids.DiagnosticID(), err)
		}
		if recomputed != step.Commit {
			return nil, memerr.Internal(ids.DiagnosticID(), errHashMismatch(entityID, step.Commit, recomputed))
		}
		h := step.Commit
		previousHash = &h
		version++
	}

	finalRaw, err := ids.CanonicalJSON(decoded)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	finalHash := steps[len(steps)-1].Commit
	var finalPrev *string
	if len(steps) > 1 {
		p := steps[len(steps)-2].Commit
		finalPrev = &p
	}

	_, err = tx.Exec(`INSERT INTO entities
		(id, type, hash, previous_hash, version, created_at, updated_at, group_id, superseded_by, derived_from, deleted, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, '[]', 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			hash = excluded.hash, previous_hash = excluded.previous_hash, version = excluded.version,
			updated_at = excluded.updated_at, data = excluded.data`,
		entityID, string(typ), finalHash, nullableString(finalPrev), version,
		createdAt.UnixMilli(), updatedAt.UnixMilli(), string(finalRaw))
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	return &Entity{
		ID: entityID, Type: typ, Hash: finalHash, PreviousHash: finalPrev,
		Version: version, CreatedAt: createdAt, UpdatedAt: updatedAt, Data: finalRaw,
	}, nil
}

type repairError string

func (e repairError) Error() string { return string(e) }

func errNoSteps(entityID string) error {
	return repairError("repair: no EntityDelta steps found for " + entityID)
}

func errHashMismatch(entityID, want, got string) error {
	return repairError("repair: entity " + entityID + " delta chain recomputes to " + got + ", expected " + want)
}
