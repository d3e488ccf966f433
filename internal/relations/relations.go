package relations

import (
	"context"
	"database/sql"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
	"github.com/memogarden/memogarden/internal/soil"
)

// DefaultUserRelationKind is the initial user-relation kind; `link` falls
// back to it when the caller names no kind. It shares its name with the
// system-relation kind an expired relation becomes on fossilization —
// that is the point: fossilizing an explicit_link user relation preserves
// its kind across the Core -> Soil move.
const DefaultUserRelationKind = string(soil.RelExplicitLink)

// reservedKinds are the structural system relation kinds; a user may
// never create a mutable relation under one of these names, since that
// would let an alive, editable edge masquerade as an immutable structural
// one. explicit_link is deliberately absent: it is the one kind shared by
// both worlds, as a user relation while alive and as the system relation
// fossilization turns it into.
var reservedKinds = map[string]bool{
	string(soil.RelTriggers): true, string(soil.RelCites): true,
	string(soil.RelRepliesTo): true, string(soil.RelDerivesFrom): true,
	string(soil.RelContains): true, string(soil.RelContinues): true,
	string(soil.RelSupersedes): true, string(soil.RelResultOf): true,
}

func validateUserRelationKind(kind string) error {
	if kind == "" {
		return memerr.Validation("kind", "relation kind is required")
	}
	if reservedKinds[kind] {
		return memerr.Validation("kind", "reserved for system relations and cannot be used for a user relation")
	}
	return nil
}

// LinkTx implements the `link` verb's storage half inside an existing
// Core transaction, so the verb dispatcher can commit the new relation
// together with its audit pair. An empty kind falls back to
// DefaultUserRelationKind.
func LinkTx(tx *sql.Tx, kind, sourceID, sourceType, targetID, targetType string, timeHorizon int, strength float64, evidence, metadata any) (*core.UserRelation, error) {
	if kind == "" {
		kind = DefaultUserRelationKind
	}
	if err := validateUserRelationKind(kind); err != nil {
		return nil, err
	}
	source, err := ids.Normalize(sourceID, ids.Core)
	if err != nil {
		return nil, memerr.Validation("source_id", err.Error())
	}
	target, err := ids.Normalize(targetID, ids.Core)
	if err != nil {
		return nil, memerr.Validation("target_id", err.Error())
	}
	return core.CreateUserRelationTx(tx, kind, source, sourceType, target, targetType, timeHorizon, strength, evidence, metadata)
}

// Link creates a new alive user relation in its own Core transaction, for
// callers outside the verb dispatcher (sweeps, tests, embedding code).
func (e *Engine) Link(ctx context.Context, kind, sourceID, sourceType, targetID, targetType string, timeHorizon int, strength float64, evidence, metadata any) (*core.UserRelation, error) {
	var r *core.UserRelation
	err := e.Coord.WithCoreWriter(ctx, func(tx *sql.Tx) error {
		var lerr error
		r, lerr = LinkTx(tx, kind, sourceID, sourceType, targetID, targetType, timeHorizon, strength, evidence, metadata)
		return lerr
	})
	return r, err
}

// QueryRelation implements the `query_relation` verb.
func (e *Engine) QueryRelation(f core.UserRelationFilter) ([]*core.UserRelation, error) {
	return e.Coord.Core.QueryUserRelations(f)
}
