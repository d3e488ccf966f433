package soil

import (
	"database/sql"

	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// InsertSystemRelationWithIDTx inserts a system relation using a caller-
// supplied id rather than minting a fresh one. The relation engine uses
// this when a user relation fossilizes: the edge's identity is
// carried over via ids.Repin from its core_ form into its soil_ form,
// rather than starting a new lineage, so anything that already referenced
// the relation by id keeps working after fossilization.
func InsertSystemRelationWithIDTx(tx *sql.Tx, id string, kind RelationKind, sourceID, sourceType, targetID, targetType string, evidence, metadata any) (*SystemRelation, error) {
	var existingID string
	err := tx.QueryRow(`SELECT id FROM system_relations WHERE kind = ? AND source_id = ? AND target_id = ?`,
		string(kind), sourceID, targetID).Scan(&existingID)
	if err == nil {
		return getSystemRelationTx(tx, existingID)
	}
	if err != sql.ErrNoRows {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	r := &SystemRelation{
		ID: id, Kind: kind,
		SourceID: sourceID, SourceType: sourceType,
		TargetID: targetID, TargetType: targetType,
		CreatedAt: ids.CurrentDay(),
	}
	if evidence != nil {
		r.Evidence, err = ids.CanonicalJSON(evidence)
		if err != nil {
			return nil, memerr.Validation("evidence", "not serializable")
		}
	}
	if metadata != nil {
		r.Metadata, err = ids.CanonicalJSON(metadata)
		if err != nil {
			return nil, memerr.Validation("metadata", "not serializable")
		}
	}
	_, err = tx.Exec(`INSERT INTO system_relations
		(id, kind, source_id, source_type, target_id, target_type, created_at, evidence, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.SourceID, r.SourceType, r.TargetID, r.TargetType, r.CreatedAt,
		nullableString(r.Evidence), nullableString(r.Metadata))
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return r, nil
}
