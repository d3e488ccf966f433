package core

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

const userRelationSelect = `SELECT id, kind, source_id, source_type, target_id, target_type,
	created_day, last_access_day, time_horizon, strength, evidence, metadata, alive FROM user_relations`

// CreateUserRelationTx inserts a new alive user relation (`link` verb)
// inside an existing transaction. evidence is the reason/source the
// relation was asserted for; metadata is unvalidated extension data.
// They are kept distinct because only evidence is carried over when the
// relation later fossilizes into a Soil system relation.
func CreateUserRelationTx(tx *sql.Tx, kind, sourceID, sourceType, targetID, targetType string, timeHorizon int, strength float64, evidence, metadata any) (*UserRelation, error) {
	if timeHorizon <= 0 {
		return nil, memerr.Validation("time_horizon", "must be positive")
	}
	today := ids.CurrentDay()
	r := &UserRelation{
		ID: ids.NewID(ids.Core), Kind: kind,
		SourceID: sourceID, SourceType: sourceType,
		TargetID: targetID, TargetType: targetType,
		CreatedDay: today, LastAccessDay: today,
		TimeHorizon: timeHorizon, Strength: strength,
	}
	if evidence != nil {
		ev, err := ids.CanonicalJSON(evidence)
		if err != nil {
			return nil, memerr.Validation("evidence", "not serializable")
		}
		r.Evidence = ev
	}
	if metadata != nil {
		meta, err := ids.CanonicalJSON(metadata)
		if err != nil {
			return nil, memerr.Validation("metadata", "not serializable")
		}
		r.Metadata = meta
	}
	_, err := tx.Exec(`INSERT INTO user_relations
		(id, kind, source_id, source_type, target_id, target_type, created_day, last_access_day,
			time_horizon, strength, evidence, metadata, alive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		r.ID, r.Kind, r.SourceID, r.SourceType, r.TargetID, r.TargetType,
		r.CreatedDay, r.LastAccessDay, r.TimeHorizon, r.Strength,
		nullableString(rawMetaPtr(r.Evidence)), nullableString(rawMetaPtr(r.Metadata)))
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return r, nil
}

func rawMetaPtr(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	s := string(raw)
	return &s
}

// CreateUserRelation runs CreateUserRelationTx as its own transaction.
func (s *Store) CreateUserRelation(ctx context.Context, kind, sourceID, sourceType, targetID, targetType string, timeHorizon int, strength float64, evidence, metadata any) (*UserRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	r, err := CreateUserRelationTx(tx, kind, sourceID, sourceType, targetID, targetType, timeHorizon, strength, evidence, metadata)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return r, nil
}

// GetUserRelation reads a single alive user relation by id.
func (s *Store) GetUserRelation(id string) (*UserRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanUserRelation(s.db.QueryRow(userRelationSelect+` WHERE id = ? AND alive = 1`, id))
}

func scanUserRelation(row *sql.Row) (*UserRelation, error) {
	var r UserRelation
	var evidence, metadata sql.NullString
	var alive int
	err := row.Scan(&r.ID, &r.Kind, &r.SourceID, &r.SourceType, &r.TargetID, &r.TargetType,
		&r.CreatedDay, &r.LastAccessDay, &r.TimeHorizon, &r.Strength, &evidence, &metadata, &alive)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFoundErr("")
	}
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	if evidence.Valid {
		r.Evidence = json.RawMessage(evidence.String)
	}
	if metadata.Valid {
		r.Metadata = json.RawMessage(metadata.String)
	}
	return &r, nil
}

// QueryUserRelations lists alive relations matching f.
func (s *Store) QueryUserRelations(f UserRelationFilter) ([]*UserRelation, error) {
	query := userRelationSelect + ` WHERE alive = 1`
	var args []any
	if f.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, f.SourceID)
	}
	if f.TargetID != "" {
		query += ` AND target_id = ?`
		args = append(args, f.TargetID)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	s.mu.RLock()
	rows, err := s.db.Query(query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()

	var out []*UserRelation
	for rows.Next() {
		var r UserRelation
		var evidence, metadata sql.NullString
		var alive int
		if err := rows.Scan(&r.ID, &r.Kind, &r.SourceID, &r.SourceType, &r.TargetID, &r.TargetType,
			&r.CreatedDay, &r.LastAccessDay, &r.TimeHorizon, &r.Strength, &evidence, &metadata, &alive); err != nil {
			return nil, memerr.Internal(ids.DiagnosticID(), err)
		}
		if evidence.Valid {
			r.Evidence = json.RawMessage(evidence.String)
		}
		if metadata.Valid {
			r.Metadata = json.RawMessage(metadata.String)
		}
		out = append(out, &r)
	}
	return out, nil
}

// EditUserRelationTx updates a relation's time horizon, strength, and/or
// metadata and refreshes last_access_day to today, inside an existing
// transaction (used both by the `edit_relation` verb and by any access
// that should renew a relation's lease). Evidence is immutable once set at
// creation and is not touched here.
func EditUserRelationTx(tx *sql.Tx, id string, timeHorizon *int, strength *float64, metadata any, today int) (*UserRelation, error) {
	r, err := scanUserRelationTx(tx, id)
	if err != nil {
		return nil, err
	}
	if timeHorizon != nil {
		r.TimeHorizon = *timeHorizon
	}
	if strength != nil {
		r.Strength = *strength
	}
	if metadata != nil {
		meta, err := ids.CanonicalJSON(metadata)
		if err != nil {
			return nil, memerr.Validation("metadata", "not serializable")
		}
		r.Metadata = meta
	}
	r.LastAccessDay = today
	_, err = tx.Exec(`UPDATE user_relations SET time_horizon = ?, strength = ?, metadata = ?,
		last_access_day = ? WHERE id = ?`, r.TimeHorizon, r.Strength, nullableString(rawMetaPtr(r.Metadata)), r.LastAccessDay, id)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return r, nil
}

// EditUserRelation runs EditUserRelationTx as its own transaction.
func (s *Store) EditUserRelation(ctx context.Context, id string, timeHorizon *int, strength *float64, metadata any, today int) (*UserRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	r, err := EditUserRelationTx(tx, id, timeHorizon, strength, metadata, today)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return r, nil
}

func scanUserRelationTx(tx *sql.Tx, id string) (*UserRelation, error) {
	var r UserRelation
	var evidence, metadata sql.NullString
	var alive int
	err := tx.QueryRow(userRelationSelect+` WHERE id = ? AND alive = 1`, id).Scan(
		&r.ID, &r.Kind, &r.SourceID, &r.SourceType, &r.TargetID, &r.TargetType,
		&r.CreatedDay, &r.LastAccessDay, &r.TimeHorizon, &r.Strength, &evidence, &metadata, &alive)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFoundErr(id)
	}
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	if evidence.Valid {
		r.Evidence = json.RawMessage(evidence.String)
	}
	if metadata.Valid {
		r.Metadata = json.RawMessage(metadata.String)
	}
	return &r, nil
}

// UnlinkUserRelationTx deletes a relation outright (`unlink` verb; distinct
// from fossilization, which the relations engine performs via
// DeleteFossilizingRelationTx so it can also write the Soil system
// relation in the same coordinated transaction).
func UnlinkUserRelationTx(tx *sql.Tx, id string) error {
	res, err := tx.Exec(`DELETE FROM user_relations WHERE id = ? AND alive = 1`, id)
	if err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return memerr.NotFoundErr(id)
	}
	return nil
}

// Unlink runs UnlinkUserRelationTx as its own transaction.
func (s *Store) Unlink(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	if err := UnlinkUserRelationTx(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteFossilizingRelationTx removes a relation from Core as the Core
// half of fossilization; the caller (relations engine) is responsible for
// writing the corresponding Soil system relation in the same transaction.
func DeleteFossilizingRelationTx(tx *sql.Tx, id string) error {
	return UnlinkUserRelationTx(tx, id)
}

// ListAllAliveForSweep returns every alive user relation, for the
// fossilization sweep to evaluate against the current day.
func (s *Store) ListAllAliveForSweep() ([]*UserRelation, error) {
	s.mu.RLock()
	rows, err := s.db.Query(userRelationSelect + ` WHERE alive = 1`)
	s.mu.RUnlock()
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()

	var out []*UserRelation
	for rows.Next() {
		var r UserRelation
		var evidence, metadata sql.NullString
		var alive int
		if err := rows.Scan(&r.ID, &r.Kind, &r.SourceID, &r.SourceType, &r.TargetID, &r.TargetType,
			&r.CreatedDay, &r.LastAccessDay, &r.TimeHorizon, &r.Strength, &evidence, &metadata, &alive); err != nil {
			return nil, memerr.Internal(ids.DiagnosticID(), err)
		}
		if evidence.Valid {
			r.Evidence = json.RawMessage(evidence.String)
		}
		if metadata.Valid {
			r.Metadata = json.RawMessage(metadata.String)
		}
		out = append(out, &r)
	}
	return out, nil
}
