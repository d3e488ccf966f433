package core

import (
	"database/sql"
	"encoding/json"

	"github.com/memogarden/memogarden/internal/contoken"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// QueryEntities implements the `query_entities` verb's filter language
//: a bare value under Equals is tested for equality, Any tests
// membership, Not tests inequality — all three are evaluated against the
// decoded JSON data blob in application code, since the filter targets
// arbitrary payload field paths rather than fixed columns.
func (s *Store) QueryEntities(f Filter) ([]*Entity, string, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := int64(0)
	if f.Cursor != "" {
		c, err := contoken.Decode("core.query", f.Cursor)
		if err != nil {
			return nil, "", memerr.Validation("cursor", err.Error())
		}
		offset = c
	}

	query := entitySelect + ` WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if !f.IncludeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY updated_at DESC`

	s.mu.RLock()
	rows, err := s.db.Query(query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, "", memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()

	var matched []*Entity
	for rows.Next() {
		e, err := scanEntityRows(rows)
		if err != nil {
			return nil, "", err
		}
		if entityMatchesFilter(e, f) {
			matched = append(matched, e)
		}
	}

	end := offset + int64(limit)
	if end > int64(len(matched)) {
		end = int64(len(matched))
	}
	var page []*Entity
	if offset < int64(len(matched)) {
		page = matched[offset:end]
	}

	var next string
	if end < int64(len(matched)) {
		next = contoken.Encode("core.query", end)
	}
	return page, next, nil
}

// FindOneTx looks up a single entity of the given type whose decoded data
// matches every key/value in equals, inside an existing transaction. Used
// by the context engine to find a ContextFrame by (owner_uuid, owner_type)
// without leaving the caller's coordinated transaction. Returns
// memerr.NotFound when nothing matches; if more than one entity matches,
// the first by scan order is returned (the frame-per-owner invariant
// keeps this unambiguous in practice).
func FindOneTx(tx *sql.Tx, typ EntityType, equals map[string]any) (*Entity, error) {
	rows, err := tx.Query(entitySelect+` WHERE type = ? AND deleted = 0`, string(typ))
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntityRows(rows)
		if err != nil {
			return nil, err
		}
		var decoded map[string]any
		if err := json.Unmarshal(e.Data, &decoded); err != nil {
			continue
		}
		match := true
		for k, want := range equals {
			if !jsonEqual(decoded[k], want) {
				match = false
				break
			}
		}
		if match {
			return e, nil
		}
	}
	return nil, memerr.NotFoundErr("")
}

func scanEntityRows(rows *sql.Rows) (*Entity, error) {
	var e Entity
	var typ string
	var createdAt, updatedAt int64
	var previousHash, groupID, supersededBy, derivedFrom sql.NullString
	var deleted int
	var data string
	if err := rows.Scan(&e.ID, &typ, &e.Hash, &previousHash, &e.Version, &createdAt, &updatedAt,
		&groupID, &supersededBy, &derivedFrom, &deleted, &data); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return hydrateEntity(&e, typ, createdAt, updatedAt, previousHash, groupID, supersededBy, derivedFrom, deleted, data)
}

func entityMatchesFilter(e *Entity, f Filter) bool {
	if len(f.Equals) == 0 && len(f.Any) == 0 && len(f.Not) == 0 {
		return true
	}
	var decoded map[string]any
	if err := json.Unmarshal(e.Data, &decoded); err != nil {
		return false
	}
	for field, want := range f.Equals {
		if !jsonEqual(decoded[field], want) {
			return false
		}
	}
	for field, options := range f.Any {
		matched := false
		for _, want := range options {
			if jsonEqual(decoded[field], want) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for field, excluded := range f.Not {
		if jsonEqual(decoded[field], excluded) {
			return false
		}
	}
	return true
}

// jsonEqual compares two values the way the filter language expects:
// round-tripped through canonical JSON so 1 and 1.0 and map-key order
// never cause a spurious mismatch.
func jsonEqual(a, b any) bool {
	ab, err1 := ids.CanonicalJSON(a)
	bb, err2 := ids.CanonicalJSON(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}
