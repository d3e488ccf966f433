package soil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// DegradeFidelityTx advances a fact's fidelity one or more steps along
// full -> summary -> stub -> tombstone, replacing its data with replacement
// when provided (e.g. an extractive summary) and stamping fossilized_at.
// The transition is rejected if it would not strictly advance.
func DegradeFidelityTx(tx *sql.Tx, factID string, current, next Fidelity, replacement json.RawMessage, fossilizedAt time.Time) error {
	if !current.Advances(next) {
		return memerr.Validation("fidelity", fmt.Sprintf("%s does not advance past %s", next, current))
	}
	if replacement != nil {
		_, err := tx.Exec(`UPDATE facts SET fidelity = ?, fossilized_at = ?, data = ? WHERE id = ?`,
			string(next), fossilizedAt.UnixMilli(), string(replacement), factID)
		if err != nil {
			return memerr.Internal(ids.DiagnosticID(), err)
		}
		return nil
	}
	_, err := tx.Exec(`UPDATE facts SET fidelity = ?, fossilized_at = ? WHERE id = ?`,
		string(next), fossilizedAt.UnixMilli(), factID)
	if err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	return nil
}

// DegradeFidelity runs DegradeFidelityTx as its own single-store transaction.
func (s *Store) DegradeFidelity(factID string, next Fidelity, replacement json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.getFactLocked(factID)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	if err := DegradeFidelityTx(tx, factID, f.Fidelity, next, replacement, ids.NowFunc().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) getFactLocked(id string) (*Fact, error) {
	return scanFact(s.db.QueryRow(`
		SELECT id, type, realized_at, canonical_at, integrity_hash, fidelity,
			superseded_by, superseded_at, fossilized_at, data, metadata
		FROM facts WHERE id = ?
	`, id))
}
