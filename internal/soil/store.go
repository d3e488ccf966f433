package soil

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/memogarden/memogarden/internal/contoken"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// Store is the SQLite-backed Soil database. It guards its handle with a
// mutex so a single process can safely share it across goroutines; the
// Transaction Coordinator is what actually arbitrates writer access
// across Soil and Core.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open creates or opens the Soil database at dsn ("file:soil.db" or
// ":memory:") and ensures its schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("soil: open %s: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("soil: create schema: %w", err)
	}
	return &Store{db: db, path: dsn}, nil
}

// DB exposes the underlying handle so the Transaction Coordinator can open
// a coordinated transaction spanning Soil and Core.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// BuildFact constructs a new full-fidelity Fact ready for insertion:
// assigns the identifier, stamps RealizedAt from the wall clock,
// defaults CanonicalAt to RealizedAt when unset, validates the type tag,
// and computes the integrity hash over the payload.
func BuildFact(typ FactType, payload any, metadata any, canonicalAt time.Time) (*Fact, error) {
	if typ == "" {
		return nil, memerr.Validation("type", "fact type is required")
	}
	data, err := ids.CanonicalJSON(payload)
	if err != nil {
		return nil, memerr.Validation("data", "payload is not serializable").WithCause(err)
	}
	var metaRaw json.RawMessage
	if metadata != nil {
		metaRaw, err = ids.CanonicalJSON(metadata)
		if err != nil {
			return nil, memerr.Validation("metadata", "metadata is not serializable").WithCause(err)
		}
	}
	realized := ids.NowFunc().UTC()
	if canonicalAt.IsZero() {
		canonicalAt = realized
	}
	hash, err := ids.Hash(payload, "")
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return &Fact{
		ID:            ids.NewID(ids.Soil),
		Type:          typ,
		RealizedAt:    realized,
		CanonicalAt:   canonicalAt,
		IntegrityHash: hash,
		Fidelity:      FidelityFull,
		Data:          data,
		Metadata:      metaRaw,
	}, nil
}

// InsertFactTx writes a fully-built fact inside an existing transaction,
// allowing the coordinator to include it in a cross-store commit (e.g. an
// Action fact alongside an entity mutation). Single-store callers should
// use AddFact instead.
func (s *Store) InsertFactTx(tx *sql.Tx, f *Fact) error {
	_, err := tx.Exec(`
		INSERT INTO facts (id, type, realized_at, canonical_at, integrity_hash,
			fidelity, superseded_by, superseded_at, fossilized_at, data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, string(f.Type), timeToMillis(f.RealizedAt), timeToMillis(f.CanonicalAt),
		f.IntegrityHash, string(f.Fidelity), f.SupersededBy, nullableMillis(f.SupersededAt),
		nullableMillis(f.FossilizedAt), string(f.Data), nullableString(f.Metadata))
	if err != nil {
		return fmt.Errorf("soil: insert fact: %w", err)
	}
	return indexFactTermsTx(tx, f)
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullableString(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}

// AddFact performs a single-store (Soil-only) transaction creating a new
// fact: this is the `add` verb's storage half.
func (s *Store) AddFact(ctx context.Context, typ FactType, payload, metadata any, canonicalAt time.Time) (*Fact, error) {
	f, err := BuildFact(typ, payload, metadata, canonicalAt)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	if err := s.InsertFactTx(tx, f); err != nil {
		tx.Rollback()
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return f, nil
}

// AmendFact writes a new fact whose payload supersedes id, and updates the
// original's SupersededBy in the same transaction. The new payload
// should already carry a "supersedes" field pointing at id; callers
// (verb layer) are responsible for that composition so soil stays payload-
// agnostic.
func (s *Store) AmendFact(ctx context.Context, id string, typ FactType, newPayload, metadata any, canonicalAt time.Time) (*Fact, error) {
	id, err := ids.Normalize(id, ids.Soil)
	if err != nil {
		return nil, memerr.Validation("id", err.Error())
	}
	newFact, err := BuildFact(typ, newPayload, metadata, canonicalAt)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM facts WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
		return nil, memerr.NotFoundErr(id)
	} else if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	if err := s.InsertFactTx(tx, newFact); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	now := ids.NowFunc().UTC()
	if _, err := tx.Exec(`UPDATE facts SET superseded_by = ?, superseded_at = ? WHERE id = ?`,
		newFact.ID, now.UnixMilli(), id); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	if _, err := AddSystemRelationTx(tx, RelSupersedes, newFact.ID, string(typ), id, string(typ), nil, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return newFact, nil
}

// GetFact reads a single fact by (bare or prefixed) identifier.
func (s *Store) GetFact(id string) (*Fact, error) {
	full, err := ids.Normalize(id, ids.Soil)
	if err != nil {
		return nil, memerr.Validation("id", err.Error())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := scanFact(s.db.QueryRow(`
		SELECT id, type, realized_at, canonical_at, integrity_hash, fidelity,
			superseded_by, superseded_at, fossilized_at, data, metadata
		FROM facts WHERE id = ?
	`, full))
	if e, ok := memerr.As(err); ok && e.Code == memerr.NotFound {
		return nil, memerr.NotFoundErr(full)
	}
	return f, err
}

func scanFact(row *sql.Row) (*Fact, error) {
	var f Fact
	var typ, fidelity string
	var realized, canonical int64
	var supersededBy, metadata sql.NullString
	var supersededAt, fossilizedAt sql.NullInt64
	var data string
	err := row.Scan(&f.ID, &typ, &realized, &canonical, &f.IntegrityHash, &fidelity,
		&supersededBy, &supersededAt, &fossilizedAt, &data, &metadata)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFoundErr("")
	}
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	f.Type = FactType(typ)
	f.Fidelity = Fidelity(fidelity)
	f.RealizedAt = millisToTime(realized)
	f.CanonicalAt = millisToTime(canonical)
	f.Data = json.RawMessage(data)
	if metadata.Valid {
		f.Metadata = json.RawMessage(metadata.String)
	}
	if supersededBy.Valid {
		v := supersededBy.String
		f.SupersededBy = &v
	}
	if supersededAt.Valid {
		t := millisToTime(supersededAt.Int64)
		f.SupersededAt = &t
	}
	if fossilizedAt.Valid {
		t := millisToTime(fossilizedAt.Int64)
		f.FossilizedAt = &t
	}
	return &f, nil
}

// ListFacts returns facts matching filter, newest first, with an opaque
// continuation token when more results remain.
func (s *Store) ListFacts(filter FactFilter) ([]*Fact, string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := int64(0)
	if filter.Cursor != "" {
		c, err := contoken.Decode("soil.list", filter.Cursor)
		if err != nil {
			return nil, "", memerr.Validation("cursor", err.Error())
		}
		offset = c
	}

	query := `SELECT id, type, realized_at, canonical_at, integrity_hash, fidelity,
		superseded_by, superseded_at, fossilized_at, data, metadata FROM facts WHERE 1=1`
	args := []any{}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Fidelity != "" {
		query += ` AND fidelity = ?`
		args = append(args, string(filter.Fidelity))
	}
	if filter.OnlyNotSuperseded {
		query += ` AND superseded_by IS NULL`
	}
	query += ` ORDER BY realized_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit+1, offset)

	s.mu.RLock()
	rows, err := s.db.Query(query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, "", memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()

	var out []*Fact
	for rows.Next() {
		f, err := scanFactRows(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, f)
	}

	var next string
	if len(out) > int(limit) {
		out = out[:limit]
		next = contoken.Encode("soil.list", offset+int64(limit))
	}
	return out, next, nil
}

func scanFactRows(rows *sql.Rows) (*Fact, error) {
	var f Fact
	var typ, fidelity string
	var realized, canonical int64
	var supersededBy, metadata sql.NullString
	var supersededAt, fossilizedAt sql.NullInt64
	var data string
	if err := rows.Scan(&f.ID, &typ, &realized, &canonical, &f.IntegrityHash, &fidelity,
		&supersededBy, &supersededAt, &fossilizedAt, &data, &metadata); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	f.Type = FactType(typ)
	f.Fidelity = Fidelity(fidelity)
	f.RealizedAt = millisToTime(realized)
	f.CanonicalAt = millisToTime(canonical)
	f.Data = json.RawMessage(data)
	if metadata.Valid {
		f.Metadata = json.RawMessage(metadata.String)
	}
	if supersededBy.Valid {
		v := supersededBy.String
		f.SupersededBy = &v
	}
	if supersededAt.Valid {
		t := millisToTime(supersededAt.Int64)
		f.SupersededAt = &t
	}
	if fossilizedAt.Valid {
		t := millisToTime(fossilizedAt.Int64)
		f.FossilizedAt = &t
	}
	return &f, nil
}

// AddSystemRelationTx inserts a system relation inside an existing
// transaction. Because (kind, source, target) is unique, re-inserting an
// existing triple is a no-op that returns the existing row.
func AddSystemRelationTx(tx *sql.Tx, kind RelationKind, sourceID, sourceType, targetID, targetType string, evidence, metadata any) (*SystemRelation, error) {
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
		ID: ids.NewID(ids.Soil), Kind: kind,
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

// AddSystemRelation runs AddSystemRelationTx as its own single-store
// transaction.
func (s *Store) AddSystemRelation(ctx context.Context, kind RelationKind, sourceID, sourceType, targetID, targetType string, evidence, metadata any) (*SystemRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	r, err := AddSystemRelationTx(tx, kind, sourceID, sourceType, targetID, targetType, evidence, metadata)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return r, nil
}

func getSystemRelationTx(tx *sql.Tx, id string) (*SystemRelation, error) {
	return scanSystemRelation(tx.QueryRow(`
		SELECT id, kind, source_id, source_type, target_id, target_type, created_at, evidence, metadata
		FROM system_relations WHERE id = ?`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSystemRelation(row rowScanner) (*SystemRelation, error) {
	var r SystemRelation
	var kind string
	var evidence, metadata sql.NullString
	if err := row.Scan(&r.ID, &kind, &r.SourceID, &r.SourceType, &r.TargetID, &r.TargetType,
		&r.CreatedAt, &evidence, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, memerr.NotFoundErr("")
		}
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	r.Kind = RelationKind(kind)
	if evidence.Valid {
		r.Evidence = json.RawMessage(evidence.String)
	}
	if metadata.Valid {
		r.Metadata = json.RawMessage(metadata.String)
	}
	return &r, nil
}

// GetSystemRelation reads a system relation by id.
func (s *Store) GetSystemRelation(id string) (*SystemRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanSystemRelation(s.db.QueryRow(`
		SELECT id, kind, source_id, source_type, target_id, target_type, created_at, evidence, metadata
		FROM system_relations WHERE id = ?`, id))
}

// QuerySystemRelationsFor returns system relations with the given source
// and/or target identifier (either may be empty to mean "any").
func (s *Store) QuerySystemRelationsFor(sourceID, targetID string, kind RelationKind) ([]*SystemRelation, error) {
	query := `SELECT id, kind, source_id, source_type, target_id, target_type, created_at, evidence, metadata
		FROM system_relations WHERE 1=1`
	var args []any
	if sourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	if targetID != "" {
		query += ` AND target_id = ?`
		args = append(args, targetID)
	}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	s.mu.RLock()
	rows, err := s.db.Query(query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()

	var out []*SystemRelation
	for rows.Next() {
		r, err := scanSystemRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
