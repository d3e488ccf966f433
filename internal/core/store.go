package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
)

// Store is the SQLite-backed Core database: the mutable entity registry
// plus alive user relations. Mirrors soil.Store's mutex-guarded *sql.DB
// idiom so the Transaction Coordinator can treat both stores uniformly.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open creates or opens the Core database at dsn and ensures its schema
// exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("core: open %s: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("core: create schema: %w", err)
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

func computeEntityHash(typ EntityType, data json.RawMessage, previousHash *string) (string, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", err
	}
	composite := map[string]any{
		"type": string(typ),
		"data": decoded,
	}
	if previousHash != nil {
		composite["previous_hash"] = *previousHash
	} else {
		composite["previous_hash"] = nil
	}
	return ids.Hash(composite, "")
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// CreateEntityTx inserts a brand new entity (version 1, no previous_hash)
// inside an existing transaction, so the coordinator can include it in a
// cross-store commit alongside its EntityDelta fact.
func CreateEntityTx(tx *sql.Tx, typ EntityType, data any, groupID *string, derivedFrom []string) (*Entity, *EntityDeltaRecord, error) {
	raw, err := ids.CanonicalJSON(data)
	if err != nil {
		return nil, nil, memerr.Validation("data", "entity payload is not serializable").WithCause(err)
	}
	hash, err := computeEntityHash(typ, raw, nil)
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	now := ids.NowFunc().UTC()
	e := &Entity{
		ID:          ids.NewID(ids.Core),
		Type:        typ,
		Hash:        hash,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		GroupID:     groupID,
		DerivedFrom: derivedFrom,
		Data:        raw,
	}
	derivedJSON, err := json.Marshal(e.DerivedFrom)
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	_, err = tx.Exec(`INSERT INTO entities
		(id, type, hash, previous_hash, version, created_at, updated_at, group_id, superseded_by, derived_from, deleted, data)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?, NULL, ?, 0, ?)`,
		e.ID, string(e.Type), e.Hash, e.Version, e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli(),
		nullableString(e.GroupID), string(derivedJSON), string(e.Data))
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	delta := &EntityDeltaRecord{
		EntityUUID: e.ID, EntityType: e.Type, Commit: e.Hash, Parent: nil,
		Ops: EntityDeltaOps{Set: rawFieldSet(raw)},
	}
	return e, delta, nil
}

// CreateEntity runs CreateEntityTx as its own single-store transaction.
// Handlers whose verb does not also require a Soil write (a rare case,
// since every mutation records an EntityDelta) may call this directly;
// the verb dispatcher normally goes through the coordinator instead.
func (s *Store) CreateEntity(ctx context.Context, typ EntityType, data any, groupID *string, derivedFrom []string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	e, _, err := CreateEntityTx(tx, typ, data, groupID, derivedFrom)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return e, nil
}

// RewriteCreationTx replaces the payload of an entity created earlier in
// the same transaction, before its creation EntityDelta has been written:
// the row keeps version 1 and a nil previous_hash, but data and hash are
// recomputed together so the chain invariant holds. The returned delta
// supersedes the one CreateEntityTx produced; callers must persist this
// one instead.
func RewriteCreationTx(tx *sql.Tx, e *Entity, data any) (*Entity, *EntityDeltaRecord, error) {
	if e.Version != 1 {
		return nil, nil, memerr.Validation("id", "only a just-created entity can be rewritten in place")
	}
	raw, err := ids.CanonicalJSON(data)
	if err != nil {
		return nil, nil, memerr.Validation("data", "entity payload is not serializable").WithCause(err)
	}
	hash, err := computeEntityHash(e.Type, raw, nil)
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	if _, err := tx.Exec(`UPDATE entities SET data = ?, hash = ? WHERE id = ?`,
		string(raw), hash, e.ID); err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	updated := *e
	updated.Data = raw
	updated.Hash = hash
	delta := &EntityDeltaRecord{
		EntityUUID: e.ID, EntityType: e.Type, Commit: hash, Parent: nil,
		Ops: EntityDeltaOps{Set: rawFieldSet(raw)},
	}
	return &updated, delta, nil
}

func rawFieldSet(raw json.RawMessage) SetOps {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return SetOps(decoded)
}

// EditEntityTx applies setOps/unsetOps to the entity identified by id,
// enforcing optimistic locking: basedOnHash must equal the entity's
// current hash or the edit fails with lock_conflict. The new
// version's previous_hash links back to the prior hash, forming the
// chain.
func EditEntityTx(tx *sql.Tx, id string, set SetOps, unset UnsetOps, basedOnHash string) (*Entity, *EntityDeltaRecord, error) {
	full, err := ids.Normalize(id, ids.Core)
	if err != nil {
		return nil, nil, memerr.Validation("id", err.Error())
	}
	e, err := scanEntityTx(tx, full)
	if err != nil {
		return nil, nil, err
	}
	if e.Deleted {
		return nil, nil, memerr.NotFoundErr(full)
	}
	if e.Hash != basedOnHash {
		return nil, nil, memerr.LockConflictErr(full, basedOnHash, e.Hash)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &decoded); err != nil {
		decoded = map[string]json.RawMessage{}
	}
	if decoded == nil {
		decoded = map[string]json.RawMessage{}
	}
	for k, v := range set {
		decoded[k] = v
	}
	for _, k := range unset {
		delete(decoded, k)
	}
	newRaw, err := ids.CanonicalJSON(decoded)
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	priorHash := e.Hash
	newHash, err := computeEntityHash(e.Type, newRaw, &priorHash)
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	now := ids.NowFunc().UTC()
	_, err = tx.Exec(`UPDATE entities SET hash = ?, previous_hash = ?, version = version + 1,
		updated_at = ?, data = ? WHERE id = ?`,
		newHash, priorHash, now.UnixMilli(), string(newRaw), full)
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	updated := *e
	updated.PreviousHash = &priorHash
	updated.Hash = newHash
	updated.Version = e.Version + 1
	updated.UpdatedAt = now
	updated.Data = newRaw

	delta := &EntityDeltaRecord{
		EntityUUID: full, EntityType: e.Type, Commit: newHash, Parent: []string{priorHash},
		Ops: EntityDeltaOps{Set: set, Unset: unset},
	}
	return &updated, delta, nil
}

// EditEntity runs EditEntityTx as its own single-store transaction.
func (s *Store) EditEntity(ctx context.Context, id string, set SetOps, unset UnsetOps, basedOnHash string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	e, _, err := EditEntityTx(tx, id, set, unset, basedOnHash)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return e, nil
}

// ForgetEntityTx soft-deletes an entity: the row is marked deleted but
// retained (so lineage and audit history stay intact), with its own
// hash-chain step so the deletion itself is chained.
func ForgetEntityTx(tx *sql.Tx, id, basedOnHash string) (*Entity, *EntityDeltaRecord, error) {
	full, err := ids.Normalize(id, ids.Core)
	if err != nil {
		return nil, nil, memerr.Validation("id", err.Error())
	}
	e, err := scanEntityTx(tx, full)
	if err != nil {
		return nil, nil, err
	}
	if e.Deleted {
		return nil, nil, memerr.NotFoundErr(full)
	}
	if e.Hash != basedOnHash {
		return nil, nil, memerr.LockConflictErr(full, basedOnHash, e.Hash)
	}

	priorHash := e.Hash
	newHash, err := computeEntityHash(e.Type, e.Data, &priorHash)
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	now := ids.NowFunc().UTC()
	_, err = tx.Exec(`UPDATE entities SET hash = ?, previous_hash = ?, version = version + 1,
		updated_at = ?, deleted = 1 WHERE id = ?`, newHash, priorHash, now.UnixMilli(), full)
	if err != nil {
		return nil, nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	updated := *e
	updated.PreviousHash = &priorHash
	updated.Hash = newHash
	updated.Version = e.Version + 1
	updated.UpdatedAt = now
	updated.Deleted = true

	delta := &EntityDeltaRecord{
		EntityUUID: full, EntityType: e.Type, Commit: newHash, Parent: []string{priorHash},
		Ops: EntityDeltaOps{Unset: UnsetOps{"*"}},
	}
	return &updated, delta, nil
}

// ForgetEntity runs ForgetEntityTx as its own single-store transaction.
func (s *Store) ForgetEntity(ctx context.Context, id, basedOnHash string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	e, _, err := ForgetEntityTx(tx, id, basedOnHash)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return e, nil
}

// GetEntityTx reads a single entity by (bare or prefixed) identifier
// inside an existing transaction, for callers composing a larger
// coordinated operation (e.g. the context engine's view bookkeeping).
func GetEntityTx(tx *sql.Tx, id string) (*Entity, error) {
	full, err := ids.Normalize(id, ids.Core)
	if err != nil {
		return nil, memerr.Validation("id", err.Error())
	}
	return scanEntityTx(tx, full)
}

// GetEntity reads a single entity by (bare or prefixed) identifier.
func (s *Store) GetEntity(id string) (*Entity, error) {
	full, err := ids.Normalize(id, ids.Core)
	if err != nil {
		return nil, memerr.Validation("id", err.Error())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := scanEntity(s.db.QueryRow(entitySelect+` WHERE id = ?`, full))
	if e2, ok := memerr.As(err); ok && e2.Code == memerr.NotFound {
		return nil, memerr.NotFoundErr(full)
	}
	return e, err
}

const entitySelect = `SELECT id, type, hash, previous_hash, version, created_at, updated_at,
	group_id, superseded_by, derived_from, deleted, data FROM entities`

func scanEntityTx(tx *sql.Tx, id string) (*Entity, error) {
	e, err := scanEntity(tx.QueryRow(entitySelect+` WHERE id = ?`, id))
	if e2, ok := memerr.As(err); ok && e2.Code == memerr.NotFound {
		return nil, memerr.NotFoundErr(id)
	}
	return e, err
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var typ string
	var createdAt, updatedAt int64
	var previousHash, groupID, supersededBy, derivedFrom sql.NullString
	var deleted int
	var data string
	err := row.Scan(&e.ID, &typ, &e.Hash, &previousHash, &e.Version, &createdAt, &updatedAt,
		&groupID, &supersededBy, &derivedFrom, &deleted, &data)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFoundErr("")
	}
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	return hydrateEntity(&e, typ, createdAt, updatedAt, previousHash, groupID, supersededBy, derivedFrom, deleted, data)
}

func hydrateEntity(e *Entity, typ string, createdAt, updatedAt int64, previousHash, groupID, supersededBy, derivedFrom sql.NullString, deleted int, data string) (*Entity, error) {
	e.Type = EntityType(typ)
	e.Data = json.RawMessage(data)
	e.Deleted = deleted != 0
	e.CreatedAt = millisToTime(createdAt)
	e.UpdatedAt = millisToTime(updatedAt)
	if previousHash.Valid {
		v := previousHash.String
		e.PreviousHash = &v
	}
	if groupID.Valid {
		v := groupID.String
		e.GroupID = &v
	}
	if supersededBy.Valid {
		v := supersededBy.String
		e.SupersededBy = &v
	}
	if derivedFrom.Valid && derivedFrom.String != "" {
		_ = json.Unmarshal([]byte(derivedFrom.String), &e.DerivedFrom)
	}
	return e, nil
}
