// Package coordinator implements the Transaction Coordinator: the
// only component allowed to open a transaction spanning both Soil and
// Core. It enforces exclusive writer access per database with a bounded
// wait, commits Soil before Core on every coordinated write, and tracks
// the system's overall consistency status.
package coordinator

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
	"github.com/memogarden/memogarden/internal/soil"
)

// Status is the system-wide consistency state.
type Status string

const (
	StatusNormal       Status = "normal"
	StatusInconsistent Status = "inconsistent"
	StatusReadOnly     Status = "read_only"
	StatusSafeMode     Status = "safe_mode"
)

// DefaultBusyTimeout is the default bound a writer waits for an exclusive
// slot before the caller receives lock_conflict.
const DefaultBusyTimeout = 5 * time.Second

// Coordinator serializes writer access to Soil and Core and runs
// cross-store transactions with soil-first commit ordering.
type Coordinator struct {
	Soil *soil.Store
	Core *core.Store

	log         *zap.Logger
	busyTimeout time.Duration

	soilWriter chan struct{}
	coreWriter chan struct{}

	mu     sync.RWMutex
	status Status
}

// New builds a Coordinator over already-open stores.
func New(soilStore *soil.Store, coreStore *core.Store, busyTimeout time.Duration, log *zap.Logger) *Coordinator {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		Soil: soilStore, Core: coreStore,
		log: log, busyTimeout: busyTimeout,
		soilWriter: make(chan struct{}, 1),
		coreWriter: make(chan struct{}, 1),
		status:     StatusNormal,
	}
	c.soilWriter <- struct{}{}
	c.coreWriter <- struct{}{}
	return c
}

// Status reports the current system consistency state.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus transitions the system-wide status. Unlike
// StatusInconsistent (only ever set by the coordinator itself, from a
// commit or startup-consistency-check outcome), StatusReadOnly and
// StatusSafeMode are operator/ops-tool-driven: an operator flips the
// system to read_only to freeze writes, and safe_mode is engaged when
// storage corruption is detected outside the coordinator's own commit
// path (e.g. by an operational health check ahead of startup). Exported
// so callers outside this package — the CLI, a future admin verb — can
// drive the transition; every mutating entry point below consults
// Status() before acquiring a writer slot.
func (c *Coordinator) SetStatus(s Status) {
	c.setStatus(s)
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != s {
		c.log.Warn("system status transition", zap.String("from", string(c.status)), zap.String("to", string(s)))
	}
	c.status = s
}

// checkWritable is the gate every ordinary mutating entry point consults
// before acquiring a writer slot: read_only refuses all writes,
// and safe_mode refuses everything except the dedicated recovery path
// (see checkRecoveryWritable): under safe_mode only diagnostics and
// recovery remain available.
func (c *Coordinator) checkWritable() error {
	switch c.Status() {
	case StatusReadOnly:
		return memerr.PermissionDeniedErr("system status is read_only: writes are refused")
	case StatusSafeMode:
		return memerr.PermissionDeniedErr("system status is safe_mode: only diagnostics and recovery are available")
	}
	return nil
}

// checkRecoveryWritable is the narrower gate the repair path uses: it
// still honors an operator-set read_only lock (repair is not one of
// read_only's exceptions) but lets a write through under safe_mode, since
// recovery is the one write safe_mode is meant to permit.
func (c *Coordinator) checkRecoveryWritable() error {
	if c.Status() == StatusReadOnly {
		return memerr.PermissionDeniedErr("system status is read_only: writes are refused")
	}
	return nil
}

// acquire waits up to c.busyTimeout (or until ctx is done, whichever is
// sooner) for the named writer slot.
func (c *Coordinator) acquire(ctx context.Context, slot chan struct{}, dbName string) error {
	timer := time.NewTimer(c.busyTimeout)
	defer timer.Stop()
	select {
	case <-slot:
		return nil
	case <-timer.C:
		return memerr.BusyTimeout(dbName)
	case <-ctx.Done():
		return memerr.BusyTimeout(dbName)
	}
}

func (c *Coordinator) release(slot chan struct{}) {
	slot <- struct{}{}
}

// WithSoilWriter runs fn with exclusive Soil writer access, for verbs
// that only ever touch Soil (e.g. a plain `add_fact` with no entity
// mutation attached). Refuses with permission_denied if the system status
// currently forbids writes.
func (c *Coordinator) WithSoilWriter(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	return c.withSoilWriterRaw(ctx, fn)
}

func (c *Coordinator) withSoilWriterRaw(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := c.acquire(ctx, c.soilWriter, "soil"); err != nil {
		return err
	}
	defer c.release(c.soilWriter)

	tx, err := c.Soil.DB().BeginTx(ctx, nil)
	if err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	return nil
}

// WithCoreWriter runs fn with exclusive Core writer access. Refuses with
// permission_denied if the system status currently forbids writes.
func (c *Coordinator) WithCoreWriter(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	return c.withCoreWriterRaw(ctx, fn)
}

// WithCoreWriterForRecovery is WithCoreWriter's narrower-gated twin for the
// `repair` path: it still honors an operator-set read_only lock
// but lets safe_mode's one permitted write class — recovery — through.
func (c *Coordinator) WithCoreWriterForRecovery(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := c.checkRecoveryWritable(); err != nil {
		return err
	}
	return c.withCoreWriterRaw(ctx, fn)
}

func (c *Coordinator) withCoreWriterRaw(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := c.acquire(ctx, c.coreWriter, "core"); err != nil {
		return err
	}
	defer c.release(c.coreWriter)

	tx, err := c.Core.DB().BeginTx(ctx, nil)
	if err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	return nil
}

// Coordinated runs a cross-store transaction: it acquires both writer
// slots (Soil first, to match commit ordering and avoid lock-order
// inversions with single-store callers), lets fn populate both
// transactions, then commits Soil before Core. If the Soil commit fails,
// both are abandoned cleanly. If
// the Core commit fails *after* Soil has already committed, the two
// stores have diverged: Soil holds a fact the Core mutation it accompanies
// no longer reflects. That is reported as internal_error with a fresh
// diagnostic id and flips system status to inconsistent; Soil is never
// rolled back after it has committed; a later operator `repair` pass is
// what reconciles it. Refuses with
// permission_denied if the system status currently forbids writes.
func (c *Coordinator) Coordinated(ctx context.Context, fn func(soilTx, coreTx *sql.Tx) error) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	if err := c.acquire(ctx, c.soilWriter, "soil"); err != nil {
		return err
	}
	defer c.release(c.soilWriter)
	if err := c.acquire(ctx, c.coreWriter, "core"); err != nil {
		return err
	}
	defer c.release(c.coreWriter)

	soilTx, err := c.Soil.DB().BeginTx(ctx, nil)
	if err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	defer soilTx.Rollback()

	coreTx, err := c.Core.DB().BeginTx(ctx, nil)
	if err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}
	defer coreTx.Rollback()

	if err := fn(soilTx, coreTx); err != nil {
		return err
	}

	if err := soilTx.Commit(); err != nil {
		return memerr.Internal(ids.DiagnosticID(), err)
	}

	if err := coreTx.Commit(); err != nil {
		diag := ids.DiagnosticID()
		c.log.Error("core commit failed after soil committed; stores diverged",
			zap.String("diagnostic_id", diag), zap.Error(err))
		c.setStatus(StatusInconsistent)
		return memerr.Internal(diag, err)
	}
	return nil
}
