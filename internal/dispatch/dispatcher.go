package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/memogarden/memogarden/internal/contextengine"
	"github.com/memogarden/memogarden/internal/coordinator"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
	"github.com/memogarden/memogarden/internal/relations"
	"github.com/memogarden/memogarden/internal/soil"
)

// mutatingHandler executes a verb that writes to Core and/or Soil,
// inside the single Coordinated transaction that will also carry its
// audit facts: the mutation, its EntityDeltas, and the Action/
// ActionResult pair commit or discard together. Every verb that writes —
// core's create/edit/forget, soil's add/amend, the relation mutators
// (link/unlink/edit_relation), and the whole context bundle — registers
// through this shape. It returns the fan-out events to publish once the
// transaction commits.
type mutatingHandler func(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (result any, events []Event, err error)

// readHandler executes a verb that produces no mutation of its own
// (get/query/get_fact/query_fact/get_relation/query_relation/explore/
// track/search); its audit pair is written in a single Soil-only
// transaction after the handler returns. The `get` verbs' container
// promotion and get_relation's horizon refresh are side effects of
// reading and run through their own transactions inside the engines,
// independent of the audit write.
type readHandler func(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (result any, err error)

type verbSpec struct {
	bundle   Bundle
	mutating bool
	mutFn    mutatingHandler
	readFn   readHandler
}

// Dispatcher is the single submission point for every verb.
type Dispatcher struct {
	Coord   *coordinator.Coordinator
	Rel     *relations.Engine
	Context *contextengine.Engine
	Events  *EventBus

	RedactedParamPaths []string

	log   *zap.Logger
	verbs map[string]verbSpec
}

// New builds a Dispatcher wired to the given engines and registers every
// verb bundle.
func New(coord *coordinator.Coordinator, rel *relations.Engine, ctxEngine *contextengine.Engine, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		Coord:              coord,
		Rel:                rel,
		Context:            ctxEngine,
		RedactedParamPaths: DefaultRedactedParamPaths,
		log:                log,
		verbs:              map[string]verbSpec{},
	}
	d.Events = NewEventBus(func(sub string, e Event) {
		d.logDroppedEvent(sub, e)
	})
	registerCoreVerbs(d)
	registerSoilVerbs(d)
	registerRelationsVerbs(d)
	registerContextVerbs(d)
	registerTrackVerbs(d)
	registerSearchVerbs(d)
	return d
}

func (d *Dispatcher) register(op string, bundle Bundle, fn mutatingHandler) {
	d.verbs[op] = verbSpec{bundle: bundle, mutating: true, mutFn: fn}
}

func (d *Dispatcher) registerRead(op string, bundle Bundle, fn readHandler) {
	d.verbs[op] = verbSpec{bundle: bundle, mutating: false, readFn: fn}
}

func (d *Dispatcher) logDroppedEvent(sub string, e Event) {
	d.log.Warn("event dropped: subscriber buffer overflow",
		zap.String("subscriber", sub), zap.String("kind", e.Kind))
	_, _ = d.Coord.Soil.AddFact(context.Background(), soil.TypeSystemEvent, map[string]any{
		"kind":       "event_dropped",
		"subscriber": sub,
		"event_kind": e.Kind,
	}, nil, ids.NowFunc().UTC())
}

// Submit runs the full state machine for one verb request: received ->
// authenticated -> validated -> audited_begin -> executing -> audited_end
// -> committed -> published. Terminal errors collapse straight to
// audited_end(error) -> committed -> published.
func (d *Dispatcher) Submit(ctx context.Context, actor Actor, req Request) *Response {
	now := ids.NowFunc().UTC()
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateReceived)))

	if actor.UUID == "" {
		return d.errorResponse(actor, now, memerr.PermissionDeniedErr("actor identity is required"))
	}
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateAuthenticated)))

	spec, ok := d.verbs[req.Op]
	if !ok {
		return d.errorResponse(actor, now, memerr.Validation("op", fmt.Sprintf("unknown verb %q", req.Op)))
	}
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateValidated)))

	requestID := ids.NewID(ids.Soil)

	if spec.mutating {
		return d.submitMutating(ctx, actor, req, spec, requestID, now)
	}
	return d.submitRead(ctx, actor, req, spec, requestID, now)
}

// submitMutating runs the handler and its audit pair inside one
// Coordinated transaction, so a mutation and its Action/ActionResult
// facts commit or discard together. A handler business error
// (memerr.Error) still commits: the audit facts record the failure and
// nothing was mutated, since every mutating handler validates before its
// single entity write (see DESIGN.md). A transaction-infrastructure
// failure (storage I/O, busy timeout) is distinct and surfaces with no
// audit trail: when the Action fact itself cannot be written there is
// nothing durable to attach an outcome to.
func (d *Dispatcher) submitMutating(ctx context.Context, actor Actor, req Request, spec verbSpec, requestID string, now time.Time) *Response {
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateAuditedBegin)))

	var result any
	var events []Event
	var handlerErr error

	txErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				handlerErr = memerr.Internal(ids.DiagnosticID(), fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
				err = nil
			}
		}()
		return d.Coord.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error {
			actionID, err := writeActionTx(soilTx, d.Coord.Soil, requestID, req.Op, actor, req.Params, d.RedactedParamPaths)
			if err != nil {
				return err
			}
			d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateExecuting)))
			result, events, handlerErr = spec.mutFn(d, soilTx, coreTx, actor, req.Params)
			d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateAuditedEnd)))
			return writeActionResultTx(soilTx, d.Coord.Soil, requestID, req.Op, actionID, result, handlerErr)
		})
	}()
	if txErr != nil {
		// Keep an already-classified refusal (permission_denied from a
		// read_only/safe_mode status, lock_conflict from a busy timeout)
		// as-is; only unclassified infrastructure faults become
		// internal_error.
		return d.errorResponse(actor, now, txErr)
	}
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateCommitted)))

	if handlerErr != nil {
		return d.errorResponse(actor, now, handlerErr)
	}
	for _, e := range events {
		d.Events.Publish(e)
	}
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StatePublished)))
	return &Response{OK: true, Actor: actor, Timestamp: now, Result: result}
}

// submitRead runs a non-mutating handler outside any Core/Soil write
// transaction, then records its audit pair in a single Soil-only
// transaction.
func (d *Dispatcher) submitRead(ctx context.Context, actor Actor, req Request, spec verbSpec, requestID string, now time.Time) *Response {
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateAuditedBegin)))

	var result any
	var handlerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				handlerErr = memerr.Internal(ids.DiagnosticID(), fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
			}
		}()
		d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateExecuting)))
		result, handlerErr = spec.readFn(d, ctx, actor, req.Params)
	}()
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateAuditedEnd)))

	auditErr := d.Coord.WithSoilWriter(ctx, func(tx *sql.Tx) error {
		actionID, err := writeActionTx(tx, d.Coord.Soil, requestID, req.Op, actor, req.Params, d.RedactedParamPaths)
		if err != nil {
			return err
		}
		return writeActionResultTx(tx, d.Coord.Soil, requestID, req.Op, actionID, result, handlerErr)
	})
	if auditErr != nil {
		d.log.Error("audit write failed", zap.String("op", req.Op), zap.Error(auditErr))
		return d.errorResponse(actor, now, memerr.Internal(ids.DiagnosticID(), auditErr))
	}
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StateCommitted)))

	if handlerErr != nil {
		return d.errorResponse(actor, now, handlerErr)
	}
	d.log.Debug("verb state", zap.String("op", req.Op), zap.String("state", string(StatePublished)))
	return &Response{OK: true, Actor: actor, Timestamp: now, Result: result}
}

func (d *Dispatcher) errorResponse(actor Actor, now time.Time, err error) *Response {
	me, ok := memerr.As(err)
	if !ok {
		me = memerr.Internal(ids.DiagnosticID(), err)
	}
	return &Response{OK: false, Actor: actor, Timestamp: now, Error: me}
}
