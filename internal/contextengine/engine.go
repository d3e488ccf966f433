package contextengine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/memogarden/memogarden/internal/coordinator"
	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/soil"
)

// Engine wires the Transaction Coordinator together with the configured
// container bound (N) and View coalescence timeout. The context verbs
// themselves run through the *Tx functions against the dispatcher's live
// coordinated transaction; Engine carries the tunables they need plus the
// two hooks (RecordAccess, CaptureAndAppend) other handlers call.
type Engine struct {
	Coord              *coordinator.Coordinator
	ContainerBoundN    int
	CoalescenceTimeout time.Duration
	log                *zap.Logger
}

// NewEngine builds an Engine with the given tunables; zero values fall
// back to DefaultContextBoundN and DefaultCoalescenceTimeout.
func NewEngine(coord *coordinator.Coordinator, containerBoundN int, coalescenceTimeout time.Duration, log *zap.Logger) *Engine {
	if containerBoundN <= 0 {
		containerBoundN = DefaultContextBoundN
	}
	if coalescenceTimeout <= 0 {
		coalescenceTimeout = DefaultCoalescenceTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Coord: coord, ContainerBoundN: containerBoundN, CoalescenceTimeout: coalescenceTimeout, log: log}
}

// writeDeltasTx converts each EntityDeltaRecord into an EntityDelta fact
// and inserts it into soilTx, the Soil half of the coordinated transaction
// performing the triggering mutation.
func writeDeltasTx(soilTx *sql.Tx, soilStore *soil.Store, deltas []*core.EntityDeltaRecord, context []string) error {
	for _, d := range deltas {
		payload := map[string]any{
			"entity_uuid": d.EntityUUID,
			"entity_type": string(d.EntityType),
			"commit":      d.Commit,
			"parent":      d.Parent,
			"ops":         d.Ops,
			"context":     context,
		}
		f, err := soil.BuildFact(soil.TypeEntityDelta, payload, nil, ids.NowFunc().UTC())
		if err != nil {
			return err
		}
		if err := soilStore.InsertFactTx(soilTx, f); err != nil {
			return err
		}
	}
	return nil
}

// RecordAccess runs the read-path container-promotion rule in its own
// coordinated transaction, used by `get`/`get_fact` handlers when the
// accessed object is substantive.
func (e *Engine) RecordAccess(ctx context.Context, ownerUUID string, ownerType OwnerType, targetID, targetType string) error {
	return e.Coord.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error {
		deltas, err := RecordAccessTx(coreTx, ownerUUID, ownerType, targetID, targetType, e.ContainerBoundN, e.CoalescenceTimeout, ids.NowFunc().UTC())
		if err != nil {
			return err
		}
		return writeDeltasTx(soilTx, e.Coord.Soil, deltas, nil)
	})
}

// CaptureAndAppend is the automatic-capture hook the verb dispatcher calls
// from inside a mutation's own coordinated transaction: it appends the
// mutation event to the acting owner's frame and
// every active scope frame, and returns the containers snapshot to embed
// into the mutation's own EntityDelta payload. The EntityDeltas this
// produces for frame/view bookkeeping are returned as bookkeeping so the
// caller writes them alongside its own.
func (e *Engine) CaptureAndAppend(coreTx *sql.Tx, ownerUUID string, ownerType OwnerType, targetID string) (containers []string, bookkeeping []*core.EntityDeltaRecord, err error) {
	return AppendMutationEventTx(coreTx, ownerUUID, ownerType, targetID, ids.NowFunc().UTC(), e.CoalescenceTimeout)
}
