package relations

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/soil"
)

// GraceDays is the window after a user relation's effective expiry during
// which a fresh access still saves it from the next sweep pass; a relation
// accessed within the grace window is left alive even though it has
// technically lapsed, so a sweep that races a read does not fossilize
// something the caller just touched.
const GraceDays = 1

// SweepResult summarizes one fossilization pass.
type SweepResult struct {
	DryRun              bool
	RelationsFossilized int
	FactsDegraded       int
	OrphanedFactIDs     []string
	FossilizedRelationIDs []string
}

// Sweep runs one fossilization pass. Candidate selection:
// user relations past effective expiry with no access inside GraceDays,
// and facts with no inbound alive user relation (orphaned) that have not
// already reached tombstone. Each candidate relation fossilizes inside its
// own coordinated transaction (Core delete + Soil system-relation insert);
// each candidate fact degrades one fidelity step inside its own Soil
// transaction, paired with a SystemEvent fact recording the transition.
// dryRun reports candidates without mutating anything.
func (e *Engine) Sweep(ctx context.Context, dryRun bool) (*SweepResult, error) {
	res := &SweepResult{DryRun: dryRun}
	today := ids.CurrentDay()

	relations, err := e.Coord.Core.ListAllAliveForSweep()
	if err != nil {
		return nil, err
	}
	for _, r := range relations {
		if !IsExpired(r, today) {
			continue
		}
		if today-r.LastAccessDay < GraceDays {
			continue
		}
		if dryRun {
			res.FossilizedRelationIDs = append(res.FossilizedRelationIDs, r.ID)
			continue
		}
		if err := e.fossilizeRelation(ctx, r); err != nil {
			e.log.Warn("sweep: relation fossilization failed", zap.String("relation_id", r.ID), zap.Error(err))
			continue
		}
		res.FossilizedRelationIDs = append(res.FossilizedRelationIDs, r.ID)
		res.RelationsFossilized++
	}

	cursor := ""
	for {
		facts, next, err := e.Coord.Soil.ListFacts(soil.FactFilter{OnlyNotSuperseded: true, Limit: 200, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, f := range facts {
			if f.Fidelity == soil.FidelityTombstone {
				continue
			}
			sig, err := e.FactSignificance(f.ID)
			if err != nil {
				continue
			}
			if !sig.Orphaned {
				continue
			}
			res.OrphanedFactIDs = append(res.OrphanedFactIDs, f.ID)
			if dryRun {
				continue
			}
			nextFid := nextFidelity(f.Fidelity)
			if err := e.degradeFact(ctx, f, nextFid); err != nil {
				e.log.Warn("sweep: fact degradation failed", zap.String("fact_id", f.ID), zap.Error(err))
				continue
			}
			res.FactsDegraded++
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return res, nil
}

// nextFidelity is the single monotone step an orphaned fact advances per
// sweep pass: full -> summary -> stub -> tombstone. Orphaned facts
// fossilize immediately rather than waiting on a separate schedule,
// but still progress one rung at a time so a fact's last surviving
// fidelity state is always observable between passes.
func nextFidelity(current soil.Fidelity) soil.Fidelity {
	switch current {
	case soil.FidelityFull:
		return soil.FidelitySummary
	case soil.FidelitySummary:
		return soil.FidelityStub
	default:
		return soil.FidelityTombstone
	}
}

func (e *Engine) degradeFact(ctx context.Context, f *soil.Fact, next soil.Fidelity) error {
	var replacement json.RawMessage
	if next != soil.FidelityTombstone {
		r, err := e.Summarizer.Summarize(ctx, f, next)
		if err != nil {
			return err
		}
		replacement = r
	}
	return e.Coord.WithSoilWriter(ctx, func(tx *sql.Tx) error {
		if err := soil.DegradeFidelityTx(tx, f.ID, f.Fidelity, next, replacement, ids.NowFunc().UTC()); err != nil {
			return err
		}
		event, err := soil.BuildFact(soil.TypeSystemEvent, map[string]any{
			"kind":    "fidelity_transition",
			"fact_id": f.ID,
			"from":    string(f.Fidelity),
			"to":      string(next),
		}, nil, ids.NowFunc().UTC())
		if err != nil {
			return err
		}
		return e.Coord.Soil.InsertFactTx(tx, event)
	})
}

// fossilizeRelation deletes r from Core and inserts its Soil system-relation
// counterpart inside one coordinated transaction, carrying the relation's
// identity across the core_ -> soil_ prefix flip via ids.Repin.
func (e *Engine) fossilizeRelation(ctx context.Context, r *core.UserRelation) error {
	soilID, err := ids.Repin(r.ID, ids.Soil)
	if err != nil {
		return err
	}
	return e.Coord.Coordinated(ctx, func(soilTx, coreTx *sql.Tx) error {
		if err := core.DeleteFossilizingRelationTx(coreTx, r.ID); err != nil {
			return err
		}
		var evidence any
		if len(r.Evidence) > 0 {
			evidence = r.Evidence
		}
		if _, err := soil.InsertSystemRelationWithIDTx(soilTx, soilID, soil.RelExplicitLink,
			r.SourceID, r.SourceType, r.TargetID, r.TargetType, evidence, nil); err != nil {
			return err
		}
		event, err := soil.BuildFact(soil.TypeSystemEvent, map[string]any{
			"kind":        "relation_fossilized",
			"relation_id": soilID,
			"kind_name":   r.Kind,
		}, nil, ids.NowFunc().UTC())
		if err != nil {
			return err
		}
		return e.Coord.Soil.InsertFactTx(soilTx, event)
	})
}
