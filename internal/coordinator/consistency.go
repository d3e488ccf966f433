package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/soil"
)

// Mismatch describes one entity whose Core state and Soil EntityDelta
// history have diverged, surfaced by StartupConsistencyCheck and by the
// `diagnose`/`repair` CLI commands.
type Mismatch struct {
	EntityID string
	Reason   string
}

type entityDeltaPayload struct {
	EntityUUID string   `json:"entity_uuid"`
	EntityType string   `json:"entity_type"`
	Commit     string   `json:"commit"`
	Parent     []string `json:"parent"`
}

// StartupConsistencyCheck cross-validates Soil's EntityDelta facts against
// Core's entity table in both directions: every Core entity's current
// hash must be traceable to a Soil
// EntityDelta commit, and every EntityDelta's entity_uuid must name an
// entity that still exists in Core. Any mismatch flips system status to
// inconsistent and is returned for `diagnose`/`repair` to act on.
func (c *Coordinator) StartupConsistencyCheck() ([]Mismatch, error) {
	commitsByEntity := make(map[string]map[string]bool)
	cursor := ""
	for {
		facts, next, err := c.Soil.ListFacts(soil.FactFilter{Type: soil.TypeEntityDelta, Limit: 500, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, f := range facts {
			var p entityDeltaPayload
			if err := json.Unmarshal(f.Data, &p); err != nil {
				continue
			}
			if commitsByEntity[p.EntityUUID] == nil {
				commitsByEntity[p.EntityUUID] = make(map[string]bool)
			}
			commitsByEntity[p.EntityUUID][p.Commit] = true
		}
		if next == "" {
			break
		}
		cursor = next
	}

	var mismatches []Mismatch
	seen := make(map[string]bool)
	entCursor := ""
	for {
		entities, next, err := c.Core.QueryEntities(core.Filter{IncludeDeleted: true, Limit: 500, Cursor: entCursor})
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			seen[e.ID] = true
			commits, ok := commitsByEntity[e.ID]
			if !ok {
				mismatches = append(mismatches, Mismatch{EntityID: e.ID, Reason: "no EntityDelta history found in soil"})
				continue
			}
			if !commits[e.Hash] {
				mismatches = append(mismatches, Mismatch{EntityID: e.ID, Reason: fmt.Sprintf("core hash %s not recorded in any soil EntityDelta", e.Hash)})
			}
		}
		if next == "" {
			break
		}
		entCursor = next
	}

	for entityID := range commitsByEntity {
		if !seen[entityID] {
			mismatches = append(mismatches, Mismatch{EntityID: entityID, Reason: "soil EntityDelta references an entity absent from core"})
		}
	}

	if len(mismatches) > 0 {
		c.setStatus(StatusInconsistent)
	}
	return mismatches, nil
}

// RepairResult summarizes one `repair` pass.
type RepairResult struct {
	Repaired      []string
	Unrecoverable []Mismatch
}

// Repair replays Soil's EntityDelta chain against Core for every entity
// StartupConsistencyCheck flagged as missing or hash-diverged, restoring
// the Core row from the (authoritative) Soil history. A Core mutation
// with no matching EntityDelta at all is unrecoverable history — there is
// nothing to replay it from — so it is reported, not touched.
func (c *Coordinator) Repair(ctx context.Context) (*RepairResult, error) {
	if err := c.checkRecoveryWritable(); err != nil {
		return nil, err
	}

	mismatches, err := c.StartupConsistencyCheck()
	if err != nil {
		return nil, err
	}

	res := &RepairResult{}
	for _, m := range mismatches {
		steps, typ, createdAt, updatedAt, err := c.loadDeltaChain(m.EntityID)
		if err != nil || len(steps) == 0 {
			res.Unrecoverable = append(res.Unrecoverable, m)
			continue
		}
		repairErr := c.WithCoreWriterForRecovery(ctx, func(tx *sql.Tx) error {
			_, err := core.RestoreEntityFromDeltasTx(tx, typ, m.EntityID, steps, createdAt, updatedAt)
			return err
		})
		if repairErr != nil {
			c.log.Warn("repair: could not replay entity",
				zap.String("entity_id", m.EntityID), zap.Error(repairErr))
			res.Unrecoverable = append(res.Unrecoverable, m)
			continue
		}
		res.Repaired = append(res.Repaired, m.EntityID)
	}

	if len(res.Unrecoverable) == 0 {
		c.setStatus(StatusNormal)
	}
	return res, nil
}

// loadDeltaChain reads every EntityDelta fact for entityID out of Soil
// and converts them into the core.DeltaStep form RestoreEntityFromDeltasTx
// replays. ListFacts returns newest-first, but replay must run in
// ascending chain order (the restore seeds previous_hash = nil and
// recomputes forward), so the collected steps are re-sorted by
// realized_at before they are handed back.
func (c *Coordinator) loadDeltaChain(entityID string) ([]core.DeltaStep, core.EntityType, time.Time, time.Time, error) {
	type chainEntry struct {
		at   time.Time
		step core.DeltaStep
	}
	var entries []chainEntry
	var typ core.EntityType
	cursor := ""
	for {
		facts, next, err := c.Soil.ListFacts(soil.FactFilter{Type: soil.TypeEntityDelta, Limit: 500, Cursor: cursor})
		if err != nil {
			return nil, "", time.Time{}, time.Time{}, err
		}
		for _, f := range facts {
			var p entityDeltaFull
			if err := json.Unmarshal(f.Data, &p); err != nil {
				continue
			}
			if p.EntityUUID != entityID {
				continue
			}
			typ = core.EntityType(p.EntityType)
			entries = append(entries, chainEntry{
				at:   f.RealizedAt,
				step: core.DeltaStep{Commit: p.Commit, Parent: p.Parent, Set: p.Ops.Set, Unset: p.Ops.Unset},
			})
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(entries) == 0 {
		return nil, typ, time.Time{}, time.Time{}, nil
	}

	// Reverse the newest-first listing before the stable sort so that
	// deltas sharing a realized_at millisecond keep their insertion order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })

	steps := make([]core.DeltaStep, len(entries))
	for i, en := range entries {
		steps[i] = en.step
	}
	return steps, typ, entries[0].at, entries[len(entries)-1].at, nil
}

type entityDeltaFull struct {
	EntityUUID string              `json:"entity_uuid"`
	EntityType string              `json:"entity_type"`
	Commit     string              `json:"commit"`
	Parent     []string            `json:"parent"`
	Ops        core.EntityDeltaOps `json:"ops"`
}
