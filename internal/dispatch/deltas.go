package dispatch

import (
	"database/sql"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/soil"
)

// writeDeltaTx converts one EntityDeltaRecord into an EntityDelta fact and
// inserts it into soilTx, the Soil half of the same coordinated
// transaction as the Core mutation it describes. context is the acting
// frame's containers snapshot, captured automatically on every mutation;
// nil for bookkeeping writes that don't themselves carry acting context
// (contextengine's own frame/view edits).
func writeDeltaTx(soilTx *sql.Tx, soilStore *soil.Store, d *core.EntityDeltaRecord, context []string) error {
	if d == nil {
		return nil
	}
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
	return soilStore.InsertFactTx(soilTx, f)
}

// writeDeltasTx writes a batch of EntityDeltaRecords with the same
// context snapshot, e.g. the bookkeeping writes contextengine produces
// when it appends a mutation event to every active scope frame.
func writeDeltasTx(soilTx *sql.Tx, soilStore *soil.Store, deltas []*core.EntityDeltaRecord, context []string) error {
	for _, d := range deltas {
		if err := writeDeltaTx(soilTx, soilStore, d, context); err != nil {
			return err
		}
	}
	return nil
}
