package dispatch

import (
	"context"
	"database/sql"
	"time"

	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
	"github.com/memogarden/memogarden/internal/soil"
)

var zeroTime time.Time

// notFoundOrInternal maps a lookup's sql.ErrNoRows to the not_found
// taxonomy code, and anything else to internal_error.
func notFoundOrInternal(id string, err error) error {
	if err == sql.ErrNoRows {
		return memerr.NotFoundErr(id)
	}
	return memerr.Internal(ids.DiagnosticID(), err)
}

func registerSoilVerbs(d *Dispatcher) {
	d.register("add", BundleSoil, handleSoilAdd)
	d.register("amend", BundleSoil, handleSoilAmend)
	d.registerRead("get_fact", BundleSoil, handleSoilGet)
	d.registerRead("query_fact", BundleSoil, handleSoilQuery)
}

func handleSoilAdd(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	typ, err := getString(params, "type", true)
	if err != nil {
		return nil, nil, err
	}
	f, err := soil.BuildFact(soil.FactType(typ), params["data"], params["metadata"], zeroTime)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Coord.Soil.InsertFactTx(soilTx, f); err != nil {
		return nil, nil, err
	}
	return f, []Event{{Kind: "fact_added", Payload: f}}, nil
}

func handleSoilAmend(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	rawID, err := getString(params, "id", true)
	if err != nil {
		return nil, nil, err
	}
	id, err := ids.Normalize(rawID, ids.Soil)
	if err != nil {
		return nil, nil, memerr.Validation("id", err.Error())
	}
	typ, err := getString(params, "type", true)
	if err != nil {
		return nil, nil, err
	}
	payload := getMap(params, "data")
	if payload == nil {
		payload = map[string]any{}
	}
	payload["supersedes"] = id

	newFact, err := soil.BuildFact(soil.FactType(typ), payload, params["metadata"], zeroTime)
	if err != nil {
		return nil, nil, err
	}

	var exists int
	if err := soilTx.QueryRow(`SELECT 1 FROM facts WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, nil, notFoundOrInternal(id, err)
	}
	if err := d.Coord.Soil.InsertFactTx(soilTx, newFact); err != nil {
		return nil, nil, err
	}
	if _, err := soilTx.Exec(`UPDATE facts SET superseded_by = ?, superseded_at = ? WHERE id = ?`,
		newFact.ID, newFact.RealizedAt.UnixMilli(), id); err != nil {
		return nil, nil, err
	}
	if _, err := soil.AddSystemRelationTx(soilTx, soil.RelSupersedes, newFact.ID, typ, id, typ, nil, nil); err != nil {
		return nil, nil, err
	}
	return newFact, []Event{{Kind: "fact_amended", Payload: newFact}}, nil
}

func handleSoilGet(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	id, err := getString(params, "id", true)
	if err != nil {
		return nil, err
	}
	f, err := d.Coord.Soil.GetFact(id)
	if err != nil {
		return nil, err
	}
	_ = d.Context.RecordAccess(ctx, actor.UUID, actor.Type, f.ID, string(f.Type))
	return f, nil
}

func handleSoilQuery(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	f := soil.FactFilter{
		Type:              soil.FactType(optStr(params, "type")),
		OnlyNotSuperseded: getBool(params, "only_not_superseded"),
		Fidelity:          soil.Fidelity(optStr(params, "fidelity")),
		Limit:             getInt(params, "limit", 0),
		Cursor:            optStr(params, "cursor"),
	}
	facts, next, err := d.Coord.Soil.ListFacts(f)
	if err != nil {
		return nil, err
	}
	return map[string]any{"facts": facts, "next_cursor": next}, nil
}
