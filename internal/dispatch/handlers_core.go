package dispatch

import (
	"context"
	"database/sql"

	"github.com/memogarden/memogarden/internal/core"
)

func registerCoreVerbs(d *Dispatcher) {
	d.register("create", BundleCore, handleCoreCreate)
	d.register("edit", BundleCore, handleCoreEdit)
	d.register("forget", BundleCore, handleCoreForget)
	d.registerRead("get", BundleCore, handleCoreGet)
	d.registerRead("query", BundleCore, handleCoreQuery)
}

// captureAndWrite runs the automatic-capture hook for a Core mutation and
// writes both the mutation's own EntityDelta (carrying the captured
// containers) and any bookkeeping deltas it produced.
func captureAndWrite(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, entityID string, delta *core.EntityDeltaRecord) error {
	containers, bookkeeping, err := d.Context.CaptureAndAppend(coreTx, actor.UUID, actor.Type, entityID)
	if err != nil {
		return err
	}
	if err := writeDeltaTx(soilTx, d.Coord.Soil, delta, containers); err != nil {
		return err
	}
	return writeDeltasTx(soilTx, d.Coord.Soil, bookkeeping, nil)
}

func handleCoreCreate(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	typ, err := getString(params, "type", true)
	if err != nil {
		return nil, nil, err
	}
	groupID := getStringPtr(params, "group_id")
	derivedFrom := getStringSlice(params, "derived_from")

	entity, delta, err := core.CreateEntityTx(coreTx, core.EntityType(typ), params["data"], groupID, derivedFrom)
	if err != nil {
		return nil, nil, err
	}
	if err := captureAndWrite(d, soilTx, coreTx, actor, entity.ID, delta); err != nil {
		return nil, nil, err
	}
	return entity, []Event{{Kind: "artifact_delta", Payload: entity}}, nil
}

func handleCoreEdit(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	id, err := getString(params, "id", true)
	if err != nil {
		return nil, nil, err
	}
	basedOnHash, err := getString(params, "based_on_hash", true)
	if err != nil {
		return nil, nil, err
	}
	set, err := toSetOps(getMap(params, "set"))
	if err != nil {
		return nil, nil, err
	}
	unset := core.UnsetOps(getStringSlice(params, "unset"))

	entity, delta, err := core.EditEntityTx(coreTx, id, set, unset, basedOnHash)
	if err != nil {
		return nil, nil, err
	}
	if err := captureAndWrite(d, soilTx, coreTx, actor, entity.ID, delta); err != nil {
		return nil, nil, err
	}
	return entity, []Event{{Kind: "artifact_delta", Payload: entity}}, nil
}

func handleCoreForget(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	id, err := getString(params, "id", true)
	if err != nil {
		return nil, nil, err
	}
	basedOnHash, err := getString(params, "based_on_hash", true)
	if err != nil {
		return nil, nil, err
	}
	entity, delta, err := core.ForgetEntityTx(coreTx, id, basedOnHash)
	if err != nil {
		return nil, nil, err
	}
	if err := captureAndWrite(d, soilTx, coreTx, actor, entity.ID, delta); err != nil {
		return nil, nil, err
	}
	return entity, []Event{{Kind: "artifact_delta", Payload: entity}}, nil
}

func handleCoreGet(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	id, err := getString(params, "id", true)
	if err != nil {
		return nil, err
	}
	entity, err := d.Coord.Core.GetEntity(id)
	if err != nil {
		return nil, err
	}
	_ = d.Context.RecordAccess(ctx, actor.UUID, actor.Type, entity.ID, string(entity.Type))
	return entity, nil
}

// parseEntityFilter decomposes the query filter language: a bare value is
// an equality test, {any: [...]} is membership, {not: value} is negation.
func parseEntityFilter(m map[string]any) (equals map[string]any, anyOf map[string][]any, not map[string]any) {
	equals = map[string]any{}
	anyOf = map[string][]any{}
	not = map[string]any{}
	for field, v := range m {
		if obj, ok := v.(map[string]any); ok && len(obj) == 1 {
			if list, ok := obj["any"].([]any); ok {
				anyOf[field] = list
				continue
			}
			if nv, present := obj["not"]; present {
				not[field] = nv
				continue
			}
		}
		equals[field] = v
	}
	return equals, anyOf, not
}

func handleCoreQuery(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	filter := getMap(params, "filter")
	if filter == nil {
		filter = getMap(params, "equals")
	}
	equals, anyOf, not := parseEntityFilter(filter)
	f := core.Filter{
		Equals:         equals,
		Any:            anyOf,
		Not:            not,
		Type:           core.EntityType(optStr(params, "type")),
		IncludeDeleted: getBool(params, "include_deleted"),
		OrderByField:   optStr(params, "order_by_field"),
		Limit:          getInt(params, "limit", 0),
		Cursor:         optStr(params, "cursor"),
	}
	entities, next, err := d.Coord.Core.QueryEntities(f)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entities": entities, "next_cursor": next}, nil
}
