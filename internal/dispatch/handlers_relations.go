package dispatch

import (
	"context"
	"database/sql"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/relations"
)

// link/unlink/edit_relation write Core rows, so they run as mutating
// handlers against the live coordinated transaction; the pure reads
// (get_relation, query_relation, explore) stay on the read path.
func registerRelationsVerbs(d *Dispatcher) {
	d.register("link", BundleRelations, handleLink)
	d.register("unlink", BundleRelations, handleUnlink)
	d.register("edit_relation", BundleRelations, handleEditRelation)
	d.registerRead("get_relation", BundleRelations, handleGetRelation)
	d.registerRead("query_relation", BundleRelations, handleQueryRelation)
	d.registerRead("explore", BundleRelations, handleExplore)
}

func handleLink(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	kind := optStr(params, "kind")
	sourceID, err := getString(params, "source_id", true)
	if err != nil {
		return nil, nil, err
	}
	sourceType, err := getString(params, "source_type", true)
	if err != nil {
		return nil, nil, err
	}
	targetID, err := getString(params, "target_id", true)
	if err != nil {
		return nil, nil, err
	}
	targetType, err := getString(params, "target_type", true)
	if err != nil {
		return nil, nil, err
	}
	timeHorizon := getInt(params, "time_horizon", 0)
	strength := 1.0
	if s := getFloatPtr(params, "strength"); s != nil {
		strength = *s
	}
	r, err := relations.LinkTx(coreTx, kind, sourceID, sourceType, targetID, targetType, timeHorizon, strength, params["evidence"], params["metadata"])
	if err != nil {
		return nil, nil, err
	}
	return r, nil, nil
}

func handleUnlink(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	id, err := getString(params, "id", true)
	if err != nil {
		return nil, nil, err
	}
	if err := core.UnlinkUserRelationTx(coreTx, id); err != nil {
		return nil, nil, err
	}
	return map[string]any{"id": id, "unlinked": true}, nil, nil
}

func handleEditRelation(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	id, err := getString(params, "id", true)
	if err != nil {
		return nil, nil, err
	}
	r, err := core.EditUserRelationTx(coreTx, id, getIntPtr(params, "time_horizon"), getFloatPtr(params, "strength"), params["metadata"], ids.CurrentDay())
	if err != nil {
		return nil, nil, err
	}
	return r, nil, nil
}

// handleGetRelation reads one relation and, because a read is an access,
// renews its time-horizon lease; the refreshed relation is what the
// caller sees.
func handleGetRelation(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	id, err := getString(params, "id", true)
	if err != nil {
		return nil, err
	}
	return d.Rel.AccessRelation(id)
}

func handleQueryRelation(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	f := core.UserRelationFilter{
		SourceID: optStr(params, "source_id"),
		TargetID: optStr(params, "target_id"),
		Kind:     optStr(params, "kind"),
	}
	return d.Rel.QueryRelation(f)
}

func handleExplore(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	anchor, err := getString(params, "anchor", true)
	if err != nil {
		return nil, err
	}
	direction := relations.Direction(optStr(params, "direction"))
	if direction == "" {
		direction = relations.DirBoth
	}
	radius := getInt(params, "radius", 1)
	nodeCap := getInt(params, "node_cap", 0)
	return d.Rel.Explore(anchor, direction, radius, optStr(params, "kind"), nodeCap)
}
