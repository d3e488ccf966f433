package dispatch

import (
	"database/sql"

	"github.com/memogarden/memogarden/internal/contextengine"
	"github.com/memogarden/memogarden/internal/ids"
)

// The context verbs all mutate frame and View entities, so they run as
// mutating handlers: the engine's *Tx functions execute against the live
// coordinated transaction and their frame/view EntityDeltas commit
// alongside the verb's Action/ActionResult pair.
func registerContextVerbs(d *Dispatcher) {
	d.register("enter", BundleContext, handleEnter)
	d.register("leave", BundleContext, handleLeave)
	d.register("focus", BundleContext, handleFocus)
	d.register("fork", BundleContext, handleFork)
	d.register("rejoin", BundleContext, handleRejoin)
}

func handleEnter(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	scope, err := getString(params, "scope", true)
	if err != nil {
		return nil, nil, err
	}
	_, fd, deltas, err := contextengine.EnterTx(coreTx, actor.UUID, actor.Type, scope)
	if err != nil {
		return nil, nil, err
	}
	if err := writeDeltasTx(soilTx, d.Coord.Soil, deltas, fd.Containers); err != nil {
		return nil, nil, err
	}
	return fd, []Event{{Kind: "context_updated", Scope: scope, Payload: fd}}, nil
}

func handleLeave(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	scope, err := getString(params, "scope", true)
	if err != nil {
		return nil, nil, err
	}
	_, fd, deltas, err := contextengine.LeaveTx(coreTx, actor.UUID, actor.Type, scope)
	if err != nil {
		return nil, nil, err
	}
	if err := writeDeltasTx(soilTx, d.Coord.Soil, deltas, fd.Containers); err != nil {
		return nil, nil, err
	}
	return fd, []Event{{Kind: "context_updated", Scope: scope, Payload: fd}}, nil
}

func handleFocus(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	scope, err := getString(params, "scope", true)
	if err != nil {
		return nil, nil, err
	}
	_, fd, deltas, err := contextengine.FocusTx(coreTx, actor.UUID, actor.Type, scope)
	if err != nil {
		return nil, nil, err
	}
	if err := writeDeltasTx(soilTx, d.Coord.Soil, deltas, fd.Containers); err != nil {
		return nil, nil, err
	}
	return fd, []Event{{Kind: "context_updated", Scope: scope, Payload: fd}}, nil
}

func handleFork(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	childAgentUUID, err := getString(params, "child_agent_uuid", true)
	if err != nil {
		return nil, nil, err
	}
	_, fd, deltas, err := contextengine.ForkTx(coreTx, actor.UUID, actor.Type, childAgentUUID)
	if err != nil {
		return nil, nil, err
	}
	if err := writeDeltasTx(soilTx, d.Coord.Soil, deltas, fd.Containers); err != nil {
		return nil, nil, err
	}
	return fd, []Event{{Kind: "frame_updated", Payload: fd}}, nil
}

func handleRejoin(d *Dispatcher, soilTx, coreTx *sql.Tx, actor Actor, params map[string]any) (any, []Event, error) {
	childAgentUUID, err := getString(params, "child_agent_uuid", true)
	if err != nil {
		return nil, nil, err
	}
	deltas, err := contextengine.RejoinTx(coreTx, childAgentUUID, ids.NowFunc().UTC())
	if err != nil {
		return nil, nil, err
	}
	if err := writeDeltasTx(soilTx, d.Coord.Soil, deltas, nil); err != nil {
		return nil, nil, err
	}
	result := map[string]any{"child_agent_uuid": childAgentUUID, "rejoined": true}
	return result, []Event{{Kind: "frame_updated", Payload: result}}, nil
}
