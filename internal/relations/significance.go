package relations

import (
	"context"
	"math"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
)

// Significance is the maximum nominal time horizon among a fact's inbound
// alive user relations. A fact with no inbound alive relation has
// no significance: it is orphaned and is a fossilization candidate
// regardless of its own age.
type Significance struct {
	Value    int
	Orphaned bool
}

// FactSignificance computes a fact's significance from the Core user
// relations currently targeting it. Only alive relations count; a relation
// already past its effective expiry is treated as if it did not exist,
// matching "absent = orphaned".
func (e *Engine) FactSignificance(factID string) (Significance, error) {
	rels, err := e.Coord.Core.QueryUserRelations(core.UserRelationFilter{TargetID: factID})
	if err != nil {
		return Significance{}, err
	}
	today := ids.CurrentDay()
	best := Significance{Orphaned: true}
	for _, r := range rels {
		if IsExpired(r, today) {
			continue
		}
		if best.Orphaned || r.TimeHorizon > best.Value {
			best = Significance{Value: r.TimeHorizon, Orphaned: false}
		}
	}
	return best, nil
}

// Access refreshes a user relation's lease on read or traversal:
// delta = current_day - last_access_at; new time_horizon =
// max(time_horizon, current_day) + ceil(delta * SafetyCoefficient);
// last_access_at = current_day. The advance formula is distinct from
// IsExpired, which governs whether a relation has already lapsed absent a
// refresh.
func Access(r *core.UserRelation) (newHorizon int, newLastAccess int) {
	today := ids.CurrentDay()
	delta := today - r.LastAccessDay
	if delta < 0 {
		delta = 0
	}
	advance := int(math.Ceil(float64(delta) * SafetyCoefficient))
	horizon := r.TimeHorizon
	if today > horizon {
		horizon = today
	}
	return horizon + advance, today
}

// AccessRelation implements the read/traversal refresh path: it loads the
// relation, applies Access, and persists the new horizon and last-access
// day via EditUserRelationTx-equivalent update, renewing the lease against
// fossilization.
func (e *Engine) AccessRelation(id string) (*core.UserRelation, error) {
	r, err := e.Coord.Core.GetUserRelation(id)
	if err != nil {
		return nil, err
	}
	newHorizon, today := Access(r)
	return e.Coord.Core.EditUserRelation(context.Background(), id, &newHorizon, nil, nil, today)
}
