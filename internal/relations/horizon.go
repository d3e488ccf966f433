// Package relations implements the Relation & Time-Horizon Engine:
// user-relation CRUD, time-horizon arithmetic, fact significance, and the
// fossilization sweep that moves expired user relations from Core into
// Soil as immutable system relations.
package relations

import (
	"github.com/memogarden/memogarden/internal/core"
)

// SafetyCoefficient inflates a relation's time horizon on each access
// renewal.
const SafetyCoefficient = 1.2

// IsExpired reports whether r has passed its time horizon as of today.
// TimeHorizon is itself an absolute day-since-epoch, so aliveness is a
// direct comparison: alive while time_horizon >= current_day. The
// SafetyCoefficient only inflates the horizon when Access renews it; it
// is not reapplied here.
func IsExpired(r *core.UserRelation, today int) bool {
	return today > r.TimeHorizon
}
