package relations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/ids"
)

func withToday(day int, fn func()) {
	orig := ids.NowFunc
	ids.NowFunc = func() time.Time { return ids.Epoch.AddDate(0, 0, day) }
	defer func() { ids.NowFunc = orig }()
	fn()
}

func TestIsExpiredAliveAtExactHorizon(t *testing.T) {
	r := &core.UserRelation{TimeHorizon: 100}
	assert.False(t, IsExpired(r, 100), "alive ⇔ time_horizon >= current_day, boundary included")
	assert.False(t, IsExpired(r, 99))
	assert.True(t, IsExpired(r, 101))
}

func TestAccessAdvancesHorizonBySafetyCoefficient(t *testing.T) {
	r := &core.UserRelation{TimeHorizon: 110, LastAccessDay: 100}
	withToday(103, func() {
		newHorizon, newLastAccess := Access(r)
		// delta = 3, advance = ceil(3 * 1.2) = 4, horizon = max(110, 103) + 4
		assert.Equal(t, 114, newHorizon)
		assert.Equal(t, 103, newLastAccess)
	})
}

func TestAccessNeverMovesHorizonBackward(t *testing.T) {
	r := &core.UserRelation{TimeHorizon: 200, LastAccessDay: 190}
	withToday(195, func() {
		newHorizon, _ := Access(r)
		assert.GreaterOrEqual(t, newHorizon, r.TimeHorizon)
	})
}

func TestAccessWithNoElapsedTimeStillHoldsHorizon(t *testing.T) {
	r := &core.UserRelation{TimeHorizon: 50, LastAccessDay: 50}
	withToday(50, func() {
		newHorizon, newLastAccess := Access(r)
		assert.Equal(t, 50, newHorizon)
		assert.Equal(t, 50, newLastAccess)
	})
}
