package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDAndParseID(t *testing.T) {
	id := NewID(Soil)
	require.True(t, HasLayer(id, Soil))

	layer, opaque, err := ParseID(id)
	require.NoError(t, err)
	assert.Equal(t, Soil, layer)
	assert.NotEmpty(t, opaque)
}

func TestParseIDUnknownPrefix(t *testing.T) {
	_, _, err := ParseID("water_abc123")
	require.ErrorIs(t, err, ErrUnknownPrefix)
}

func TestNormalizeBareAndPrefixed(t *testing.T) {
	full, err := Normalize("abc123", Core)
	require.NoError(t, err)
	assert.Equal(t, "core_abc123", full)

	full, err = Normalize("soil_abc123", Core)
	require.NoError(t, err)
	assert.Equal(t, "soil_abc123", full)

	_, err = Normalize("bogus_abc123", Core)
	require.Error(t, err)
}

func TestRepin(t *testing.T) {
	repinned, err := Repin("core_xyz", Soil)
	require.NoError(t, err)
	assert.Equal(t, "soil_xyz", repinned)
}

func TestCanonicalJSONOrderAndNumericInvariance(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": map[string]any{"y": 1, "x": 2}}
	b := map[string]any{"c": map[string]any{"x": 2, "y": 1}, "a": 2, "b": 1}

	ca, err := CanonicalJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
	assert.Equal(t, `{"a":2,"b":1,"c":{"x":2,"y":1}}`, string(ca))

	cf, err := CanonicalJSON(map[string]any{"a": 2.0, "b": 1.0, "c": map[string]any{"x": 2.0, "y": 1.0}})
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cf))
}

func TestHashDeterministic(t *testing.T) {
	h1, err := Hash(map[string]any{"x": 1}, "")
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"x": 1}, "")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := Hash(map[string]any{"x": 1}, h1)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestCurrentDayAndDayToDate(t *testing.T) {
	NowFunc = func() time.Time { return Epoch.AddDate(0, 0, 5).Add(3 * time.Hour) }
	defer func() { NowFunc = time.Now }()

	assert.Equal(t, 5, CurrentDay())
	assert.True(t, DayToDate(5).Equal(Epoch.AddDate(0, 0, 5)))
}
