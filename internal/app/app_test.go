package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		SoilDB:                 ":memory:",
		CoreDB:                 ":memory:",
		BusyTimeout:            time.Second,
		ContextBoundN:          7,
		ViewCoalescenceTimeout: 5 * time.Second,
		SummaryMethod:          "extractive",
		SummaryMaxTokens:       256,
	}
}

func TestOpenWiresEveryComponentAndClosesCleanly(t *testing.T) {
	a, err := Open(testConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, a.Soil)
	require.NotNil(t, a.Core)
	require.NotNil(t, a.Coord)
	require.NotNil(t, a.Relations)
	require.NotNil(t, a.Context)
	require.NotNil(t, a.Dispatcher)

	assert.NoError(t, a.Close())
}

func TestOpenAppliesConfiguredRedactedParamPaths(t *testing.T) {
	cfg := testConfig()
	cfg.RedactedParamPaths = []string{"*.ssn"}

	a, err := Open(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Contains(t, a.Dispatcher.RedactedParamPaths, "*.ssn")
}
