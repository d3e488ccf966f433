// Package app wires the substrate's components together from a resolved
// Config: open both stores, build the coordinator, the relation and
// context engines, and the verb dispatcher, in that dependency order.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/memogarden/memogarden/internal/config"
	"github.com/memogarden/memogarden/internal/contextengine"
	"github.com/memogarden/memogarden/internal/coordinator"
	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/dispatch"
	"github.com/memogarden/memogarden/internal/relations"
	"github.com/memogarden/memogarden/internal/soil"
)

// App bundles the open handles and engines for one running instance.
// Close releases both database handles; callers are expected to call it
// exactly once at shutdown, after draining in-flight handlers.
type App struct {
	Config     *config.Config
	Soil       *soil.Store
	Core       *core.Store
	Coord      *coordinator.Coordinator
	Relations  *relations.Engine
	Context    *contextengine.Engine
	Dispatcher *dispatch.Dispatcher
	Log        *zap.Logger
}

// Open resolves store paths from cfg, opens both databases, and builds
// every engine layered on top of them, ending with the verb dispatcher
// that is the single entry point for callers. It runs the startup
// consistency check before returning so a caller can act on the
// reported system status immediately.
func Open(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	soilPath := config.ResolveStorePath("soil", cfg.SoilDB, cfg.DataDir)
	corePath := config.ResolveStorePath("core", cfg.CoreDB, cfg.DataDir)

	soilStore, err := soil.Open(soilPath)
	if err != nil {
		return nil, fmt.Errorf("app: open soil store at %s: %w", soilPath, err)
	}
	coreStore, err := core.Open(corePath)
	if err != nil {
		soilStore.Close()
		return nil, fmt.Errorf("app: open core store at %s: %w", corePath, err)
	}

	coord := coordinator.New(soilStore, coreStore, cfg.BusyTimeout, log)

	var summarizer relations.Summarizer
	if cfg.SummaryMethod == "" || cfg.SummaryMethod == "extractive" {
		summarizer = relations.ExtractiveSummarizer{MaxContentRunes: cfg.SummaryMaxTokens}
	}
	relEngine := relations.NewEngine(coord, summarizer, log)

	ctxEngine := contextengine.NewEngine(coord, cfg.ContextBoundN, cfg.ViewCoalescenceTimeout, log)

	d := dispatch.New(coord, relEngine, ctxEngine, log)
	if len(cfg.RedactedParamPaths) > 0 {
		d.RedactedParamPaths = append(d.RedactedParamPaths, cfg.RedactedParamPaths...)
	}

	if _, err := coord.StartupConsistencyCheck(); err != nil {
		log.Warn("startup consistency check failed to run", zap.Error(err))
	}

	return &App{
		Config: cfg, Soil: soilStore, Core: coreStore, Coord: coord,
		Relations: relEngine, Context: ctxEngine, Dispatcher: d, Log: log,
	}, nil
}

// Close releases both store handles.
func (a *App) Close() error {
	soilErr := a.Soil.Close()
	coreErr := a.Core.Close()
	if soilErr != nil {
		return soilErr
	}
	return coreErr
}
