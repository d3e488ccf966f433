package dispatch

import (
	"context"

	"github.com/memogarden/memogarden/internal/soil"
)

func registerSearchVerbs(d *Dispatcher) {
	d.registerRead("search", BundleSearch, handleSearch)
}

// handleSearch implements the single `search` verb, dispatching into the
// Soil keyword index. Coverage defaults to the widest mode (`full`) and
// effort to `standard`; callers that want `quick`/`deep` or `names`/
// `content` must ask for it explicitly.
func handleSearch(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	query, err := getString(params, "query", true)
	if err != nil {
		return nil, err
	}
	coverage := soil.Coverage(optStr(params, "coverage"))
	if coverage == "" {
		coverage = soil.CoverageFull
	}
	effort := soil.Effort(optStr(params, "effort"))
	if effort == "" {
		effort = soil.EffortStandard
	}
	targetType := soil.FactType(optStr(params, "target_type"))
	limit := getInt(params, "limit", 0)
	cursor := optStr(params, "cursor")

	facts, next, err := d.Coord.Soil.SearchFacts(query, coverage, effort, targetType, limit, cursor)
	if err != nil {
		return nil, err
	}
	return map[string]any{"facts": facts, "next_cursor": next}, nil
}
