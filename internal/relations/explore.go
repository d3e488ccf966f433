package relations

import (
	"github.com/memogarden/memogarden/internal/core"
	"github.com/memogarden/memogarden/internal/memerr"
)

func userFilterSource(node, kind string) core.UserRelationFilter {
	return core.UserRelationFilter{SourceID: node, Kind: kind}
}

func userFilterTarget(node, kind string) core.UserRelationFilter {
	return core.UserRelationFilter{TargetID: node, Kind: kind}
}

// Direction constrains which edges Explore follows relative to the
// current frontier node.
type Direction string

const (
	DirOutgoing Direction = "outgoing"
	DirIncoming Direction = "incoming"
	DirBoth     Direction = "both"
)

// ExploreNodeCap is the hard ceiling on nodes visited per Explore call,
// independent of whatever radius or node cap the caller requests.
const ExploreNodeCap = 2000

// ExploreRadiusCap is the hard ceiling on requested BFS radius.
const ExploreRadiusCap = 50

// ExploreEdge is one traversed edge, system or user, in the output graph.
type ExploreEdge struct {
	Kind     string
	SourceID string
	TargetID string
	Alive    bool // always true for system relations (immutable)
}

// ExploreResult is the node/edge set reached by a bounded BFS from anchor.
type ExploreResult struct {
	Nodes []string
	Edges []ExploreEdge
}

// Explore performs a breadth-first walk from anchor across both system
// relations (Soil) and alive user relations (Core), up to radius hops,
// optionally filtered to a single relation kind, capped at nodeCap nodes
// (further capped by ExploreNodeCap). Visited nodes are never revisited,
// so cycles terminate the walk along that path without special-casing.
func (e *Engine) Explore(anchor string, direction Direction, radius int, kindFilter string, nodeCap int) (*ExploreResult, error) {
	if radius < 0 || radius > ExploreRadiusCap {
		return nil, memerr.Validation("radius", "exceeds hard cap")
	}
	if nodeCap <= 0 || nodeCap > ExploreNodeCap {
		nodeCap = ExploreNodeCap
	}

	visited := map[string]bool{anchor: true}
	result := &ExploreResult{Nodes: []string{anchor}}
	frontier := []string{anchor}

	for hop := 0; hop < radius && len(visited) < nodeCap; hop++ {
		var next []string
		for _, node := range frontier {
			if len(visited) >= nodeCap {
				break
			}
			edges, err := e.edgesFor(node, direction, kindFilter)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				other := edge.TargetID
				if other == node {
					other = edge.SourceID
				}
				result.Edges = append(result.Edges, edge)
				if visited[other] {
					continue
				}
				if len(visited) >= nodeCap {
					break
				}
				visited[other] = true
				result.Nodes = append(result.Nodes, other)
				next = append(next, other)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return result, nil
}

func (e *Engine) edgesFor(node string, direction Direction, kindFilter string) ([]ExploreEdge, error) {
	var out []ExploreEdge

	if direction == DirOutgoing || direction == DirBoth {
		sysRels, err := e.Coord.Soil.QuerySystemRelationsFor(node, "", "")
		if err != nil {
			return nil, err
		}
		for _, r := range sysRels {
			if kindFilter != "" && string(r.Kind) != kindFilter {
				continue
			}
			out = append(out, ExploreEdge{Kind: string(r.Kind), SourceID: r.SourceID, TargetID: r.TargetID, Alive: true})
		}
		userRels, err := e.Coord.Core.QueryUserRelations(userFilterSource(node, kindFilter))
		if err != nil {
			return nil, err
		}
		for _, r := range userRels {
			out = append(out, ExploreEdge{Kind: r.Kind, SourceID: r.SourceID, TargetID: r.TargetID, Alive: true})
		}
	}

	if direction == DirIncoming || direction == DirBoth {
		sysRels, err := e.Coord.Soil.QuerySystemRelationsFor("", node, "")
		if err != nil {
			return nil, err
		}
		for _, r := range sysRels {
			if kindFilter != "" && string(r.Kind) != kindFilter {
				continue
			}
			out = append(out, ExploreEdge{Kind: string(r.Kind), SourceID: r.SourceID, TargetID: r.TargetID, Alive: true})
		}
		userRels, err := e.Coord.Core.QueryUserRelations(userFilterTarget(node, kindFilter))
		if err != nil {
			return nil, err
		}
		for _, r := range userRels {
			out = append(out, ExploreEdge{Kind: r.Kind, SourceID: r.SourceID, TargetID: r.TargetID, Alive: true})
		}
	}
	return out, nil
}
