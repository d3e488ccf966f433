package core

import "github.com/memogarden/memogarden/internal/memerr"

// trackDepthCap bounds lineage walks so a malformed or adversarial
// derived_from cycle can never make `track` loop forever.
const trackDepthCap = 1000

// TrackNode is one entity in a lineage tree returned by Track. An entity
// with more than one derived_from parent (a merge) produces more than one
// child-of-the-same-generation entry at that depth.
type TrackNode struct {
	Entity *Entity
	Depth  int
	Cycle  bool
}

// trackFrontierEntry is one node on the current BFS frontier, carrying the
// set of ancestor ids on the specific path from root down to it (inclusive).
// Path membership is what distinguishes a true cycle (a node that is its
// own ancestor) from a diamond (a node reached again via a second,
// non-overlapping path) — a node can be globally "seen" more than once
// without ever appearing on its own path.
type trackFrontierEntry struct {
	id   string
	path map[string]bool
}

// Track walks the derived_from ancestry of id breadth-first up to maxDepth
// generations (or trackDepthCap, whichever is smaller). A node reachable
// through two distinct, non-overlapping paths is a diamond: it is emitted
// as a full node each time it is reached — the identifier simply recurs,
// and readers detect shared nodes by identifier equality rather than by
// structural deduplication — though its ancestry is only expanded once;
// re-expanding an already-walked diamond's parents again would just repeat
// the same subtree. A node that reappears on its own path back to itself
// is a true cycle: it is reported with Cycle=true, as a bare stub, and is
// not expanded further.
func (s *Store) Track(id string, maxDepth int) ([]TrackNode, error) {
	if maxDepth <= 0 || maxDepth > trackDepthCap {
		maxDepth = trackDepthCap
	}
	root, err := s.GetEntity(id)
	if err != nil {
		return nil, err
	}

	expanded := map[string]bool{root.ID: true}
	// The target itself is the tree's depth-0 node, so an ancestor-less
	// entity still yields a single-node tree rather than nothing.
	out := []TrackNode{{Entity: root, Depth: 0}}
	frontier := []trackFrontierEntry{{id: root.ID, path: map[string]bool{root.ID: true}}}
	depth := 0

	for len(frontier) > 0 && depth < maxDepth {
		depth++
		var next []trackFrontierEntry
		for _, entry := range frontier {
			node, err := s.GetEntity(entry.id)
			if err != nil {
				if e, ok := memerr.As(err); ok && e.Code == memerr.NotFound {
					continue
				}
				return nil, err
			}
			for _, parentID := range node.DerivedFrom {
				if entry.path[parentID] {
					out = append(out, TrackNode{Entity: &Entity{ID: parentID}, Depth: depth, Cycle: true})
					continue
				}
				parent, err := s.GetEntity(parentID)
				if err != nil {
					if e, ok := memerr.As(err); ok && e.Code == memerr.NotFound {
						continue
					}
					return nil, err
				}
				out = append(out, TrackNode{Entity: parent, Depth: depth})

				if expanded[parentID] {
					continue
				}
				expanded[parentID] = true

				childPath := make(map[string]bool, len(entry.path)+1)
				for k := range entry.path {
					childPath[k] = true
				}
				childPath[parentID] = true
				next = append(next, trackFrontierEntry{id: parentID, path: childPath})
			}
		}
		frontier = next
	}
	return out, nil
}
