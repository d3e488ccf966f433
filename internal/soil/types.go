// Package soil is the immutable fact timeline: append-only typed records
// with integrity hashes, fidelity states, supersession links, and immutable
// structural (system) relations.
package soil

import (
	"encoding/json"
	"time"
)

// FactType discriminates the payload carried by a Fact. Unknown-type
// registration is a separate, out-of-scope verb; the core only ever
// discriminates on these known tags.
type FactType string

const (
	TypeNote         FactType = "Note"
	TypeMessage      FactType = "Message"
	TypeEmail        FactType = "Email"
	TypeToolCall     FactType = "ToolCall"
	TypeEntityDelta  FactType = "EntityDelta"
	TypeSystemEvent  FactType = "SystemEvent"
	TypeAction       FactType = "Action"
	TypeActionResult FactType = "ActionResult"
)

var knownFactTypes = map[FactType]bool{
	TypeNote: true, TypeMessage: true, TypeEmail: true, TypeToolCall: true,
	TypeEntityDelta: true, TypeSystemEvent: true, TypeAction: true, TypeActionResult: true,
}

// IsKnownType reports whether t is one of the statically discriminated
// type tags. Callers may still register application-defined tags through
// the (out-of-scope) schema registration verb. Fact creation does not call
// this: BuildFact accepts any non-empty type tag.
func IsKnownType(t FactType) bool {
	return knownFactTypes[t]
}

// Fidelity is the monotone degradation ladder a fact's content follows as
// it fossilizes: full -> summary -> stub -> tombstone.
type Fidelity string

const (
	FidelityFull      Fidelity = "full"
	FidelitySummary   Fidelity = "summary"
	FidelityStub      Fidelity = "stub"
	FidelityTombstone Fidelity = "tombstone"
)

var fidelityRank = map[Fidelity]int{
	FidelityFull: 0, FidelitySummary: 1, FidelityStub: 2, FidelityTombstone: 3,
}

// Advances reports whether moving from f to next is a legal (non-regressing)
// fidelity transition.
func (f Fidelity) Advances(next Fidelity) bool {
	return fidelityRank[next] > fidelityRank[f]
}

// Fact is an immutable timeline entry. Once written, no field changes
// except SupersededBy, SupersededAt, Fidelity, FossilizedAt, and Data
// (which fidelity degradation replaces).
type Fact struct {
	ID            string
	Type          FactType
	RealizedAt    time.Time
	CanonicalAt   time.Time
	IntegrityHash string
	Fidelity      Fidelity
	SupersededBy  *string
	SupersededAt  *time.Time
	FossilizedAt  *time.Time
	Data          json.RawMessage
	Metadata      json.RawMessage
}

// RelationKind enumerates the immutable structural edge kinds.
type RelationKind string

const (
	RelTriggers    RelationKind = "triggers"
	RelCites       RelationKind = "cites"
	RelRepliesTo   RelationKind = "replies_to"
	RelDerivesFrom RelationKind = "derives_from"
	RelContains    RelationKind = "contains"
	RelContinues   RelationKind = "continues"
	RelSupersedes  RelationKind = "supersedes"
	RelResultOf    RelationKind = "result_of"
	// RelExplicitLink is the kind a user relation becomes when it
	// fossilizes from Core into Soil.
	RelExplicitLink RelationKind = "explicit_link"
)

// SystemRelation is an immutable directed edge. Uniqueness is enforced on
// (Kind, SourceID, TargetID); re-inserting an existing triple is a no-op.
type SystemRelation struct {
	ID         string
	Kind       RelationKind
	SourceID   string
	SourceType string
	TargetID   string
	TargetType string
	CreatedAt  int // days since ids.Epoch
	Evidence   json.RawMessage
	Metadata   json.RawMessage
}

// Coverage is a search breadth level.
type Coverage string

const (
	CoverageNames   Coverage = "names"
	CoverageContent Coverage = "content"
	CoverageFull    Coverage = "full"
)

// Effort is a search thoroughness mode.
type Effort string

const (
	EffortQuick    Effort = "quick"
	EffortStandard Effort = "standard"
	EffortDeep     Effort = "deep"
)

// FactFilter constrains ListFacts.
type FactFilter struct {
	Type             FactType // empty = any
	OnlyNotSuperseded bool
	Fidelity         Fidelity // empty = any
	Limit            int
	Cursor           string // opaque continuation token
}
