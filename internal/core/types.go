// Package core is the mutable entity registry: hash-chained records with
// optimistic locking, plus the Core-resident storage for active (alive)
// user relations before they fossilize into Soil.
package core

import (
	"encoding/json"
	"time"
)

// EntityType discriminates an entity's payload shape.
type EntityType string

const (
	TypeTransaction    EntityType = "Transaction"
	TypeRecurrence     EntityType = "Recurrence"
	TypeArtifact       EntityType = "Artifact"
	TypeLabel          EntityType = "Label"
	TypeOperator       EntityType = "Operator"
	TypeAgent          EntityType = "Agent"
	TypeScope          EntityType = "Scope"
	TypeConversationLog EntityType = "ConversationLog"
	TypeContextFrame   EntityType = "ContextFrame"
	TypeView           EntityType = "View"
	TypeViewMerge      EntityType = "ViewMerge"
)

// Entity is a mutable, hash-chained record.
type Entity struct {
	ID           string
	Type         EntityType
	Hash         string
	PreviousHash *string
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	GroupID      *string
	SupersededBy *string
	DerivedFrom  []string
	Deleted      bool
	Data         json.RawMessage
}

// SetOps maps field paths to new values; a JSON null means "unknown", not
// "delete". UnsetOps names field paths to clear entirely.
type SetOps map[string]json.RawMessage
type UnsetOps []string

// EntityDeltaOps is the [set, unset] instruction pair an edit records,
// carried into the EntityDelta fact that Soil stores alongside the
// mutation.
type EntityDeltaOps struct {
	Set   SetOps   `json:"set,omitempty"`
	Unset UnsetOps `json:"unset,omitempty"`
}

// EntityDeltaRecord is everything the coordinator needs to build the
// EntityDelta fact payload for an entity mutation; core computes it,
// the coordinator writes it to Soil in the same transaction.
type EntityDeltaRecord struct {
	EntityUUID string
	EntityType EntityType
	Commit     string
	Parent     []string // empty for creation, one prior hash for edit, >1 for merge
	Ops        EntityDeltaOps
}

// UserRelation is a mutable, decaying edge living in Core while alive
//. It fossilizes into a soil.SystemRelation of kind
// RelExplicitLink once its time horizon is exceeded and it is not
// refreshed.
type UserRelation struct {
	ID            string
	Kind          string
	SourceID      string
	SourceType    string
	TargetID      string
	TargetType    string
	CreatedDay    int
	LastAccessDay int
	TimeHorizon   int // absolute day-since-epoch; relation is alive while TimeHorizon >= today
	Strength      float64
	Evidence      json.RawMessage // the reason/source this relation was asserted; carried into the fossilized system relation
	Metadata      json.RawMessage // unvalidated extension data; not carried forward on fossilization
}

// UserRelationFilter constrains QueryUserRelations.
type UserRelationFilter struct {
	SourceID string
	TargetID string
	Kind     string
}

// Filter is the generic entity query shape: bare value ⇒ equality,
// {any:[...]} ⇒ membership, {not:value} ⇒ negation.
type Filter struct {
	Equals map[string]any
	Any    map[string][]any
	Not    map[string]any
	Type   EntityType
	IncludeDeleted bool
	OrderByField   string // not consulted: QueryEntities always orders by updated_at desc
	Limit          int
	Cursor         string
}
