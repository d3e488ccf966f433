// Package contextengine implements the Context Engine: per-owner
// attention state (ContextFrame), the View stream with coalescence,
// scope activation, fork/rejoin of subordinate contexts, and the
// automatic capture of a mutation's acting context into its EntityDelta.
//
// ContextFrame, View, and ViewMerge are ordinary Core entities
// (core.TypeContextFrame / TypeView / TypeViewMerge); this package only
// adds the domain logic layered on top of core's generic hash-chained
// storage, matching the same "entity payload is a typed, validated JSON
// blob" pattern the rest of Core uses.
package contextengine

import (
	"encoding/json"
	"time"
)

// OwnerType is who a ContextFrame belongs to.
type OwnerType string

const (
	OwnerOperator OwnerType = "operator"
	OwnerAgent    OwnerType = "agent"
	OwnerScope    OwnerType = "scope"
)

// DefaultContextBoundN is N, the container-list length bound, before
// config overrides it.
const DefaultContextBoundN = 7

// DefaultCoalescenceTimeout is the inactivity threshold before a View ends
// and a new one begins.
const DefaultCoalescenceTimeout = 5 * time.Second

// FrameData is the JSON payload of a core.TypeContextFrame entity.
type FrameData struct {
	OwnerUUID     string   `json:"owner_uuid"`
	OwnerType     OwnerType `json:"owner_type"`
	Containers    []string `json:"containers"`
	ActiveScopes  []string `json:"active_scopes"`
	PrimaryScope  *string  `json:"primary_scope"`
	ViewHead      *string  `json:"view_head"`
	ParentFrame   *string  `json:"parent_frame,omitempty"`
	Suspended     bool     `json:"suspended"`
}

// ActionKind discriminates one recorded attention event within a View's
// ordered action log.
type ActionKind string

const (
	ActionVisit    ActionKind = "visit"
	ActionMutation ActionKind = "mutation"
	ActionBreak    ActionKind = "break"
)

// ViewAction is one entry in a View's action log.
type ViewAction struct {
	Kind      ActionKind `json:"kind"`
	TargetID  string     `json:"target_id,omitempty"`
	Scope     string     `json:"scope,omitempty"`
	At        time.Time  `json:"at"`
}

// ViewData is the JSON payload of a core.TypeView (or TypeViewMerge)
// entity.
type ViewData struct {
	OwnerFrame   string       `json:"owner_frame"`
	Prev         *string      `json:"prev"`
	StartedAt    time.Time    `json:"started_at"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
	Actions      []ViewAction `json:"actions"`
	MergedViews  []string     `json:"merged_views,omitempty"`
	PrimaryScope string       `json:"primary_scope,omitempty"`
}

func unmarshalFrame(raw json.RawMessage) (FrameData, error) {
	var f FrameData
	err := json.Unmarshal(raw, &f)
	return f, err
}

func unmarshalView(raw json.RawMessage) (ViewData, error) {
	var v ViewData
	err := json.Unmarshal(raw, &v)
	return v, err
}
