// Package dispatch implements the Verb Dispatcher & Audit Layer:
// the single submission point every verb bundle (core, soil, relations,
// context, track, search) goes through. Every invocation is wrapped with
// an Action/ActionResult audit pair linked by a result_of system relation,
// and successful commits fan out to subscribed event listeners.
package dispatch

import (
	"time"

	"github.com/memogarden/memogarden/internal/contextengine"
	"github.com/memogarden/memogarden/internal/memerr"
)

// Actor identifies who submitted a verb request: an Operator, an Agent,
// or (for scope-scoped bookkeeping) a Scope.
type Actor struct {
	UUID string                  `json:"uuid"`
	Type contextengine.OwnerType `json:"type"`
}

// Request is one verb submission: a bundle-qualified operation name and
// its parameters.
type Request struct {
	Op     string
	Params map[string]any
}

// Response is the envelope every submission returns.
type Response struct {
	OK        bool          `json:"ok"`
	Actor     Actor         `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
	Result    any           `json:"result,omitempty"`
	Error     *memerr.Error `json:"error,omitempty"`
}

// State names a step in the verb-handling state machine. States
// are logged as a handler progresses; terminal failures collapse straight
// to audited_end(error).
type State string

const (
	StateReceived     State = "received"
	StateAuthenticated State = "authenticated"
	StateValidated    State = "validated"
	StateAuditedBegin State = "audited_begin"
	StateExecuting    State = "executing"
	StateAuditedEnd   State = "audited_end"
	StateCommitted    State = "committed"
	StatePublished    State = "published"
)

// Bundle names a verb grouping.
type Bundle string

const (
	BundleCore      Bundle = "core"
	BundleSoil      Bundle = "soil"
	BundleRelations Bundle = "relations"
	BundleContext   Bundle = "context"
	BundleTrack     Bundle = "track"
	BundleSearch    Bundle = "search"
)
