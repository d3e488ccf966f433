package contextengine

// substantiveTypes is the fixed classification table: only these type
// tags promote a ContextFrame's containers on access. Covers both Core
// entity types and Soil fact types, since a container entry may point at
// either layer's object. Deliberately a static table, not data-driven.
var substantiveTypes = map[string]bool{
	"Artifact":        true,
	"Note":            true,
	"ConversationLog": true,
	"Scope":           true,
	"Message":         true,
	"Email":           true,
	"Transaction":     true,
	"Recurrence":      true,
}

// primitiveTypes lists the known non-promoting counterparts; anything
// absent from substantiveTypes is primitive by default, so this set
// exists only for documentation.
var primitiveTypes = map[string]bool{
	"Schema":       true,
	"Label":        true,
	"Operator":     true,
	"Agent":        true,
	"ContextFrame": true,
	"View":         true,
	"ViewMerge":    true,
	"ToolCall":     true,
	"SystemEvent":  true,
	"Action":       true,
	"ActionResult": true,
	"EntityDelta":  true,
}

// IsSubstantive reports whether typeTag promotes containers on access.
func IsSubstantive(typeTag string) bool {
	return substantiveTypes[typeTag]
}
