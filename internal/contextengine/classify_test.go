package contextengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSubstantivePromotingTypes(t *testing.T) {
	for _, typ := range []string{"Artifact", "Note", "ConversationLog", "Scope"} {
		assert.True(t, IsSubstantive(typ), "%s should be substantive", typ)
	}
}

func TestIsSubstantiveExcludesPrimitiveTypes(t *testing.T) {
	for _, typ := range []string{"Schema", "Label", "Operator", "Agent"} {
		assert.False(t, IsSubstantive(typ), "%s should be primitive", typ)
	}
}

func TestIsSubstantiveUnknownTypeDefaultsToPrimitive(t *testing.T) {
	assert.False(t, IsSubstantive("SomeFutureTag"))
}
