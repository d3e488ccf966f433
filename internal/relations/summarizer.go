package relations

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/memogarden/memogarden/internal/soil"
)

// Summarizer produces the replacement payload a fact takes on when it
// degrades fidelity. Implementations may call out to an LLM or
// other compression strategy; ExtractiveSummarizer is the dependency-free
// fallback used when no richer summarizer is configured.
type Summarizer interface {
	Summarize(ctx context.Context, f *soil.Fact, target soil.Fidelity) (json.RawMessage, error)
}

// ExtractiveSummarizer keeps a fact's name fields verbatim and truncates
// its content fields, producing a smaller payload without any external
// dependency. It is the default summarizer when the system is not
// configured with something smarter.
type ExtractiveSummarizer struct {
	// MaxContentRunes bounds how much of each content field survives
	// into a "summary"-fidelity payload. Zero uses a sensible default.
	MaxContentRunes int
}

const defaultExtractiveRunes = 280

func (s ExtractiveSummarizer) Summarize(_ context.Context, f *soil.Fact, target soil.Fidelity) (json.RawMessage, error) {
	limit := s.MaxContentRunes
	if limit <= 0 {
		limit = defaultExtractiveRunes
	}

	var decoded map[string]any
	if err := json.Unmarshal(f.Data, &decoded); err != nil {
		decoded = map[string]any{}
	}

	switch target {
	case soil.FidelityStub:
		stub := map[string]any{}
		for _, key := range []string{"title", "name", "subject"} {
			if v, ok := decoded[key]; ok {
				stub[key] = v
			}
		}
		return json.Marshal(stub)
	case soil.FidelityTombstone:
		return json.Marshal(map[string]any{"type": string(f.Type)})
	default: // summary
		out := map[string]any{}
		for k, v := range decoded {
			if str, ok := v.(string); ok {
				out[k] = truncateRunes(str, limit)
			} else {
				out[k] = v
			}
		}
		return json.Marshal(out)
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit])) + "…"
}
