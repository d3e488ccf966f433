package relations

import (
	"go.uber.org/zap"

	"github.com/memogarden/memogarden/internal/coordinator"
)

// Engine wires the Transaction Coordinator together with a Summarizer to
// drive relation CRUD, significance scoring, and the fossilization sweep.
type Engine struct {
	Coord      *coordinator.Coordinator
	Summarizer Summarizer
	log        *zap.Logger
}

// NewEngine builds an Engine. A nil summarizer defaults to
// ExtractiveSummarizer, matching "extractive-fallback default".
func NewEngine(coord *coordinator.Coordinator, summarizer Summarizer, log *zap.Logger) *Engine {
	if summarizer == nil {
		summarizer = ExtractiveSummarizer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Coord: coord, Summarizer: summarizer, log: log}
}
