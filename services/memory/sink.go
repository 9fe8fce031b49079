package memory

import (
	"context"
	"errors"

	"turnmemory/core"
)

var (
	ErrQueueFull  = errors.New("memory: persist queue full")
	ErrSinkClosed = errors.New("memory: dispatcher closed")
)

// Sink durably stores completed turns. Persist must be idempotent per
// turn.Key(): storing the same exchange again reports PersistDuplicate.
type Sink interface {
	Persist(ctx context.Context, turn core.ConversationTurn) (core.PersistStatus, error)
	Close() error
}

// Embedder produces the vector stored next to a memory.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DefaultImportance is the importance assigned to conversation memories.
const DefaultImportance = 0.5

func clampImportance(v float64) float64 {
	switch {
	case v <= 0:
		return DefaultImportance
	case v > 1:
		return 1
	default:
		return v
	}
}

func personaOf(turn core.ConversationTurn, fallback string) string {
	if turn.PersonaID != "" {
		return turn.PersonaID
	}
	if fallback != "" {
		return fallback
	}
	return "default"
}
