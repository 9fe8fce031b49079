package turns

import (
	"time"

	"turnmemory/core"

	"github.com/google/uuid"
)

// Persister accepts completed turns for storage. Enqueue must not block.
type Persister interface {
	Enqueue(turn core.ConversationTurn)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(turn core.ConversationTurn)

func (f PersisterFunc) Enqueue(turn core.ConversationTurn) { f(turn) }

type OutcomeKind int

const (
	OutcomeIgnored OutcomeKind = iota
	OutcomeBuffered
	OutcomePaired
)

// Outcome describes what one Process call did.
type Outcome struct {
	Kind    OutcomeKind
	Reason  string                 // why the event was ignored
	Turn    *core.ConversationTurn // set for OutcomePaired
	Evicted []HalfTurn             // halves removed by the sweep before classification
}

type Option func(*Correlator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// WithSession stamps emitted turns with the session and persona they belong to.
func WithSession(sessionID, personaID string) Option {
	return func(c *Correlator) {
		c.sessionID = sessionID
		c.personaID = personaID
	}
}

// Correlator pairs user and assistant transcript halves into turns.
//
// It is not safe for concurrent use: callers deliver events one at a time,
// in order, from a single goroutine (the session's TurnHandler loop).
type Correlator struct {
	timeout    time.Duration
	buffer     *TurnBuffer
	processed  ProcessedSet
	classifier *Classifier
	persister  Persister
	logger     *core.Logger
	now        func() time.Time
	sessionID  string
	personaID  string
}

func NewCorrelator(config TurnsConfig, persister Persister, logger *core.Logger, opts ...Option) *Correlator {
	if logger == nil {
		logger = core.GetLogger()
	}
	buffer := NewTurnBuffer()
	processed := make(ProcessedSet)
	c := &Correlator{
		timeout:    config.Timeout(),
		buffer:     buffer,
		processed:  processed,
		classifier: NewClassifier(config.BreakerPhrase, processed, buffer),
		persister:  persister,
		logger:     logger.With(map[string]interface{}{"component": "correlator"}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process handles one session event: sweep stale halves, classify, then
// either pair with the oldest waiting opposite half or buffer the new half.
func (c *Correlator) Process(event core.IEvent) Outcome {
	now := c.now()
	outcome := Outcome{Evicted: c.sweep(now)}

	class := c.classifier.Classify(event)
	if class.Kind == KindIgnore {
		c.logger.With(map[string]interface{}{"item_id": class.ItemID, "reason": class.Reason}).Debug("event ignored")
		outcome.Kind = OutcomeIgnored
		outcome.Reason = class.Reason
		return outcome
	}

	role := class.Kind.Role()
	if waiting, ok := c.buffer.PopOldest(role.Opposite()); ok {
		turn := c.buildTurn(HalfTurn{ItemID: class.ItemID, Role: role, Text: class.Text, CreatedAt: now}, waiting, now)
		c.processed.Add(turn.UserItemID, turn.AssistantItemID)
		c.logger.With(map[string]interface{}{
			"turn_id":           turn.ID,
			"user_item_id":      turn.UserItemID,
			"assistant_item_id": turn.AssistantItemID,
			"waited_ms":         waiting.Age(now).Milliseconds(),
		}).Info("turn completed")
		if c.persister != nil {
			c.persister.Enqueue(turn)
		}
		outcome.Kind = OutcomePaired
		outcome.Turn = &turn
		return outcome
	}

	c.buffer.Insert(HalfTurn{ItemID: class.ItemID, Role: role, Text: class.Text, CreatedAt: now})
	c.logger.With(map[string]interface{}{"item_id": class.ItemID, "role": string(role), "pending": c.buffer.Len()}).Debug("half-turn buffered")
	outcome.Kind = OutcomeBuffered
	return outcome
}

func (c *Correlator) sweep(now time.Time) []HalfTurn {
	evicted := c.buffer.Sweep(now, c.timeout)
	for _, half := range evicted {
		c.logger.With(map[string]interface{}{
			"item_id": half.ItemID,
			"role":    string(half.Role),
			"age_ms":  half.Age(now).Milliseconds(),
		}).Debug("stale half-turn evicted")
	}
	return evicted
}

func (c *Correlator) buildTurn(incoming, waiting HalfTurn, now time.Time) core.ConversationTurn {
	user, assistant := incoming, waiting
	if incoming.Role == core.RoleAssistant {
		user, assistant = waiting, incoming
	}
	return core.ConversationTurn{
		ID:              uuid.New().String(),
		SessionID:       c.sessionID,
		PersonaID:       c.personaID,
		UserItemID:      user.ItemID,
		AssistantItemID: assistant.ItemID,
		UserText:        user.Text,
		AssistantText:   assistant.Text,
		CompletedAt:     now,
	}
}

// Reset clears the buffer and the processed set together.
func (c *Correlator) Reset() {
	c.buffer.Clear()
	clear(c.processed)
}

// Pending returns the number of waiting halves.
func (c *Correlator) Pending() int {
	return c.buffer.Len()
}

// Processed returns the number of item identifiers already used in turns.
func (c *Correlator) Processed() int {
	return len(c.processed)
}

// Waiting returns the waiting halves in arrival order.
func (c *Correlator) Waiting() []HalfTurn {
	return c.buffer.Snapshot()
}
