package turns

import (
	"io"
	"testing"
	"time"

	"turnmemory/core"
	"turnmemory/events/session"
)

var quietLogger = core.NewConsoleLogger(io.Discard, "ERROR")

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(ms int) { c.now = c.now.Add(time.Duration(ms) * time.Millisecond) }

type recordingPersister struct {
	turns []core.ConversationTurn
}

func (p *recordingPersister) Enqueue(turn core.ConversationTurn) {
	p.turns = append(p.turns, turn)
}

func user(itemID, text string) core.IEvent {
	return &session.UserTranscriptEvent{ItemID: itemID, Transcript: text}
}

func assistant(itemID, text string) core.IEvent {
	return &session.AssistantTranscriptEvent{ItemID: itemID, Transcript: text}
}

func newTestCorrelator(clock *fakeClock) (*Correlator, *recordingPersister) {
	p := &recordingPersister{}
	c := NewCorrelator(DefaultConfig(), p, quietLogger, WithClock(clock.Now), WithSession("s1", "ada"))
	return c, p
}

func TestCorrelator_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		events      []core.IEvent
		wantPairs   [][2]string // user text, assistant text
		wantPending int
	}{
		{
			name:      "user then assistant",
			events:    []core.IEvent{user("u1", "hi"), assistant("a1", "hello")},
			wantPairs: [][2]string{{"hi", "hello"}},
		},
		{
			name:      "assistant then user",
			events:    []core.IEvent{assistant("a1", "hello"), user("u1", "hi")},
			wantPairs: [][2]string{{"hi", "hello"}},
		},
		{
			name:        "breaker phrase is never buffered",
			events:      []core.IEvent{user("u1", DefaultBreakerPhrase)},
			wantPending: 0,
		},
		{
			name:      "breaker phrase assistant does not pair",
			events:    []core.IEvent{user("u1", "hi"), assistant("a0", DefaultBreakerPhrase), assistant("a1", "hello")},
			wantPairs: [][2]string{{"hi", "hello"}},
		},
		{
			name:      "user delivered twice",
			events:    []core.IEvent{user("u1", "hi"), user("u1", "hi"), assistant("a1", "hello")},
			wantPairs: [][2]string{{"hi", "hello"}},
		},
		{
			name:      "redelivery after pairing",
			events:    []core.IEvent{user("u1", "hi"), assistant("a1", "hello"), user("u1", "hi"), assistant("a1", "hello")},
			wantPairs: [][2]string{{"hi", "hello"}},
		},
		{
			name: "FIFO pairing leaves the newest user half waiting",
			events: []core.IEvent{
				user("A", "a"), user("B", "b"), user("C", "c"),
				assistant("x", "first"), assistant("y", "second"),
			},
			wantPairs:   [][2]string{{"a", "first"}, {"b", "second"}},
			wantPending: 1,
		},
		{
			name: "interleaved exchanges",
			events: []core.IEvent{
				user("u1", "one"), assistant("a1", "uno"),
				assistant("a2", "dos"), user("u2", "two"),
			},
			wantPairs: [][2]string{{"one", "uno"}, {"two", "dos"}},
		},
		{
			name: "other events are ignored",
			events: []core.IEvent{
				&session.ItemCreatedEvent{ItemID: "i1", Role: "user"},
				&session.OtherEvent{Type: "response.done"},
				nil,
			},
		},
		{
			name:   "missing item id and empty transcript are ignored",
			events: []core.IEvent{user("", "hi"), user("u1", "   "), assistant("a1", "")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c, p := newTestCorrelator(clock)
			for _, ev := range tt.events {
				clock.Advance(100)
				c.Process(ev)
			}

			if len(p.turns) != len(tt.wantPairs) {
				t.Fatalf("persisted %d turns, want %d: %+v", len(p.turns), len(tt.wantPairs), p.turns)
			}
			for i, want := range tt.wantPairs {
				got := p.turns[i]
				if got.UserText != want[0] || got.AssistantText != want[1] {
					t.Errorf("turn %d = (%q, %q), want (%q, %q)", i, got.UserText, got.AssistantText, want[0], want[1])
				}
			}
			if c.Pending() != tt.wantPending {
				t.Errorf("Pending() = %d, want %d", c.Pending(), tt.wantPending)
			}
		})
	}
}

func TestCorrelator_FIFOKeepsThirdUserHalf(t *testing.T) {
	clock := newFakeClock()
	c, p := newTestCorrelator(clock)

	for _, ev := range []core.IEvent{user("A", "a"), user("B", "b"), user("C", "c"), assistant("x", "1"), assistant("y", "2")} {
		clock.Advance(10)
		c.Process(ev)
	}

	if p.turns[0].UserItemID != "A" || p.turns[0].AssistantItemID != "x" {
		t.Errorf("first turn = %s|%s, want A|x", p.turns[0].UserItemID, p.turns[0].AssistantItemID)
	}
	if p.turns[1].UserItemID != "B" || p.turns[1].AssistantItemID != "y" {
		t.Errorf("second turn = %s|%s, want B|y", p.turns[1].UserItemID, p.turns[1].AssistantItemID)
	}
	waiting := c.Waiting()
	if len(waiting) != 1 || waiting[0].ItemID != "C" {
		t.Errorf("Waiting() = %+v, want only C", waiting)
	}
}

func TestCorrelator_Eviction(t *testing.T) {
	tests := []struct {
		name        string
		advanceMs   int
		wantEvicted int
		wantTurns   int
	}{
		{name: "one millisecond past the timeout", advanceMs: 15001, wantEvicted: 1, wantTurns: 0},
		{name: "exactly at the timeout", advanceMs: 15000, wantEvicted: 0, wantTurns: 1},
		{name: "well inside the timeout", advanceMs: 2000, wantEvicted: 0, wantTurns: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c, p := newTestCorrelator(clock)

			c.Process(user("u1", "hi"))
			clock.Advance(tt.advanceMs)
			outcome := c.Process(assistant("a1", "hello"))

			if len(outcome.Evicted) != tt.wantEvicted {
				t.Errorf("evicted %d halves, want %d", len(outcome.Evicted), tt.wantEvicted)
			}
			if len(p.turns) != tt.wantTurns {
				t.Errorf("persisted %d turns, want %d", len(p.turns), tt.wantTurns)
			}
		})
	}
}

func TestCorrelator_SweepRunsOnIgnoredEvents(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCorrelator(clock)

	c.Process(user("u1", "hi"))
	clock.Advance(15001)
	outcome := c.Process(&session.OtherEvent{Type: "response.done"})

	if outcome.Kind != OutcomeIgnored {
		t.Errorf("Kind = %v, want OutcomeIgnored", outcome.Kind)
	}
	if len(outcome.Evicted) != 1 || outcome.Evicted[0].ItemID != "u1" {
		t.Errorf("Evicted = %+v, want u1", outcome.Evicted)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestCorrelator_ConfiguredTimeout(t *testing.T) {
	clock := newFakeClock()
	p := &recordingPersister{}
	c := NewCorrelator(TurnsConfig{BreakerPhrase: "go on", HalfTurnTimeoutMs: 500}, p, quietLogger, WithClock(clock.Now))

	c.Process(user("u1", "go on"))
	c.Process(user("u2", "hi"))
	clock.Advance(501)
	c.Process(assistant("a1", "hello"))

	if len(p.turns) != 0 {
		t.Errorf("persisted %d turns, want 0", len(p.turns))
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want the assistant half only", c.Pending())
	}
}

func TestCorrelator_TurnFields(t *testing.T) {
	clock := newFakeClock()
	c, p := newTestCorrelator(clock)

	c.Process(assistant("a1", "hello"))
	clock.Advance(250)
	outcome := c.Process(user("u1", "hi"))

	if outcome.Kind != OutcomePaired || outcome.Turn == nil {
		t.Fatalf("Kind = %v, want OutcomePaired with a turn", outcome.Kind)
	}
	turn := p.turns[0]
	if turn.ID == "" {
		t.Error("turn ID is empty")
	}
	if turn.SessionID != "s1" || turn.PersonaID != "ada" {
		t.Errorf("session/persona = %q/%q, want s1/ada", turn.SessionID, turn.PersonaID)
	}
	if turn.UserItemID != "u1" || turn.AssistantItemID != "a1" {
		t.Errorf("items = %q/%q, want u1/a1", turn.UserItemID, turn.AssistantItemID)
	}
	if !turn.CompletedAt.Equal(clock.Now()) {
		t.Errorf("CompletedAt = %v, want %v", turn.CompletedAt, clock.Now())
	}
	if turn.Key() != "u1|a1" {
		t.Errorf("Key() = %q, want u1|a1", turn.Key())
	}
	if got, want := turn.Content(), "User: hi\nAssistant: hello"; got != want {
		t.Errorf("Content() = %q, want %q", got, want)
	}
	if c.Processed() != 2 {
		t.Errorf("Processed() = %d, want 2", c.Processed())
	}
}

func TestCorrelator_Reset(t *testing.T) {
	clock := newFakeClock()
	c, p := newTestCorrelator(clock)

	c.Process(user("u1", "hi"))
	c.Process(assistant("a1", "hello"))
	c.Process(user("u2", "still there?"))

	c.Reset()
	if c.Pending() != 0 || c.Processed() != 0 {
		t.Fatalf("after Reset: Pending() = %d, Processed() = %d, want 0, 0", c.Pending(), c.Processed())
	}

	// u2 is gone, and u1 is no longer remembered as processed.
	c.Process(user("u1", "hi"))
	c.Process(assistant("a2", "hello again"))
	if len(p.turns) != 2 {
		t.Fatalf("persisted %d turns, want 2", len(p.turns))
	}
	if p.turns[1].UserItemID != "u1" || p.turns[1].AssistantItemID != "a2" {
		t.Errorf("turn after reset = %s|%s, want u1|a2", p.turns[1].UserItemID, p.turns[1].AssistantItemID)
	}
}

func TestCorrelator_NilPersister(t *testing.T) {
	clock := newFakeClock()
	c := NewCorrelator(DefaultConfig(), nil, quietLogger, WithClock(clock.Now))

	c.Process(user("u1", "hi"))
	outcome := c.Process(assistant("a1", "hello"))
	if outcome.Kind != OutcomePaired {
		t.Errorf("Kind = %v, want OutcomePaired", outcome.Kind)
	}
}
