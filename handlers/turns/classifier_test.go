package turns

import (
	"testing"
	"time"

	"turnmemory/core"
	"turnmemory/events/session"
)

func TestClassifier_Classify(t *testing.T) {
	processed := ProcessedSet{}
	processed.Add("done-user")
	buffer := NewTurnBuffer()
	buffer.Insert(HalfTurn{ItemID: "waiting", Role: core.RoleUser, CreatedAt: time.Unix(0, 0)})
	c := NewClassifier(DefaultBreakerPhrase, processed, buffer)

	tests := []struct {
		name       string
		event      core.IEvent
		wantKind   Kind
		wantReason string
	}{
		{name: "user transcript", event: user("u1", "hi"), wantKind: KindUserHalf},
		{name: "assistant transcript", event: assistant("a1", "hello"), wantKind: KindAssistantHalf},
		{name: "breaker phrase", event: user("u2", DefaultBreakerPhrase), wantKind: KindIgnore, wantReason: "breaker phrase"},
		{name: "breaker phrase needs an exact match", event: user("u3", "please "+DefaultBreakerPhrase), wantKind: KindUserHalf},
		{name: "empty transcript", event: assistant("a2", " \n"), wantKind: KindIgnore, wantReason: "empty transcript"},
		{name: "missing item id", event: user("", "hi"), wantKind: KindIgnore, wantReason: "missing item id"},
		{name: "already processed", event: user("done-user", "hi"), wantKind: KindIgnore, wantReason: "item already processed"},
		{name: "already waiting", event: user("waiting", "hi"), wantKind: KindIgnore, wantReason: "item already waiting"},
		{name: "nil event", event: nil, wantKind: KindIgnore, wantReason: "nil event"},
		{name: "item created", event: &session.ItemCreatedEvent{ItemID: "i1"}, wantKind: KindIgnore, wantReason: "not a transcript event: session.item_created"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.event)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestClassifier_NoBreakerPhrase(t *testing.T) {
	c := NewClassifier("", ProcessedSet{}, NewTurnBuffer())
	if got := c.Classify(user("u1", DefaultBreakerPhrase)); got.Kind != KindUserHalf {
		t.Errorf("Kind = %v, want KindUserHalf when no breaker phrase is configured", got.Kind)
	}
}

func TestKind_Role(t *testing.T) {
	if KindUserHalf.Role() != core.RoleUser || KindAssistantHalf.Role() != core.RoleAssistant {
		t.Error("Kind.Role mismatch")
	}
	if core.RoleUser.Opposite() != core.RoleAssistant || core.RoleAssistant.Opposite() != core.RoleUser {
		t.Error("Role.Opposite mismatch")
	}
	if KindIgnore.String() != "ignore" {
		t.Errorf("KindIgnore.String() = %q", KindIgnore.String())
	}
}
