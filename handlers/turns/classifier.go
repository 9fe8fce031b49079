package turns

import (
	"strings"

	"turnmemory/core"
	"turnmemory/events/session"
)

type Kind int

const (
	KindIgnore Kind = iota
	KindUserHalf
	KindAssistantHalf
)

func (k Kind) String() string {
	switch k {
	case KindUserHalf:
		return "user_half"
	case KindAssistantHalf:
		return "assistant_half"
	default:
		return "ignore"
	}
}

// Role maps a half kind to the speaker role.
func (k Kind) Role() core.Role {
	if k == KindAssistantHalf {
		return core.RoleAssistant
	}
	return core.RoleUser
}

// Classification is the classifier verdict for one event. Reason is set for
// KindIgnore.
type Classification struct {
	Kind   Kind
	ItemID string
	Text   string
	Reason string
}

func ignore(itemID, reason string) Classification {
	return Classification{Kind: KindIgnore, ItemID: itemID, Reason: reason}
}

// ProcessedSet records item identifiers that already became part of a turn.
type ProcessedSet map[string]struct{}

func (s ProcessedSet) Has(itemID string) bool {
	_, ok := s[itemID]
	return ok
}

func (s ProcessedSet) Add(itemIDs ...string) {
	for _, id := range itemIDs {
		s[id] = struct{}{}
	}
}

// Classifier decides whether an event is one half of an exchange.
type Classifier struct {
	breakerPhrase string
	processed     ProcessedSet
	buffer        *TurnBuffer
}

func NewClassifier(breakerPhrase string, processed ProcessedSet, buffer *TurnBuffer) *Classifier {
	return &Classifier{
		breakerPhrase: breakerPhrase,
		processed:     processed,
		buffer:        buffer,
	}
}

// Classify never fails: anything it cannot use comes back as KindIgnore.
func (c *Classifier) Classify(event core.IEvent) Classification {
	var kind Kind
	var itemID, text string
	switch ev := event.(type) {
	case *session.UserTranscriptEvent:
		kind, itemID, text = KindUserHalf, ev.ItemID, ev.Transcript
	case *session.AssistantTranscriptEvent:
		kind, itemID, text = KindAssistantHalf, ev.ItemID, ev.Transcript
	case nil:
		return ignore("", "nil event")
	default:
		return ignore("", "not a transcript event: "+event.GetId())
	}

	switch {
	case itemID == "":
		return ignore("", "missing item id")
	case c.breakerPhrase != "" && text == c.breakerPhrase:
		return ignore(itemID, "breaker phrase")
	case strings.TrimSpace(text) == "":
		return ignore(itemID, "empty transcript")
	case c.processed.Has(itemID):
		return ignore(itemID, "item already processed")
	case c.buffer.Has(itemID):
		return ignore(itemID, "item already waiting")
	}
	return Classification{Kind: kind, ItemID: itemID, Text: text}
}
