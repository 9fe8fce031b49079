package core

import "time"

// Role identifies which side of an exchange produced a piece of text.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Opposite returns the role a half-turn of this role pairs with.
func (r Role) Opposite() Role {
	if r == RoleUser {
		return RoleAssistant
	}
	return RoleUser
}

// ConversationTurn is a matched user/assistant exchange. It is built once by
// the correlator and never modified afterwards.
type ConversationTurn struct {
	ID              string    `json:"id" yaml:"id"`
	SessionID       string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	PersonaID       string    `json:"persona_id,omitempty" yaml:"persona_id,omitempty"`
	UserItemID      string    `json:"user_item_id" yaml:"user_item_id"`
	AssistantItemID string    `json:"assistant_item_id" yaml:"assistant_item_id"`
	UserText        string    `json:"user_text" yaml:"user_text"`
	AssistantText   string    `json:"assistant_text" yaml:"assistant_text"`
	CompletedAt     time.Time `json:"completed_at" yaml:"completed_at"`
}

// Key identifies the exchange independently of the generated turn ID, so a
// replayed exchange maps to the same stored record.
func (t ConversationTurn) Key() string {
	return t.UserItemID + "|" + t.AssistantItemID
}

// Content renders the turn the way it is stored as a memory.
func (t ConversationTurn) Content() string {
	return "User: " + t.UserText + "\nAssistant: " + t.AssistantText
}

// PersistStatus is the outcome of handing a turn to a memory sink.
type PersistStatus string

const (
	PersistOK        PersistStatus = "ok"
	PersistDuplicate PersistStatus = "duplicate"
	PersistFailed    PersistStatus = "failed"
)
