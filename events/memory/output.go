package memory

import "turnmemory/core"

// TurnCompletedEvent is emitted as soon as a user/assistant pair is matched,
// before the memory sink has been asked to store it.
type TurnCompletedEvent struct {
	Turn core.ConversationTurn `json:"turn"`
}

func (e *TurnCompletedEvent) GetId() string {
	return "memory.turn_completed"
}

func (e *TurnCompletedEvent) IsExternalOutput() {}

type TurnPersistedEvent struct {
	TurnID    string `json:"turn_id"`
	Duplicate bool   `json:"duplicate"`
}

func (e *TurnPersistedEvent) GetId() string {
	return "memory.turn_persisted"
}

func (e *TurnPersistedEvent) IsExternalOutput() {}

// TurnDroppedEvent reports a turn that was matched but never stored.
type TurnDroppedEvent struct {
	TurnID string `json:"turn_id"`
	Reason string `json:"reason"`
}

func (e *TurnDroppedEvent) GetId() string {
	return "memory.turn_dropped"
}

func (e *TurnDroppedEvent) IsExternalOutput() {}
