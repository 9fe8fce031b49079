package session

import "time"

// UserTranscriptEvent is delivered when the vendor finishes transcribing a
// user utterance.
type UserTranscriptEvent struct {
	ItemID     string    `json:"item_id"`
	Transcript string    `json:"transcript"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *UserTranscriptEvent) GetId() string {
	return "session.user_transcript_completed"
}

// AssistantTranscriptEvent is delivered when the transcript of an assistant
// audio response is complete.
type AssistantTranscriptEvent struct {
	ItemID     string    `json:"item_id"`
	Transcript string    `json:"transcript"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *AssistantTranscriptEvent) GetId() string {
	return "session.assistant_transcript_completed"
}

type ItemCreatedEvent struct {
	ItemID    string    `json:"item_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ItemCreatedEvent) GetId() string {
	return "session.item_created"
}

// OtherEvent carries any realtime event the turn pipeline does not consume.
type OtherEvent struct {
	Type      string    `json:"type"`
	ItemID    string    `json:"item_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *OtherEvent) GetId() string {
	return "session.other"
}

// ResetEvent clears all per-session turn state. It travels through the
// pipeline like any other event so it is ordered with them.
type ResetEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *ResetEvent) GetId() string {
	return "session.reset"
}
