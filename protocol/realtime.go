package protocol

import (
	"errors"
	"fmt"
	"time"

	"turnmemory/core"
	"turnmemory/events/session"

	"github.com/bytedance/sonic"
)

// Realtime event types forwarded by the console.
const (
	TypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeAudioTranscriptDone         = "response.audio_transcript.done"
	TypeOutputAudioTranscriptDone   = "response.output_audio_transcript.done"
	TypeItemCreated                 = "conversation.item.created"
	TypeSessionReset                = "session.reset"
)

var ErrMissingType = errors.New("protocol: realtime event missing type")

// RealtimeMessage is the subset of a vendor realtime event this service reads.
type RealtimeMessage struct {
	Type       string        `json:"type"`
	EventID    string        `json:"event_id,omitempty"`
	ItemID     string        `json:"item_id,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	Text       string        `json:"text,omitempty"`
	Timestamp  int64         `json:"timestamp,omitempty"` // unix milliseconds, set by the console
	Reason     string        `json:"reason,omitempty"`
	Item       *RealtimeItem `json:"item,omitempty"`
}

type RealtimeItem struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Role    string            `json:"role"`
	Content []RealtimeContent `json:"content,omitempty"`
}

type RealtimeContent struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// DecodeSessionEvent turns one console frame into a session event. Frames
// without a timestamp are stamped with receivedAt.
func DecodeSessionEvent(data []byte, receivedAt time.Time) (core.IEvent, error) {
	var msg RealtimeMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: decode realtime event: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}

	ts := receivedAt
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}
	text := msg.Transcript
	if text == "" {
		text = msg.Text
	}

	switch msg.Type {
	case TypeInputTranscriptionCompleted:
		return &session.UserTranscriptEvent{ItemID: msg.ItemID, Transcript: text, Timestamp: ts}, nil
	case TypeAudioTranscriptDone, TypeOutputAudioTranscriptDone:
		return &session.AssistantTranscriptEvent{ItemID: msg.ItemID, Transcript: text, Timestamp: ts}, nil
	case TypeItemCreated:
		ev := &session.ItemCreatedEvent{ItemID: msg.ItemID, Timestamp: ts}
		if msg.Item != nil {
			ev.ItemID = msg.Item.ID
			ev.Role = msg.Item.Role
			for _, c := range msg.Item.Content {
				if c.Text != "" {
					ev.Text = c.Text
					break
				}
				if c.Transcript != "" {
					ev.Text = c.Transcript
					break
				}
			}
		}
		return ev, nil
	case TypeSessionReset:
		return &session.ResetEvent{Reason: msg.Reason}, nil
	default:
		return &session.OtherEvent{Type: msg.Type, ItemID: msg.ItemID, Timestamp: ts}, nil
	}
}
