package core

import (
	"time"

	"github.com/google/uuid"
)

type EventRelayDestination int

const (
	EventRelayDestinationNextService EventRelayDestination = iota + 1 // Pass to the next handler in the pipeline.
	EventRelayDestinationTopService                                   // Pass back to the top of the pipeline so every handler sees it.
)

type EventPacket struct {
	Event       IEvent
	Destination EventRelayDestination
	Uid         string    // Unique identifier for tracking the event packet.
	Relayer     string    // Identifier of the component that relayed the event.
	ReceivedAt  time.Time // When the packet entered the pipeline.
}

func NewEventPacket(event IEvent, destination EventRelayDestination, relayer string) *EventPacket {
	return &EventPacket{
		Event:       event,
		Destination: destination,
		Uid:         uuid.New().String(),
		Relayer:     relayer,
		ReceivedAt:  time.Now(),
	}
}
