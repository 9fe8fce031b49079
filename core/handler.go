package core

import (
	"context"
	"errors"
	"fmt"
)

type IService interface {
	Init(
		ctx context.Context,
	) error
	Cleanup() error
	Reset() error
}

type IHandler interface {
	Initialize(
		InputChan <-chan *EventPacket,
		outputChan chan<- *EventPacket,
		OutputTopChan chan<- *EventPacket,
		ctx context.Context,
	) error // Wires the handler into the pipeline and initializes its service.
	Start() error // Runs the handler's event loop. Blocks until the pipeline context ends.
	HandleEvent(packet *EventPacket) error

	Cleanup() error // Releases resources. Called once the event loop has returned.
	Reset() error   // Returns the handler to its initial state.
}

type BaseHandler struct {
	Service        IService
	Ctx            context.Context
	InputChan      <-chan *EventPacket
	Logger         *Logger
	outputNextChan chan<- *EventPacket
	outputTopChan  chan<- *EventPacket
}

func NewBaseHandler(service IService, logger *Logger) *BaseHandler {
	if logger == nil {
		logger = GetLogger()
	}
	return &BaseHandler{
		Service: service,
		Logger:  logger,
	}
}

func (h *BaseHandler) Initialize(
	InputChan <-chan *EventPacket,
	OutputNextChan chan<- *EventPacket,
	OutputTopChan chan<- *EventPacket,
	ctx context.Context,
) error {
	h.InputChan = InputChan
	h.outputNextChan = OutputNextChan
	h.outputTopChan = OutputTopChan
	h.Ctx = ctx
	if h.Logger == nil {
		h.Logger = GetLogger()
	}
	if h.Service == nil {
		return nil
	}
	return h.Service.Init(ctx)
}

func (h *BaseHandler) Cleanup() error {
	if h.Service == nil {
		return nil
	}
	return h.Service.Cleanup()
}

func (h *BaseHandler) Reset() error {
	if h.Service == nil {
		return nil
	}
	return h.Service.Reset()
}

// RunLoop feeds every packet from InputChan to handle, one at a time, until
// the context ends or the input channel is closed. Handler errors are logged
// and do not stop the loop; a panic is reported as a CriticalErrorEvent and
// the loop moves on to the next packet.
func (h *BaseHandler) RunLoop(name string, handle func(*EventPacket) error) error {
	for {
		select {
		case packet, ok := <-h.InputChan:
			if !ok {
				return nil
			}
			if err := h.safeHandle(name, handle, packet); err != nil {
				h.Logger.With(map[string]interface{}{"handler": name, "event": eventID(packet), "error": err}).Warn("event handling failed")
			}
		case <-h.Ctx.Done():
			return nil
		}
	}
}

func (h *BaseHandler) safeHandle(name string, handle func(*EventPacket) error, packet *EventPacket) (err error) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%s panicked on %s: %v", name, eventID(packet), r)
			h.SendPacket(NewEventPacket(&CriticalErrorEvent{Error: msg}, EventRelayDestinationTopService, name))
			err = errors.New(msg)
		}
	}()
	return handle(packet)
}

func eventID(packet *EventPacket) string {
	if packet == nil || packet.Event == nil {
		return "<nil>"
	}
	return packet.Event.GetId()
}

// SendPacket relays a packet according to its destination. It gives up if
// the pipeline context ends while the downstream channel is full.
func (h *BaseHandler) SendPacket(packet *EventPacket) {
	out := h.outputNextChan
	if packet.Destination == EventRelayDestinationTopService {
		out = h.outputTopChan
	}
	if out == nil {
		return
	}
	select {
	case out <- packet:
	case <-h.Ctx.Done():
	}
}
