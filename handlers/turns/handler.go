package turns

import (
	"sync/atomic"

	"turnmemory/core"
	"turnmemory/events/memory"
	"turnmemory/events/session"
)

// IMemoryService stores completed turns off the event loop.
type IMemoryService interface {
	core.IService
	Persister
	OnResult(func(turn core.ConversationTurn, status core.PersistStatus, err error))
}

// TurnHandler runs the correlator inside a session pipeline. It is the only
// goroutine that touches the correlator while the pipeline is running.
type TurnHandler struct {
	core.BaseHandler
	correlator *Correlator
	pending    atomic.Int64
}

func NewTurnHandler(config TurnsConfig, service IMemoryService, logger *core.Logger, opts ...Option) *TurnHandler {
	if logger == nil {
		logger = core.GetLogger()
	}
	h := &TurnHandler{
		BaseHandler: *core.NewBaseHandler(service, logger),
	}
	var persister Persister
	if service != nil {
		persister = service
		service.OnResult(h.reportResult)
	}
	h.correlator = NewCorrelator(config, persister, logger, opts...)
	return h
}

func (h *TurnHandler) Start() error {
	return h.RunLoop("TurnHandler", h.HandleEvent)
}

func (h *TurnHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *session.ResetEvent:
		h.correlator.Reset()
		h.Logger.With(map[string]interface{}{"reason": event.Reason}).Info("turn state reset")
	default:
		outcome := h.correlator.Process(event)
		if outcome.Kind == OutcomePaired {
			h.SendPacket(core.NewEventPacket(&memory.TurnCompletedEvent{
				Turn: *outcome.Turn,
			}, core.EventRelayDestinationNextService, "TurnHandler"))
		}
	}
	h.pending.Store(int64(h.correlator.Pending()))
	return nil
}

// Pending returns the waiting half count as of the last handled event. Safe
// to call from any goroutine.
func (h *TurnHandler) Pending() int {
	return int(h.pending.Load())
}

func (h *TurnHandler) reportResult(turn core.ConversationTurn, status core.PersistStatus, err error) {
	if status == core.PersistFailed {
		reason := "persist failed"
		if err != nil {
			reason = err.Error()
		}
		h.Logger.With(map[string]interface{}{"turn_id": turn.ID, "error": reason}).Warn("turn dropped")
		h.SendPacket(core.NewEventPacket(&memory.TurnDroppedEvent{
			TurnID: turn.ID,
			Reason: reason,
		}, core.EventRelayDestinationNextService, "TurnHandler"))
		return
	}
	h.SendPacket(core.NewEventPacket(&memory.TurnPersistedEvent{
		TurnID:    turn.ID,
		Duplicate: status == core.PersistDuplicate,
	}, core.EventRelayDestinationNextService, "TurnHandler"))
}

// Reset must only be called while the event loop is not running; a live
// pipeline resets through a session.ResetEvent instead.
func (h *TurnHandler) Reset() error {
	h.correlator.Reset()
	h.pending.Store(0)
	return h.BaseHandler.Reset()
}

// Cleanup clears all turn state together and stops the memory service.
func (h *TurnHandler) Cleanup() error {
	h.correlator.Reset()
	h.pending.Store(0)
	return h.BaseHandler.Cleanup()
}
