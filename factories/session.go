package factories

import (
	"context"
	"time"

	"turnmemory/controlplane"
	"turnmemory/core"
	"turnmemory/handlers/turns"
	"turnmemory/protocol"
	"turnmemory/runner"
	"turnmemory/services/memory"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// SessionInfo identifies one console session.
type SessionInfo struct {
	SessionID string
	PersonaID string
	StartedAt time.Time
}

// Session is one console connection's pipeline: a runner driving a
// TurnHandler whose correlator belongs to this session alone.
type Session struct {
	Info   SessionInfo
	Runner *runner.Runner
	Turns  *turns.TurnHandler
	Logger *core.Logger

	controlPlane *controlplane.Client
	logWriter    core.LogWriter
}

// SessionFactory builds sessions that share one memory sink.
type SessionFactory struct {
	settings     SettingsConfig
	sink         memory.Sink
	logger       *core.Logger
	controlPlane *controlplane.Client
}

// NewSessionFactory creates a factory. controlPlane may be nil.
func NewSessionFactory(settings SettingsConfig, sink memory.Sink, controlPlane *controlplane.Client, logger *core.Logger) *SessionFactory {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &SessionFactory{
		settings:     settings,
		sink:         sink,
		logger:       logger,
		controlPlane: controlPlane,
	}
}

// NewSession builds, but does not start, a session pipeline.
func (f *SessionFactory) NewSession(info SessionInfo) (*Session, error) {
	if info.SessionID == "" {
		info.SessionID = uuid.New().String()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}

	base := f.logger
	var writer core.LogWriter
	switch {
	case f.controlPlane != nil:
		writer = controlplane.NewWSLogWriter(f.controlPlane, info.SessionID)
	case f.settings.LogDir != "":
		w, err := core.NewSessionLogWriter(f.settings.LogDir, info.SessionID, info.PersonaID)
		if err != nil {
			f.logger.With(map[string]interface{}{"error": err}).Warn("session log file unavailable, logging to console only")
		} else {
			writer = w
		}
	}
	if writer != nil {
		base = core.NewSessionLogger(f.logger, writer)
	}
	logger := base.With(map[string]interface{}{"session_id": info.SessionID, "persona_id": info.PersonaID})

	dispatcher := memory.NewDispatcher(f.sink, f.settings.Memory.Dispatcher, logger)
	turnHandler := turns.NewTurnHandler(f.settings.Turns, dispatcher, logger,
		turns.WithSession(info.SessionID, info.PersonaID))

	return &Session{
		Info:         info,
		Runner:       runner.NewRunner([]core.IHandler{turnHandler}, logger),
		Turns:        turnHandler,
		Logger:       logger,
		controlPlane: f.controlPlane,
		logWriter:    writer,
	}, nil
}

// Start runs the pipeline. emit receives every output event as an encoded
// protocol.WireEvent frame; the same events go to the control plane if one
// is connected.
func (s *Session) Start(ctx context.Context, emit func(frame []byte)) error {
	s.Runner.OnOutput = func(packet *core.EventPacket) {
		ev, ok := packet.Event.(core.IExternalOutputEvent)
		if !ok {
			return
		}
		wire, err := protocol.NewWireEvent(ev.GetId(), ev)
		if err != nil {
			s.Logger.With(map[string]interface{}{"event": ev.GetId(), "error": err}).Warn("failed to encode output event")
			return
		}
		if emit != nil {
			if frame, err := sonic.Marshal(wire); err == nil {
				emit(frame)
			}
		}
		if s.controlPlane != nil {
			s.controlPlane.SendEvent(s.Info.SessionID, wire.ID, wire.Payload)
		}
	}
	s.Logger.Info("session started")
	return s.Runner.Start(core.ContextWithSessionLogger(ctx, s.Logger))
}

// Status reports the session for control-plane status messages.
func (s *Session) Status(state string) protocol.SessionInfo {
	return protocol.SessionInfo{
		SessionID:     s.Info.SessionID,
		PersonaID:     s.Info.PersonaID,
		StartedAt:     s.Info.StartedAt.UTC().Format(time.RFC3339),
		Status:        state,
		PendingHalves: s.Turns.Pending(),
	}
}

// Close stops the pipeline, which clears the session's turn state, waits for
// queued turns to be written, then ends the session log.
func (s *Session) Close() error {
	err := s.Runner.Stop()
	s.Logger.Info("session closed")
	if s.logWriter != nil {
		s.logWriter.Close()
	}
	return err
}
