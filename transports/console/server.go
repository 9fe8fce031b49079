package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"turnmemory/core"
	"turnmemory/factories"
	"turnmemory/protocol"

	"github.com/gorilla/websocket"
)

var ErrUnknownSession = errors.New("console: unknown session")

const writeTimeout = 10 * time.Second

// SessionFactory builds the pipeline behind one console connection.
type SessionFactory interface {
	NewSession(info factories.SessionInfo) (*factories.Session, error)
}

// Server accepts console WebSocket connections on /session. Every
// connection is one realtime session: its frames are decoded into session
// events and pushed, in arrival order, into that session's pipeline. Output
// events flow back to the same connection as protocol.WireEvent frames.
type Server struct {
	factory  SessionFactory
	logger   *core.Logger
	upgrader websocket.Upgrader

	ctx context.Context

	sessions   map[string]*consoleSession
	sessionsMu sync.RWMutex
	wg         sync.WaitGroup
}

type consoleSession struct {
	session *factories.Session
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *consoleSession) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func NewServer(factory SessionFactory, logger *core.Logger) *Server {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Server{
		factory:  factory,
		logger:   logger.With(map[string]interface{}{"component": "console"}),
		sessions: make(map[string]*consoleSession),
		ctx:      context.Background(),
		upgrader: websocket.Upgrader{
			// The console is served from another origin during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes: /session (WebSocket) and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then closes every session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.ctx = ctx
	server := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.closeAll()
	}()

	s.logger.Infof("console server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("console: %w", err)
	}
	s.wg.Wait()
	return nil
}

// ActiveSessions returns the number of connected consoles.
func (s *Server) ActiveSessions() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// Sessions describes the connected sessions, oldest first.
func (s *Server) Sessions() []protocol.SessionInfo {
	s.sessionsMu.RLock()
	out := make([]protocol.SessionInfo, 0, len(s.sessions))
	for _, cs := range s.sessions {
		out = append(out, cs.session.Status("active"))
	}
	s.sessionsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out
}

// ResetSession queues a reset of one session's turn state behind the events
// it has already received.
func (s *Server) ResetSession(sessionID, reason string) error {
	s.sessionsMu.RLock()
	cs, ok := s.sessions[sessionID]
	s.sessionsMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return cs.session.Runner.Reset(reason)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "ok sessions=%d\n", s.ActiveSessions())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	info := factories.SessionInfo{
		SessionID: query.Get("session_id"),
		PersonaID: query.Get("persona_id"),
	}
	if info.SessionID != "" {
		s.sessionsMu.RLock()
		_, taken := s.sessions[info.SessionID]
		s.sessionsMu.RUnlock()
		if taken {
			http.Error(w, "session already connected", http.StatusConflict)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("console: upgrade: %v", err)
		return
	}
	defer conn.Close()

	sess, err := s.factory.NewSession(info)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Error("failed to create session")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session setup failed"))
		return
	}
	cs := &consoleSession{session: sess, conn: conn}

	if err := sess.Start(s.ctx, func(frame []byte) {
		if err := cs.write(frame); err != nil {
			sess.Logger.With(map[string]interface{}{"error": err}).Debug("write to console failed")
		}
	}); err != nil {
		sess.Logger.With(map[string]interface{}{"error": err}).Error("failed to start session")
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	if !s.register(sess.Info.SessionID, cs) {
		sess.Close()
		return
	}
	defer s.unregister(sess.Info.SessionID)

	sess.Logger.With(map[string]interface{}{"remote": conn.RemoteAddr().String()}).Info("console connected")
	s.readLoop(cs)

	// Disconnect: stop the pipeline, which clears all turn state at once.
	if err := sess.Close(); err != nil {
		sess.Logger.With(map[string]interface{}{"error": err}).Warn("session cleanup failed")
	}
}

func (s *Server) readLoop(cs *consoleSession) {
	logger := cs.session.Logger
	for {
		messageType, data, err := cs.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.With(map[string]interface{}{"error": err}).Debug("console read ended")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logger.Debug("ignoring binary frame")
			continue
		}

		event, err := protocol.DecodeSessionEvent(data, time.Now())
		if err != nil {
			logger.With(map[string]interface{}{"error": err}).Debug("ignoring malformed frame")
			continue
		}
		if err := cs.session.Runner.Push(event, "console"); err != nil {
			logger.With(map[string]interface{}{"error": err}).Warn("session pipeline stopped")
			return
		}
	}
}

func (s *Server) register(id string, cs *consoleSession) bool {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if _, taken := s.sessions[id]; taken {
		return false
	}
	s.sessions[id] = cs
	return true
}

func (s *Server) unregister(id string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, id)
}

// closeAll closes every console connection; each handler then runs its own
// session cleanup.
func (s *Server) closeAll() {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	for _, cs := range s.sessions {
		cs.writeMu.Lock()
		cs.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		cs.writeMu.Unlock()
		cs.conn.Close()
	}
}
