package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"turnmemory/core"
	"turnmemory/protocol"

	"github.com/gorilla/websocket"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultSendBufferSize    = 256
	writeTimeout             = 10 * time.Second
)

// ClientConfig configures the control plane WebSocket client.
type ClientConfig struct {
	ConnectURL        string
	AgentID           string
	Version           string
	Metadata          map[string]string
	HeartbeatInterval time.Duration
	Logger            *core.Logger
	// ActiveSessions reports the live console session count for heartbeats.
	ActiveSessions func() int
}

// Client connects outward to an operator UI. It streams registration,
// heartbeats, session logs and turn events, and receives reset_session and
// shutdown commands.
type Client struct {
	config ClientConfig
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *core.Logger

	// Callbacks set by the owner before Connect.
	OnResetSession func(sessionID, reason string) error
	OnShutdown     func(reason string)

	sendCh    chan []byte
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

// NewClient creates a new control plane client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.With(map[string]interface{}{"component": "controlplane"}),
		sendCh: make(chan []byte, defaultSendBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the control plane, registers, and starts the read, write and
// heartbeat loops. Cancelling ctx closes the connection.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.With(map[string]interface{}{"url": c.config.ConnectURL}).Info("connecting to control plane")

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.config.ConnectURL, nil)
	if err != nil {
		c.cancel()
		return fmt.Errorf("controlplane: dial %q: %w", c.config.ConnectURL, err)
	}
	c.conn = conn

	reg := protocol.RegisterPayload{
		AgentID:      c.config.AgentID,
		Version:      c.config.Version,
		Capabilities: []string{"turns", "reset_session"},
		Metadata:     c.config.Metadata,
		Timestamp:    time.Now().UTC(),
	}
	if err := c.send(protocol.MsgRegister, reg); err != nil {
		conn.Close()
		c.cancel()
		return fmt.Errorf("controlplane: send register: %w", err)
	}

	c.logger.With(map[string]interface{}{"agent_id": c.config.AgentID}).Info("registered with control plane")

	go c.readLoop()
	go c.writeLoop()
	go c.heartbeatLoop()
	go func() {
		<-c.ctx.Done()
		c.Close()
	}()

	return nil
}

// SendLog sends a log entry for a session.
func (c *Client) SendLog(sessionID string, entry protocol.LogEntry) {
	c.enqueue(protocol.MsgLog, protocol.LogPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
		Entry:     entry,
	})
}

// SendStatus reports the agent status together with its sessions.
func (c *Client) SendStatus(status string, sessions []protocol.SessionInfo) {
	c.enqueue(protocol.MsgStatus, protocol.StatusPayload{
		AgentID:  c.config.AgentID,
		Status:   status,
		Sessions: sessions,
	})
}

// SendEvent forwards a session output event.
func (c *Client) SendEvent(sessionID, eventID string, data json.RawMessage) {
	c.enqueue(protocol.MsgEvent, protocol.EventPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
		EventID:   eventID,
		Data:      data,
	})
}

// SendLogEnd signals that a session's log stream has ended.
func (c *Client) SendLogEnd(sessionID string) {
	c.enqueue(protocol.MsgLogEnd, protocol.LogEndPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
	})
}

// Wait blocks until the connection drops or the context is cancelled.
func (c *Client) Wait() {
	<-c.done
}

// Close shuts down the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) send(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// enqueue never blocks: when the buffer is full the oldest message is dropped.
func (c *Client) enqueue(msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "type": string(msgType)}).Warn("failed to marshal message, dropping")
		return
	}
	select {
	case c.sendCh <- data:
	default:
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- data:
		default:
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.doneOnce.Do(func() { close(c.done) })
		c.cancel()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.With(map[string]interface{}{"error": err}).Warn("control plane connection lost")
			}
			return
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("invalid message from control plane")
			continue
		}

		switch msgType {
		case protocol.MsgResetSession:
			p, err := protocol.UnmarshalPayload[protocol.ResetSessionPayload](payload)
			if err != nil {
				c.logger.With(map[string]interface{}{"error": err}).Warn("invalid reset_session payload")
				continue
			}
			ack := protocol.AckPayload{AckedType: msgType, OK: true}
			if c.OnResetSession != nil {
				if err := c.OnResetSession(p.SessionID, p.Reason); err != nil {
					ack.OK = false
					ack.Error = err.Error()
				}
			}
			c.enqueue(protocol.MsgAck, ack)

		case protocol.MsgShutdown:
			p, _ := protocol.UnmarshalPayload[protocol.ShutdownPayload](payload)
			reason := p.Reason
			if reason == "" {
				reason = "shutdown requested by control plane"
			}
			c.logger.With(map[string]interface{}{"reason": reason}).Info("shutdown requested")
			if c.OnShutdown != nil {
				c.OnShutdown(reason)
			}
			return

		default:
			c.logger.With(map[string]interface{}{"type": string(msgType)}).Warn("unknown message type from control plane")
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.With(map[string]interface{}{"error": err}).Warn("write to control plane failed")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			active := 0
			if c.config.ActiveSessions != nil {
				active = c.config.ActiveSessions()
			}
			status := "idle"
			if active > 0 {
				status = "running"
			}
			c.enqueue(protocol.MsgHeartbeat, protocol.HeartbeatPayload{
				AgentID:        c.config.AgentID,
				Timestamp:      time.Now().UTC(),
				ActiveSessions: active,
				Status:         status,
			})
		case <-c.ctx.Done():
			return
		}
	}
}
