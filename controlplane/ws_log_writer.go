package controlplane

import (
	"time"

	"turnmemory/protocol"
)

// WSLogWriter implements core.LogWriter by sending session log entries over
// the control plane connection.
type WSLogWriter struct {
	client    *Client
	sessionID string
}

func NewWSLogWriter(client *Client, sessionID string) *WSLogWriter {
	return &WSLogWriter{
		client:    client,
		sessionID: sessionID,
	}
}

func (w *WSLogWriter) Write(level, msg string, attrs map[string]interface{}) {
	if level == "TRACE" {
		return
	}
	entry := protocol.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Attrs:     make(map[string]interface{}, len(attrs)),
	}
	for k, v := range attrs {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry.Attrs[k] = v
	}
	w.client.SendLog(w.sessionID, entry)
}

// Close signals the end of the session's log stream.
func (w *WSLogWriter) Close() {
	w.client.SendLogEnd(w.sessionID)
}
