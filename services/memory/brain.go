package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"turnmemory/core"

	"github.com/bytedance/sonic"
)

// BrainConfig points at the memory ("brain") server.
type BrainConfig struct {
	// BaseURL is the server root, e.g. http://localhost:8000.
	BaseURL string `json:"base_url" yaml:"base_url"`
	// PersonaID is used for turns that carry no persona of their own.
	PersonaID string `json:"persona_id,omitempty" yaml:"persona_id,omitempty"`
	// Importance is sent with every memory. Defaults to 0.5.
	Importance float64 `json:"importance,omitempty" yaml:"importance,omitempty"`
	// Headers are additional HTTP headers to include in the request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// TimeoutMs bounds one HTTP request. Defaults to 10000.
	TimeoutMs int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// brainMemoryRequest is the body of POST /memory/{persona_id}.
type brainMemoryRequest struct {
	Content    string  `json:"content"`
	MemoryType string  `json:"memory_type"`
	Importance float64 `json:"importance"`
	TurnID     string  `json:"turn_id,omitempty"`
	TurnKey    string  `json:"turn_key,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// BrainSink stores turns through the brain server's HTTP API.
type BrainSink struct {
	config BrainConfig
	client *http.Client
}

func NewBrainSink(config BrainConfig) (*BrainSink, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("brain sink: base_url is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("brain sink: invalid base_url: %w", err)
	}
	timeout := 10 * time.Second
	if config.TimeoutMs > 0 {
		timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	config.Importance = clampImportance(config.Importance)
	return &BrainSink{
		config: config,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Persist maps the response status: 2xx stored, 409 already stored,
// anything else failed.
func (s *BrainSink) Persist(ctx context.Context, turn core.ConversationTurn) (core.PersistStatus, error) {
	body, err := sonic.Marshal(brainMemoryRequest{
		Content:    turn.Content(),
		MemoryType: "conversation",
		Importance: s.config.Importance,
		TurnID:     turn.ID,
		TurnKey:    turn.Key(),
		SessionID:  turn.SessionID,
		Timestamp:  turn.CompletedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return core.PersistFailed, fmt.Errorf("brain sink: marshal: %w", err)
	}

	endpoint := s.config.BaseURL + "/memory/" + url.PathEscape(personaOf(turn, s.config.PersonaID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return core.PersistFailed, fmt.Errorf("brain sink: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return core.PersistFailed, fmt.Errorf("brain sink: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		io.Copy(io.Discard, resp.Body)
		return core.PersistOK, nil
	case resp.StatusCode == http.StatusConflict:
		io.Copy(io.Discard, resp.Body)
		return core.PersistDuplicate, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.PersistFailed, fmt.Errorf("brain sink: unexpected status %d from %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(snippet)))
	}
}

func (s *BrainSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
