package turns

import "time"

// DefaultBreakerPhrase is the filler prompt the console sends to keep the
// assistant talking. Exchanges made of it are never remembered.
const DefaultBreakerPhrase = "[[continue]]"

// DefaultHalfTurnTimeoutMs bounds how long one side of an exchange waits for
// its counterpart.
const DefaultHalfTurnTimeoutMs = 15000

// TurnsConfig holds the correlator settings. Both values are fixed for the
// lifetime of a session.
type TurnsConfig struct {
	BreakerPhrase     string `json:"breaker_phrase" yaml:"breaker_phrase"`             // Text that is never buffered or stored. Exact match.
	HalfTurnTimeoutMs int    `json:"half_turn_timeout_ms" yaml:"half_turn_timeout_ms"` // Age after which an unpaired half is evicted.
}

// DefaultConfig returns a TurnsConfig with sensible defaults
func DefaultConfig() TurnsConfig {
	return TurnsConfig{
		BreakerPhrase:     DefaultBreakerPhrase,
		HalfTurnTimeoutMs: DefaultHalfTurnTimeoutMs,
	}
}

// Timeout returns the half-turn timeout, falling back to the default when unset.
func (c TurnsConfig) Timeout() time.Duration {
	if c.HalfTurnTimeoutMs <= 0 {
		return DefaultHalfTurnTimeoutMs * time.Millisecond
	}
	return time.Duration(c.HalfTurnTimeoutMs) * time.Millisecond
}
