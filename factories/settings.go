package factories

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"turnmemory/core"
	"turnmemory/handlers/turns"
	"turnmemory/services/memory"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

const (
	MemoryDriverSQLite = "sqlite"
	MemoryDriverBrain  = "brain"
)

// MemoryConfig selects and configures the memory sink.
type MemoryConfig struct {
	// Driver is "sqlite" (default) or "brain".
	Driver     string                  `json:"driver" yaml:"driver"`
	SQLite     memory.SQLiteConfig     `json:"sqlite" yaml:"sqlite"`
	Brain      memory.BrainConfig      `json:"brain" yaml:"brain"`
	Embedding  *memory.EmbeddingConfig `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	Dispatcher memory.DispatcherConfig `json:"dispatcher" yaml:"dispatcher"`
}

// ControlPlaneConfig enables the outbound operator connection.
type ControlPlaneConfig struct {
	URL                 string `json:"url" yaml:"url"`
	AgentID             string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	HeartbeatIntervalMs int    `json:"heartbeat_interval_ms,omitempty" yaml:"heartbeat_interval_ms,omitempty"`
}

// SettingsConfig is the top-level config loaded from settings.json or settings.yaml.
type SettingsConfig struct {
	ListenAddr   string              `json:"listen_addr" yaml:"listen_addr"`
	LogLevel     string              `json:"log_level" yaml:"log_level"`
	LogDir       string              `json:"log_dir,omitempty" yaml:"log_dir,omitempty"` // Per-session JSONL logs. Empty disables them.
	Turns        turns.TurnsConfig   `json:"turns" yaml:"turns"`
	Memory       MemoryConfig        `json:"memory" yaml:"memory"`
	ControlPlane *ControlPlaneConfig `json:"control_plane,omitempty" yaml:"control_plane,omitempty"`
}

// DefaultSettingsConfig returns a SettingsConfig with sensible defaults
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		ListenAddr: ":19304",
		LogLevel:   "INFO",
		Turns:      turns.DefaultConfig(),
		Memory: MemoryConfig{
			Driver:     MemoryDriverSQLite,
			SQLite:     memory.SQLiteConfig{Path: "memories.db", Importance: memory.DefaultImportance},
			Brain:      memory.BrainConfig{Importance: memory.DefaultImportance},
			Dispatcher: memory.DefaultDispatcherConfig(),
		},
	}
}

// SettingsConfigFromJSON parses JSON over the defaults, so omitted fields
// keep their default values.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromYAML parses YAML over the defaults.
func SettingsConfigFromYAML(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromFile reads a settings file, choosing the format by extension.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SettingsConfigFromYAML(data)
	default:
		return SettingsConfigFromJSON(data)
	}
}

// ApplyEnv overrides settings from environment variables. getenv is usually
// os.Getenv.
func (c *SettingsConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := getenv("BREAKER_PHRASE"); v != "" {
		c.Turns.BreakerPhrase = v
	}
	if v := getenv("HALF_TURN_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Turns.HalfTurnTimeoutMs = ms
		}
	}
	if v := getenv("MEMORY_DRIVER"); v != "" {
		c.Memory.Driver = v
	}
	if v := getenv("MEMORY_DB_PATH"); v != "" {
		c.Memory.SQLite.Path = v
	}
	if v := getenv("BRAIN_URL"); v != "" {
		c.Memory.Brain.BaseURL = v
	}
	if v := getenv("PERSONA_ID"); v != "" {
		c.Memory.Brain.PersonaID = v
		c.Memory.SQLite.PersonaID = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" && c.Memory.Embedding != nil && c.Memory.Embedding.APIKey == "" {
		c.Memory.Embedding.APIKey = v
	}
	if v := getenv("CONTROL_PLANE_URL"); v != "" {
		if c.ControlPlane == nil {
			c.ControlPlane = &ControlPlaneConfig{}
		}
		c.ControlPlane.URL = v
	}
	if v := getenv("AGENT_ID"); v != "" && c.ControlPlane != nil {
		c.ControlPlane.AgentID = v
	}
}

// Validate reports settings that cannot work.
func (c SettingsConfig) Validate() error {
	if _, err := core.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	switch c.Memory.Driver {
	case MemoryDriverSQLite:
		if c.Memory.SQLite.Path == "" {
			return fmt.Errorf("settings: memory.sqlite.path is required for the sqlite driver")
		}
	case MemoryDriverBrain:
		if c.Memory.Brain.BaseURL == "" {
			return fmt.Errorf("settings: memory.brain.base_url is required for the brain driver")
		}
	default:
		return fmt.Errorf("settings: unknown memory driver %q", c.Memory.Driver)
	}
	if c.Turns.HalfTurnTimeoutMs < 0 {
		return fmt.Errorf("settings: turns.half_turn_timeout_ms must not be negative")
	}
	if c.ControlPlane != nil && c.ControlPlane.URL == "" {
		return fmt.Errorf("settings: control_plane.url is required when control_plane is set")
	}
	return nil
}
