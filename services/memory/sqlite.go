package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"turnmemory/core"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	memory_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	persona_id     TEXT NOT NULL,
	session_id     TEXT,
	turn_id        TEXT NOT NULL,
	turn_key       TEXT NOT NULL,
	user_text      TEXT NOT NULL,
	assistant_text TEXT NOT NULL,
	content        TEXT NOT NULL,
	vector         TEXT,
	importance     REAL NOT NULL,
	memory_type    TEXT NOT NULL DEFAULT 'conversation',
	timestamp      TEXT NOT NULL,
	UNIQUE (persona_id, turn_key)
);
CREATE INDEX IF NOT EXISTS idx_memories_persona_ts ON memories (persona_id, timestamp);
`

// SQLiteConfig configures the embedded memory store.
type SQLiteConfig struct {
	Path       string  `json:"path" yaml:"path"`                                 // Database file. Created if missing.
	PersonaID  string  `json:"persona_id,omitempty" yaml:"persona_id,omitempty"` // Fallback persona for turns without one.
	Importance float64 `json:"importance,omitempty" yaml:"importance,omitempty"`
}

// StoredTurn is a memory row read back from SQLite.
type StoredTurn struct {
	MemoryID   int64     `json:"memory_id" yaml:"memory_id"`
	Text       string    `json:"content" yaml:"content"`
	Importance float64   `json:"importance" yaml:"importance"`
	MemoryType string    `json:"memory_type" yaml:"memory_type"`
	Vector     []float32 `json:"vector,omitempty" yaml:"vector,omitempty"`

	core.ConversationTurn `yaml:",inline"`
}

// SQLiteSink stores turns in a local SQLite database. Storing the same
// exchange twice for a persona is reported as a duplicate.
type SQLiteSink struct {
	db       *sql.DB
	config   SQLiteConfig
	embedder Embedder
	logger   *core.Logger
}

// OpenSQLiteSink opens (or creates) the database and applies the schema.
// embedder may be nil, in which case memories are stored without a vector.
func OpenSQLiteSink(config SQLiteConfig, embedder Embedder, logger *core.Logger) (*SQLiteSink, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite sink: path is required")
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open %q: %w", config.Path, err)
	}
	// Sessions write from their own dispatcher goroutines; one connection
	// keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite sink: ping: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite sink: apply schema: %w", err)
	}
	config.Importance = clampImportance(config.Importance)
	return &SQLiteSink{
		db:       db,
		config:   config,
		embedder: embedder,
		logger:   logger.With(map[string]interface{}{"component": "sqlite_sink"}),
	}, nil
}

func (s *SQLiteSink) Persist(ctx context.Context, turn core.ConversationTurn) (core.PersistStatus, error) {
	var vector sql.NullString
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, turn.Content())
		if err != nil {
			s.logger.With(map[string]interface{}{"turn_id": turn.ID, "error": err}).Warn("embedding failed, storing without vector")
		} else if data, err := sonic.Marshal(vec); err == nil {
			vector = sql.NullString{String: string(data), Valid: true}
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories
			(persona_id, session_id, turn_id, turn_key, user_text, assistant_text, content, vector, importance, memory_type, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'conversation', ?)
		ON CONFLICT (persona_id, turn_key) DO NOTHING`,
		personaOf(turn, s.config.PersonaID),
		turn.SessionID,
		turn.ID,
		turn.Key(),
		turn.UserText,
		turn.AssistantText,
		turn.Content(),
		vector,
		s.config.Importance,
		turn.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return core.PersistFailed, fmt.Errorf("sqlite sink: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.PersistFailed, fmt.Errorf("sqlite sink: rows affected: %w", err)
	}
	if n == 0 {
		return core.PersistDuplicate, nil
	}
	return core.PersistOK, nil
}

// List returns the newest memories first. An empty persona lists every
// persona; limit <= 0 means no limit.
func (s *SQLiteSink) List(ctx context.Context, persona string, limit int) ([]StoredTurn, error) {
	query := `SELECT memory_id, persona_id, session_id, turn_id, turn_key, user_text, assistant_text,
		content, vector, importance, memory_type, timestamp FROM memories`
	var args []interface{}
	if persona != "" {
		query += " WHERE persona_id = ?"
		args = append(args, persona)
	}
	query += " ORDER BY timestamp DESC, memory_id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: query: %w", err)
	}
	defer rows.Close()

	var out []StoredTurn
	for rows.Next() {
		var st StoredTurn
		var sessionID, vector sql.NullString
		var turnKey, ts string
		if err := rows.Scan(&st.MemoryID, &st.PersonaID, &sessionID, &st.ID, &turnKey, &st.UserText, &st.AssistantText,
			&st.Text, &vector, &st.Importance, &st.MemoryType, &ts); err != nil {
			return nil, fmt.Errorf("sqlite sink: scan: %w", err)
		}
		st.SessionID = sessionID.String
		st.UserItemID, st.AssistantItemID = splitTurnKey(turnKey)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			st.CompletedAt = t
		}
		if vector.Valid && vector.String != "" {
			if err := sonic.UnmarshalString(vector.String, &st.Vector); err != nil {
				s.logger.With(map[string]interface{}{"memory_id": st.MemoryID, "error": err}).Warn("unreadable vector")
			}
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite sink: rows: %w", err)
	}
	return out, nil
}

// Clear deletes the memories of persona and returns how many were removed.
func (s *SQLiteSink) Clear(ctx context.Context, persona string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE persona_id = ?", persona)
	if err != nil {
		return 0, fmt.Errorf("sqlite sink: delete: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func splitTurnKey(key string) (userItemID, assistantItemID string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
