package memory

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"turnmemory/core"
)

var quietLogger = core.NewConsoleLogger(io.Discard, "ERROR")

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (e fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vector, e.err
}

func openTestSink(t *testing.T, embedder Embedder) *SQLiteSink {
	t.Helper()
	sink, err := OpenSQLiteSink(SQLiteConfig{Path: filepath.Join(t.TempDir(), "memories.db")}, embedder, quietLogger)
	if err != nil {
		t.Fatalf("OpenSQLiteSink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestSQLiteSink_PersistAndDuplicate(t *testing.T) {
	sink := openTestSink(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		turn core.ConversationTurn
		want core.PersistStatus
	}{
		{name: "new exchange", turn: testTurn("t1", "u1", "a1"), want: core.PersistOK},
		{name: "same exchange, new turn id", turn: testTurn("t2", "u1", "a1"), want: core.PersistDuplicate},
		{name: "different exchange", turn: testTurn("t3", "u2", "a2"), want: core.PersistOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := sink.Persist(ctx, tt.turn)
			if err != nil {
				t.Fatalf("Persist: %v", err)
			}
			if status != tt.want {
				t.Errorf("status = %q, want %q", status, tt.want)
			}
		})
	}

	stored, err := sink.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("List returned %d rows, want 2", len(stored))
	}
}

func TestSQLiteSink_ListReadsBackTurn(t *testing.T) {
	sink := openTestSink(t, fakeEmbedder{vector: []float32{0.25, 0.5}})
	ctx := context.Background()

	turn := testTurn("t1", "u1", "a1")
	if _, err := sink.Persist(ctx, turn); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	stored, err := sink.List(ctx, "ada", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("List returned %d rows, want 1", len(stored))
	}
	got := stored[0]
	if got.ID != "t1" || got.PersonaID != "ada" || got.SessionID != "s1" {
		t.Errorf("ids = %q/%q/%q", got.ID, got.PersonaID, got.SessionID)
	}
	if got.UserItemID != "u1" || got.AssistantItemID != "a1" {
		t.Errorf("items = %q/%q", got.UserItemID, got.AssistantItemID)
	}
	if got.Text != turn.Content() || got.MemoryType != "conversation" || got.Importance != DefaultImportance {
		t.Errorf("memory = %q/%q/%v", got.Text, got.MemoryType, got.Importance)
	}
	if !got.CompletedAt.Equal(turn.CompletedAt) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, turn.CompletedAt)
	}
	if len(got.Vector) != 2 || got.Vector[1] != 0.5 {
		t.Errorf("Vector = %v", got.Vector)
	}
}

func TestSQLiteSink_EmbeddingFailureStillStores(t *testing.T) {
	sink := openTestSink(t, fakeEmbedder{err: errors.New("rate limited")})
	ctx := context.Background()

	status, err := sink.Persist(ctx, testTurn("t1", "u1", "a1"))
	if err != nil || status != core.PersistOK {
		t.Fatalf("Persist = %q, %v; want ok", status, err)
	}
	stored, _ := sink.List(ctx, "", 0)
	if len(stored) != 1 || stored[0].Vector != nil {
		t.Errorf("stored = %+v, want one row without vector", stored)
	}
}

func TestSQLiteSink_ListFiltersAndClear(t *testing.T) {
	sink := openTestSink(t, nil)
	ctx := context.Background()

	for i, persona := range []string{"ada", "ada", "bob"} {
		turn := testTurn("t", string(rune('a'+i)), "x")
		turn.PersonaID = persona
		if _, err := sink.Persist(ctx, turn); err != nil {
			t.Fatalf("Persist: %v", err)
		}
	}

	tests := []struct {
		persona string
		limit   int
		want    int
	}{
		{persona: "", limit: 0, want: 3},
		{persona: "ada", limit: 0, want: 2},
		{persona: "ada", limit: 1, want: 1},
		{persona: "bob", limit: 0, want: 1},
		{persona: "nobody", limit: 0, want: 0},
	}
	for _, tt := range tests {
		stored, err := sink.List(ctx, tt.persona, tt.limit)
		if err != nil {
			t.Fatalf("List(%q, %d): %v", tt.persona, tt.limit, err)
		}
		if len(stored) != tt.want {
			t.Errorf("List(%q, %d) = %d rows, want %d", tt.persona, tt.limit, len(stored), tt.want)
		}
	}

	n, err := sink.Clear(ctx, "ada")
	if err != nil || n != 2 {
		t.Fatalf("Clear = %d, %v; want 2", n, err)
	}
	if stored, _ := sink.List(ctx, "", 0); len(stored) != 1 {
		t.Errorf("%d rows left after Clear, want 1", len(stored))
	}
}

func TestOpenSQLiteSink_RequiresPath(t *testing.T) {
	if _, err := OpenSQLiteSink(SQLiteConfig{}, nil, quietLogger); err == nil {
		t.Error("OpenSQLiteSink with no path succeeded")
	}
}
