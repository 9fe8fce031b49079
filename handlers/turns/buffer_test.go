package turns

import (
	"testing"
	"time"

	"turnmemory/core"
)

func TestTurnBuffer_InsertRejectsDuplicateItem(t *testing.T) {
	b := NewTurnBuffer()
	t0 := time.Unix(0, 0)

	if !b.Insert(HalfTurn{ItemID: "u1", Role: core.RoleUser, Text: "hi", CreatedAt: t0}) {
		t.Fatal("first Insert returned false")
	}
	if b.Insert(HalfTurn{ItemID: "u1", Role: core.RoleUser, Text: "hi again", CreatedAt: t0}) {
		t.Error("second Insert of u1 returned true")
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestTurnBuffer_PopOldest(t *testing.T) {
	b := NewTurnBuffer()
	t0 := time.Unix(0, 0)
	b.Insert(HalfTurn{ItemID: "u1", Role: core.RoleUser, CreatedAt: t0})
	b.Insert(HalfTurn{ItemID: "a1", Role: core.RoleAssistant, CreatedAt: t0.Add(time.Second)})
	b.Insert(HalfTurn{ItemID: "u2", Role: core.RoleUser, CreatedAt: t0.Add(2 * time.Second)})

	tests := []struct {
		role   core.Role
		wantID string
		wantOK bool
	}{
		{core.RoleUser, "u1", true},
		{core.RoleUser, "u2", true},
		{core.RoleUser, "", false},
		{core.RoleAssistant, "a1", true},
		{core.RoleAssistant, "", false},
	}
	for _, tt := range tests {
		half, ok := b.PopOldest(tt.role)
		if ok != tt.wantOK || half.ItemID != tt.wantID {
			t.Errorf("PopOldest(%s) = %q, %v; want %q, %v", tt.role, half.ItemID, ok, tt.wantID, tt.wantOK)
		}
	}
	if b.Len() != 0 || b.Has("u1") {
		t.Errorf("buffer not empty after popping everything: Len() = %d", b.Len())
	}
}

func TestTurnBuffer_Sweep(t *testing.T) {
	b := NewTurnBuffer()
	t0 := time.Unix(100, 0)
	b.Insert(HalfTurn{ItemID: "old-user", Role: core.RoleUser, CreatedAt: t0})
	b.Insert(HalfTurn{ItemID: "old-assistant", Role: core.RoleAssistant, CreatedAt: t0.Add(time.Millisecond)})
	b.Insert(HalfTurn{ItemID: "new-user", Role: core.RoleUser, CreatedAt: t0.Add(10 * time.Second)})

	now := t0.Add(15001 * time.Millisecond)
	evicted := b.Sweep(now, 15*time.Second)

	if len(evicted) != 1 || evicted[0].ItemID != "old-user" {
		t.Fatalf("Sweep evicted %+v, want only old-user", evicted)
	}
	if b.Has("old-user") {
		t.Error("old-user still in buffer")
	}
	if !b.Has("old-assistant") {
		t.Error("old-assistant at exactly the timeout was evicted")
	}
	if half, _ := b.PopOldest(core.RoleUser); half.ItemID != "new-user" {
		t.Errorf("oldest user after sweep = %q, want new-user", half.ItemID)
	}
}

func TestTurnBuffer_ClearAndSnapshot(t *testing.T) {
	b := NewTurnBuffer()
	t0 := time.Unix(0, 0)
	b.Insert(HalfTurn{ItemID: "a1", Role: core.RoleAssistant, CreatedAt: t0.Add(2 * time.Second)})
	b.Insert(HalfTurn{ItemID: "u1", Role: core.RoleUser, CreatedAt: t0})
	b.Insert(HalfTurn{ItemID: "u2", Role: core.RoleUser, CreatedAt: t0.Add(3 * time.Second)})

	snap := b.Snapshot()
	var ids []string
	for _, h := range snap {
		ids = append(ids, h.ItemID)
	}
	if len(ids) != 3 || ids[0] != "u1" || ids[1] != "a1" || ids[2] != "u2" {
		t.Errorf("Snapshot order = %v, want [u1 a1 u2]", ids)
	}

	b.Clear()
	if b.Len() != 0 || len(b.Snapshot()) != 0 {
		t.Errorf("Len() = %d after Clear, want 0", b.Len())
	}
	if _, ok := b.PopOldest(core.RoleUser); ok {
		t.Error("PopOldest found a half after Clear")
	}
}
