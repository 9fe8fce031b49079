package turns

import (
	"sort"
	"time"

	"turnmemory/core"
)

// HalfTurn is one side of an exchange waiting for its counterpart.
type HalfTurn struct {
	ItemID    string
	Role      core.Role
	Text      string
	CreatedAt time.Time
}

// Age reports how long the half has been waiting at now.
func (h HalfTurn) Age(now time.Time) time.Duration {
	return now.Sub(h.CreatedAt)
}

// TurnBuffer holds waiting halves. Each role keeps its own arrival-ordered
// queue so the oldest half of a role is always at the front; byItem enforces
// one half per item identifier.
type TurnBuffer struct {
	byItem map[string]HalfTurn
	queues map[core.Role][]HalfTurn
}

func NewTurnBuffer() *TurnBuffer {
	return &TurnBuffer{
		byItem: make(map[string]HalfTurn),
		queues: make(map[core.Role][]HalfTurn),
	}
}

func (b *TurnBuffer) Len() int {
	return len(b.byItem)
}

func (b *TurnBuffer) Has(itemID string) bool {
	_, ok := b.byItem[itemID]
	return ok
}

// Insert appends a half to its role queue. It returns false, leaving the
// buffer unchanged, when a half for the same item is already waiting.
func (b *TurnBuffer) Insert(half HalfTurn) bool {
	if b.Has(half.ItemID) {
		return false
	}
	b.byItem[half.ItemID] = half
	b.queues[half.Role] = append(b.queues[half.Role], half)
	return true
}

// PopOldest removes and returns the longest-waiting half of role.
func (b *TurnBuffer) PopOldest(role core.Role) (HalfTurn, bool) {
	queue := b.queues[role]
	if len(queue) == 0 {
		return HalfTurn{}, false
	}
	half := queue[0]
	if len(queue) == 1 {
		delete(b.queues, role)
	} else {
		b.queues[role] = queue[1:]
	}
	delete(b.byItem, half.ItemID)
	return half, true
}

// Sweep evicts every half older than timeout at now and returns them.
func (b *TurnBuffer) Sweep(now time.Time, timeout time.Duration) []HalfTurn {
	var evicted []HalfTurn
	for role, queue := range b.queues {
		kept := queue[:0:0]
		for _, half := range queue {
			if half.Age(now) > timeout {
				evicted = append(evicted, half)
				delete(b.byItem, half.ItemID)
				continue
			}
			kept = append(kept, half)
		}
		if len(kept) == 0 {
			delete(b.queues, role)
		} else {
			b.queues[role] = kept
		}
	}
	return evicted
}

// Clear drops every waiting half.
func (b *TurnBuffer) Clear() {
	clear(b.byItem)
	clear(b.queues)
}

// Snapshot returns the waiting halves ordered by arrival.
func (b *TurnBuffer) Snapshot() []HalfTurn {
	out := make([]HalfTurn, 0, len(b.byItem))
	for _, queue := range b.queues {
		out = append(out, queue...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
