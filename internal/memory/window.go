package memory

import (
	"strings"
	"sync"
)

// Window is a bounded, ordered log of prior exchanges. It holds whole
// user/model pairs only and evicts the oldest pair first.
type Window struct {
	mu    sync.RWMutex
	items []HistoryItem
	max   int
}

// NewWindow keeps at most turns pairs (2*turns items), clamped to MaxTurns.
func NewWindow(turns int) *Window {
	if turns <= 0 {
		turns = DefaultTurns
	}
	if turns > MaxTurns {
		turns = MaxTurns
	}
	return &Window{
		items: make([]HistoryItem, 0, 2*turns),
		max:   2 * turns,
	}
}

// Append remembers one exchange verbatim. It is a no-op returning false when
// either side is blank.
func (w *Window) Append(userText, aiText string) bool {
	if strings.TrimSpace(userText) == "" || strings.TrimSpace(aiText) == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items,
		HistoryItem{Role: RoleUser, Text: userText},
		HistoryItem{Role: RoleModel, Text: aiText},
	)
	for len(w.items) > w.max {
		w.items = w.items[2:]
	}
	return true
}

// Snapshot returns the current history in chronological order by value.
func (w *Window) Snapshot() []HistoryItem {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]HistoryItem, len(w.items))
	copy(out, w.items)
	return out
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.items)
}

// Cap is the maximum number of items retained.
func (w *Window) Cap() int { return w.max }

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = w.items[:0]
}
