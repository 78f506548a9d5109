package internal

import (
	"fmt"
	"sync"
)

// History keeps formatted broadcast lines in delivery order.
// With a positive limit the oldest line is dropped on every push past it.
type History struct {
	limit int
	mu    sync.RWMutex
	lines []string
}

// NewHistory builds a history log. A zero limit means no bound.
func NewHistory(limit int) (*History, error) {
	if limit < 0 {
		return nil, fmt.Errorf("history limit (%d) must not be negative", limit)
	}
	return &History{limit: limit}, nil
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lines)
}

func (h *History) Push(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.limit > 0 && len(h.lines) == h.limit {
		copy(h.lines, h.lines[1:])
		h.lines = h.lines[:len(h.lines)-1]
	}
	h.lines = append(h.lines, line)
}

// Tail copies the last n lines, oldest first.
func (h *History) Tail(n int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 {
		return []string{}
	}
	if n > len(h.lines) {
		n = len(h.lines)
	}
	tail := make([]string, n)
	copy(tail, h.lines[len(h.lines)-n:])
	return tail
}
