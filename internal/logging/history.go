package logging

import (
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EntrySink receives entries as they are captured.
type EntrySink func(Entry)

// History keeps the most recent entries in a fixed ring.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewHistory creates a ring holding up to size entries.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{entries: make([]Entry, size)}
}

// Add stores e, evicting the oldest entry when full.
func (h *History) Add(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = e
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
}

// Entries returns a copy of the stored entries, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full {
		return append([]Entry(nil), h.entries[:h.next]...)
	}
	out := make([]Entry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	return append(out, h.entries[:h.next]...)
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.entries)
	}
	return h.next
}
