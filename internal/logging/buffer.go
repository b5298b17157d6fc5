package logging

import (
	"sync"
	"time"
)

// LogEntry is one record kept in the in-memory log history.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent values up to a fixed capacity.
// It is safe for concurrent use.
type RingBuffer[T any] struct {
	mu      sync.RWMutex
	entries []T
	head    int
	count   int
}

// NewRingBuffer creates a ring buffer holding at most size values.
// A size below one is raised to one.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &RingBuffer[T]{entries: make([]T, size)}
}

// Write appends v, evicting the oldest value when full.
func (rb *RingBuffer[T]) Write(v T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = v
	rb.head = (rb.head + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
}

// ReadAll returns the buffered values oldest first.
func (rb *RingBuffer[T]) ReadAll() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return nil
	}

	out := make([]T, 0, rb.count)
	start := (rb.head - rb.count + len(rb.entries)) % len(rb.entries)
	for i := 0; i < rb.count; i++ {
		out = append(out, rb.entries[(start+i)%len(rb.entries)])
	}
	return out
}

// Count returns the number of buffered values.
func (rb *RingBuffer[T]) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Reset drops all buffered values.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.entries)
	rb.head = 0
	rb.count = 0
}
