// Package resources owns the encoded slice buffers for one session and the
// display handles derived from them. Handles are opaque tokens the HTTP
// layer can resolve; Clear revokes every handle together with its buffer.
package resources

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Entry pairs one slice buffer with its display handle.
type Entry struct {
	Index  int
	Data   []byte
	Handle string
	Width  int
	Height int
}

// Tracker is a per-session registry of slice buffers, safe for concurrent
// use. Each entry is released exactly once, by Clear.
type Tracker struct {
	mu       sync.RWMutex
	expected int
	entries  map[int]*Entry
	handles  map[string]int
}

func New() *Tracker {
	return &Tracker{
		entries: make(map[int]*Entry),
		handles: make(map[string]int),
	}
}

// Reserve fixes the number of slots for the current run. Put rejects any
// index outside [0, n).
func (t *Tracker) Reserve(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expected = n
}

// Put registers a buffer under an index and mints its display handle. An
// occupied index is an error, never a silent overwrite — a duplicate means
// the worker protocol was violated upstream.
func (t *Tracker) Put(index int, data []byte, width, height int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || (t.expected > 0 && index >= t.expected) {
		return "", fmt.Errorf("slice index %d outside reserved range [0, %d)", index, t.expected)
	}
	if _, exists := t.entries[index]; exists {
		return "", fmt.Errorf("slice index %d already registered", index)
	}

	handle := uuid.NewString()
	t.entries[index] = &Entry{
		Index:  index,
		Data:   data,
		Handle: handle,
		Width:  width,
		Height: height,
	}
	t.handles[handle] = index
	return handle, nil
}

// Get returns the entry for a slice index.
func (t *Tracker) Get(index int) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[index]
	return entry, ok
}

// Resolve looks up an entry by display handle. Misses after Clear: a revoked
// handle resolves to nothing.
func (t *Tracker) Resolve(handle string) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	index, ok := t.handles[handle]
	if !ok {
		return nil, false
	}
	entry, ok := t.entries[index]
	return entry, ok
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear revokes every handle and drops every buffer in one step. Clearing an
// empty tracker is a no-op.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[int]*Entry)
	t.handles = make(map[string]int)
	t.expected = 0
}
