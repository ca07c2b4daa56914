// Package seen tracks which event ids have already been dispatched to the
// application. Check-and-mark is a single operation so concurrent relay
// deliveries cannot double-dispatch the same event.
package seen

import (
	"context"
	"sync"
)

// Backend is a dedup-set implementation.
type Backend interface {
	// MarkIfNew records the id and reports whether it was unseen.
	MarkIfNew(ctx context.Context, id string) (bool, error)

	// Clear forgets all recorded ids.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Memory is the default in-process backend. It grows without bound for the
// life of the client; ClearCache is the only eviction.
type Memory struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewMemory creates an empty in-memory dedup set.
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]struct{})}
}

func (m *Memory) MarkIfNew(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; ok {
		return false, nil
	}
	m.ids[id] = struct{}{}
	return true, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = make(map[string]struct{})
	return nil
}

func (m *Memory) Close() error { return nil }

// Len returns the number of recorded ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}
