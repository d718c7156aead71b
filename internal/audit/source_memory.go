package audit

import (
	"context"
	"sync"
)

// MemorySource is an in-memory Source useful for tests.
type MemorySource struct {
	mu     sync.Mutex
	events []Event
	calls  int
}

func NewMemorySource(events ...Event) *MemorySource {
	return &MemorySource{events: events}
}

func (m *MemorySource) AuditEvents(_ context.Context, limit, offset int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if offset >= len(m.events) {
		return []Event{}, nil
	}
	end := offset + limit
	if end > len(m.events) {
		end = len(m.events)
	}
	out := make([]Event, end-offset)
	copy(out, m.events[offset:end])
	return out, nil
}

func (m *MemorySource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
