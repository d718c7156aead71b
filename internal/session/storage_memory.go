package session

import (
	"context"
	"sync"
)

// MemoryStorage is an in-process Storage useful for tests and local runs.
// It is not intended for production use.
type MemoryStorage struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{sessions: map[string]Session{}}
}

func (m *MemoryStorage) Load(_ context.Context, scope string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[scope]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStorage) Save(_ context.Context, scope string, s Session) error {
	if !s.Complete() {
		return ErrIncompleteSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[scope] = s
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, scope)
	return nil
}
