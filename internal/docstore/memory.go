package docstore

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps records in process memory. Values are copied in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (m *MemoryStore) GetUser(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	u.History = slices.Clone(u.History)
	if u.History == nil {
		u.History = []HistoryEntry{}
	}
	return u, nil
}

func (m *MemoryStore) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.History = slices.Clone(u.History)
	m.users[u.Username] = u
	return nil
}

func (m *MemoryStore) PutHistory(_ context.Context, username string, history []HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return ErrNotFound
	}
	u.History = slices.Clone(history)
	m.users[username] = u
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
