package auth

import (
	"context"
	"sync"

	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/storage"
)

// memStore is an in-memory storage.UserStore for tests.
type memStore struct {
	mu         sync.Mutex
	users      map[string]models.User
	sessions   []storage.Session
	nextID     int64
	findErr    error
	createErr  error
	sessionErr error
}

func newMemStore() *memStore {
	return &memStore{users: map[string]models.User{}}
}

func (m *memStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return models.User{}, m.findErr
	}
	u, ok := m.users[username]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateUser(_ context.Context, user models.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return false, m.createErr
	}
	if _, ok := m.users[user.Username]; ok {
		return false, nil
	}
	m.nextID++
	user.ID = m.nextID
	m.users[user.Username] = user
	return true, nil
}

func (m *memStore) DeleteUser(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return storage.ErrNotFound
	}
	delete(m.users, username)
	return nil
}

func (m *memStore) RecordSession(_ context.Context, s storage.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionErr != nil {
		return m.sessionErr
	}
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close()                     {}
