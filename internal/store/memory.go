package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerlink/accounts/types"
)

// MemoryUserBackend keeps users in process memory. It backs local runs with
// DB_DRIVER=memory and the unit tests.
type MemoryUserBackend struct {
	mu      sync.RWMutex
	byID    map[string]types.User
	byEmail map[string]string
	order   []string
	now     func() time.Time
}

func NewMemoryUserBackend() *MemoryUserBackend {
	return &MemoryUserBackend{
		byID:    make(map[string]types.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (m *MemoryUserBackend) Insert(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[user.Email]; exists {
		return types.User{}, ErrDuplicateEmail
	}

	now := m.now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
	m.order = append(m.order, user.ID)
	return user, nil
}

func (m *MemoryUserBackend) GetByID(_ context.Context, id string) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byID[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryUserBackend) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryUserBackend) Update(_ context.Context, id string, patch types.UserPatch) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if patch.Email != nil && *patch.Email != current.Email {
		if _, taken := m.byEmail[*patch.Email]; taken {
			return types.User{}, ErrDuplicateEmail
		}
	}

	updated := patch.Apply(current)
	updated.UpdatedAt = m.now().UTC()

	if updated.Email != current.Email {
		delete(m.byEmail, current.Email)
		m.byEmail[updated.Email] = id
	}
	m.byID[id] = updated
	return updated, nil
}

func (m *MemoryUserBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byEmail, user.Email)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryUserBackend) List(_ context.Context) ([]types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]types.User, 0, len(m.order))
	for _, id := range m.order {
		users = append(users, m.byID[id])
	}
	return users, nil
}
