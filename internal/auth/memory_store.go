package auth

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory user store for demo/development mode.
type MemoryStore struct {
	users      map[int64]*User
	byUsername map[string]int64
	nextID     int64
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int64]*User),
		byUsername: make(map[string]int64),
		nextID:     1,
	}
}

func (m *MemoryStore) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUsername[u.Username]; ok {
		return ErrDuplicateUsername
	}

	u.ID = m.nextID
	m.nextID++
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	cp := *u
	m.users[u.ID] = &cp
	m.byUsername[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryStore) AddBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}

	newBalance := u.Balance.Add(delta)
	if newBalance.Sign() < 0 {
		return decimal.Zero, ErrInsufficientFunds
	}
	u.Balance = newBalance
	u.UpdatedAt = time.Now()
	return newBalance, nil
}
