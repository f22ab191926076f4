package cryptorecharges

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory crypto recharge store for demo/development mode.
type MemoryStore struct {
	recharges map[string]*CryptoRecharge
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory crypto recharge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recharges: make(map[string]*CryptoRecharge)}
}

func (m *MemoryStore) Create(ctx context.Context, r *CryptoRecharge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	cp := *r
	m.recharges[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*CryptoRecharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.recharges[id]
	if !ok {
		return nil, ErrRechargeNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, r *CryptoRecharge, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.recharges[r.ID]
	if !ok {
		return ErrRechargeNotFound
	}
	if existing.Status != from {
		return ErrStatusConflict
	}
	r.UpdatedAt = time.Now()
	cp := *r
	m.recharges[r.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID int64) ([]*CryptoRecharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*CryptoRecharge
	for _, r := range m.recharges {
		if r.UserID == userID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
