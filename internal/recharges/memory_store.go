package recharges

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory recharge store for demo/development mode.
type MemoryStore struct {
	recharges map[string]*Recharge // by ID
	byRef     map[string]string    // reference → ID
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory recharge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recharges: make(map[string]*Recharge),
		byRef:     make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, r *Recharge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	cp := *r
	m.recharges[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Recharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.recharges[id]
	if !ok {
		return nil, ErrRechargeNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) GetByReference(ctx context.Context, reference string) (*Recharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRef[reference]
	if !ok {
		return nil, ErrReferenceNotFound
	}
	cp := *m.recharges[id]
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, r *Recharge, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.recharges[r.ID]
	if !ok {
		return ErrRechargeNotFound
	}
	if existing.Status != from {
		return ErrStatusConflict
	}
	r.Reference = existing.Reference // reference only moves through SetReference
	r.UpdatedAt = time.Now()
	cp := *r
	m.recharges[r.ID] = &cp
	return nil
}

func (m *MemoryStore) SetReference(ctx context.Context, id, reference string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recharges[id]
	if !ok {
		return "", ErrRechargeNotFound
	}
	if r.Reference != "" {
		return r.Reference, nil
	}
	r.Reference = reference
	r.UpdatedAt = time.Now()
	m.byRef[reference] = id
	return reference, nil
}

func (m *MemoryStore) ListByStudent(ctx context.Context, studentID int64, limit int) ([]*Recharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Recharge
	for _, r := range m.recharges {
		if r.StudentID == studentID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
