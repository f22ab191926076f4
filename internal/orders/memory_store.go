package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory order store for demo/development mode.
type MemoryStore struct {
	purchases  map[int64]*Purchase
	preorders  map[int64]*PreOrder
	nextPurch  int64
	nextPre    int64
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		purchases: make(map[int64]*Purchase),
		preorders: make(map[int64]*PreOrder),
		nextPurch: 1,
		nextPre:   1,
	}
}

func copyPurchase(p *Purchase) *Purchase {
	cp := *p
	cp.Items = append([]Item(nil), p.Items...)
	return &cp
}

func (m *MemoryStore) CreatePurchase(ctx context.Context, p *Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.nextPurch
	m.nextPurch++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.purchases[p.ID] = copyPurchase(p)
	return nil
}

func (m *MemoryStore) GetPurchase(ctx context.Context, id int64) (*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.purchases[id]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	return copyPurchase(p), nil
}

func (m *MemoryStore) DeletePurchase(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.purchases[id]; !ok {
		return ErrPurchaseNotFound
	}
	delete(m.purchases, id)
	return nil
}

func (m *MemoryStore) ListPurchases(ctx context.Context, studentID int64, limit int) ([]*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Purchase
	for _, p := range m.purchases {
		if p.StudentID == studentID {
			result = append(result, copyPurchase(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListAllPurchases(ctx context.Context, limit int) ([]*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Purchase
	for _, p := range m.purchases {
		result = append(result, copyPurchase(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) CreatePreOrder(ctx context.Context, po *PreOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	po.ID = m.nextPre
	m.nextPre++
	now := time.Now()
	po.CreatedAt = now
	po.UpdatedAt = now

	cp := *po
	m.preorders[po.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPreOrder(ctx context.Context, id int64) (*PreOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	po, ok := m.preorders[id]
	if !ok {
		return nil, ErrPreOrderNotFound
	}
	cp := *po
	return &cp, nil
}

func (m *MemoryStore) UpdatePreOrder(ctx context.Context, po *PreOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.preorders[po.ID]; !ok {
		return ErrPreOrderNotFound
	}
	po.UpdatedAt = time.Now()
	cp := *po
	m.preorders[po.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPreOrders(ctx context.Context, studentID int64, onlyPending bool) ([]*PreOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*PreOrder
	for _, po := range m.preorders {
		if po.StudentID != studentID {
			continue
		}
		if onlyPending && po.Delivered {
			continue
		}
		cp := *po
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) ListPendingPreOrders(ctx context.Context) ([]*PreOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*PreOrder
	for _, po := range m.preorders {
		if !po.Delivered && po.Active {
			cp := *po
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) DeletePreOrder(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.preorders[id]; !ok {
		return ErrPreOrderNotFound
	}
	delete(m.preorders, id)
	return nil
}
