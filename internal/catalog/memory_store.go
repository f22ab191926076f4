package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory catalog store for demo/development mode.
type MemoryStore struct {
	foods  map[int64]*Food
	blocks map[string]*Block // "studentID:foodID"
	nextID int64
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		foods:  make(map[int64]*Food),
		blocks: make(map[string]*Block),
		nextID: 1,
	}
}

func blockKey(studentID, foodID int64) string {
	return fmt.Sprintf("%d:%d", studentID, foodID)
}

func (m *MemoryStore) CreateFood(ctx context.Context, f *Food) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f.ID = m.nextID
	m.nextID++
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now

	cp := *f
	m.foods[f.ID] = &cp
	return nil
}

func (m *MemoryStore) GetFood(ctx context.Context, id int64) (*Food, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.foods[id]
	if !ok {
		return nil, ErrFoodNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MemoryStore) ListFoods(ctx context.Context, onlyActive bool) ([]*Food, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Food
	for _, f := range m.foods {
		if onlyActive && !f.Active {
			continue
		}
		cp := *f
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) UpdateFood(ctx context.Context, f *Food) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.foods[f.ID]
	if !ok {
		return ErrFoodNotFound
	}
	f.Stock = existing.Stock // stock only moves through AdjustStock
	f.UpdatedAt = time.Now()
	cp := *f
	m.foods[f.ID] = &cp
	return nil
}

func (m *MemoryStore) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.foods[id]
	if !ok {
		return 0, ErrFoodNotFound
	}
	newStock := f.Stock + delta
	if newStock < 0 {
		return 0, ErrInsufficientStock
	}
	f.Stock = newStock
	f.UpdatedAt = time.Now()
	return newStock, nil
}

func (m *MemoryStore) CreateBlock(ctx context.Context, b *Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := blockKey(b.StudentID, b.FoodID)
	if _, ok := m.blocks[key]; ok {
		return ErrAlreadyBlocked
	}
	cp := *b
	m.blocks[key] = &cp
	return nil
}

func (m *MemoryStore) DeleteBlock(ctx context.Context, studentID, foodID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := blockKey(studentID, foodID)
	if _, ok := m.blocks[key]; !ok {
		return ErrBlockNotFound
	}
	delete(m.blocks, key)
	return nil
}

func (m *MemoryStore) ListBlocks(ctx context.Context, studentID int64) ([]*Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Block
	for _, b := range m.blocks {
		if b.StudentID == studentID {
			cp := *b
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) IsBlocked(ctx context.Context, studentID, foodID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blocks[blockKey(studentID, foodID)]
	return ok, nil
}
