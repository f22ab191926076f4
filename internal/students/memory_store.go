package students

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory student store for demo/development mode.
type MemoryStore struct {
	students map[int64]*Student // by ID
	byCedula map[string]int64   // cedula → ID
	nextID   int64
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory student store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students: make(map[int64]*Student),
		byCedula: make(map[string]int64),
		nextID:   1,
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byCedula[s.Cedula]; ok {
		return ErrDuplicateCedula
	}

	s.ID = m.nextID
	m.nextID++
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	cp := *s
	m.students[s.ID] = &cp
	m.byCedula[s.Cedula] = s.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetByCedula(ctx context.Context, cedula string) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byCedula[cedula]
	if !ok {
		return nil, ErrStudentNotFound
	}
	cp := *m.students[id]
	return &cp, nil
}

func (m *MemoryStore) ListByGuardian(ctx context.Context, guardian string) ([]*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Student
	for _, s := range m.students {
		if s.Guardian == guardian {
			cp := *s
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Student
	for _, s := range m.students {
		cp := *s
		result = append(result, &cp)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, s *Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.students[s.ID]
	if !ok {
		return ErrStudentNotFound
	}
	s.Balance = existing.Balance // balance only moves through AddBalance
	s.UpdatedAt = time.Now()
	cp := *s
	m.students[s.ID] = &cp
	return nil
}

func (m *MemoryStore) AddBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[id]
	if !ok {
		return decimal.Zero, ErrStudentNotFound
	}

	newBalance := s.Balance.Add(delta)
	if newBalance.Sign() < 0 {
		return decimal.Zero, ErrInsufficientBalance
	}
	s.Balance = newBalance
	s.UpdatedAt = time.Now()
	return newBalance, nil
}
