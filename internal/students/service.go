package students

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Service provides student business logic.
type Service struct {
	store Store
}

// NewService creates a new student service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create enrolls a new student with a zero balance.
func (s *Service) Create(ctx context.Context, name, email, birthDate, guardian, cedula string) (*Student, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(cedula) == "" {
		return nil, fmt.Errorf("cedula is required")
	}

	student := &Student{
		Name:      NormalizeName(name),
		Email:     strings.TrimSpace(email),
		BirthDate: birthDate,
		Guardian:  strings.TrimSpace(guardian),
		Cedula:    strings.TrimSpace(cedula),
		Balance:   decimal.Zero,
	}

	if err := s.store.Create(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

// Get returns a student by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Student, error) {
	return s.store.Get(ctx, id)
}

// GetByCedula returns a student by national ID.
func (s *Service) GetByCedula(ctx context.Context, cedula string) (*Student, error) {
	return s.store.GetByCedula(ctx, strings.TrimSpace(cedula))
}

// ListByGuardian returns the students associated with a guardian account.
func (s *Service) ListByGuardian(ctx context.Context, guardian string) ([]*Student, error) {
	return s.store.ListByGuardian(ctx, guardian)
}

// List returns up to limit students.
func (s *Service) List(ctx context.Context, limit int) ([]*Student, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, limit)
}

// Credit adds amount to a student's balance and returns the new balance.
func (s *Service) Credit(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	return s.store.AddBalance(ctx, id, amount)
}

// Debit subtracts amount from a student's balance and returns the new balance.
// Fails with ErrInsufficientBalance if the student cannot cover it.
func (s *Service) Debit(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	return s.store.AddBalance(ctx, id, amount.Neg())
}

// Balance returns a student's current balance.
func (s *Service) Balance(ctx context.Context, id int64) (decimal.Decimal, error) {
	student, err := s.store.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return student.Balance, nil
}
