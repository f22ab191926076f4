package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Service provides catalog business logic.
type Service struct {
	store Store
}

// NewService creates a new catalog service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateFood registers a new item for sale.
func (s *Service) CreateFood(ctx context.Context, f *Food) (*Food, error) {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Category) == "" {
		return nil, ErrInvalidFood
	}
	if f.Price.Sign() <= 0 {
		return nil, ErrInvalidFood
	}
	if f.Stock < 0 || f.Calories < 0 {
		return nil, ErrInvalidFood
	}
	f.Active = true
	if err := s.store.CreateFood(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// GetFood returns a food by ID.
func (s *Service) GetFood(ctx context.Context, id int64) (*Food, error) {
	return s.store.GetFood(ctx, id)
}

// ListFoods returns all active foods, or all foods when includeInactive.
func (s *Service) ListFoods(ctx context.Context, includeInactive bool) ([]*Food, error) {
	return s.store.ListFoods(ctx, !includeInactive)
}

// UpdateFood applies partial updates to a food's mutable fields.
func (s *Service) UpdateFood(ctx context.Context, id int64, name string, price *decimal.Decimal, stock, calories *int, image, category string) (*Food, error) {
	f, err := s.store.GetFood(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != "" {
		f.Name = name
	}
	if price != nil {
		if price.Sign() <= 0 {
			return nil, ErrInvalidFood
		}
		f.Price = *price
	}
	if stock != nil {
		if *stock < 0 {
			return nil, ErrInvalidFood
		}
		f.Stock = *stock
	}
	if calories != nil {
		if *calories < 0 {
			return nil, ErrInvalidFood
		}
		f.Calories = *calories
	}
	if image != "" {
		f.Image = image
	}
	if category != "" {
		f.Category = category
	}

	if err := s.store.UpdateFood(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// DeactivateFood hides a food from the menu without deleting its history.
func (s *Service) DeactivateFood(ctx context.Context, id int64) error {
	f, err := s.store.GetFood(ctx, id)
	if err != nil {
		return err
	}
	f.Active = false
	return s.store.UpdateFood(ctx, f)
}

// ReserveStock decrements stock for a sale. Fails with
// ErrInsufficientStock if not enough units remain.
func (s *Service) ReserveStock(ctx context.Context, id int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidFood
	}
	return s.store.AdjustStock(ctx, id, -qty)
}

// RestockFood increments stock, e.g. after a cancelled pre-order.
func (s *Service) RestockFood(ctx context.Context, id int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidFood
	}
	return s.store.AdjustStock(ctx, id, qty)
}

// BlockFood forbids a food for a student.
func (s *Service) BlockFood(ctx context.Context, studentID, foodID int64) (*Block, error) {
	if _, err := s.store.GetFood(ctx, foodID); err != nil {
		return nil, err
	}
	b := &Block{StudentID: studentID, FoodID: foodID, BlockedAt: time.Now()}
	if err := s.store.CreateBlock(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UnblockFood removes a block.
func (s *Service) UnblockFood(ctx context.Context, studentID, foodID int64) error {
	return s.store.DeleteBlock(ctx, studentID, foodID)
}

// ListBlocks returns the blocks for a student.
func (s *Service) ListBlocks(ctx context.Context, studentID int64) ([]*Block, error) {
	return s.store.ListBlocks(ctx, studentID)
}

// IsBlocked reports whether a food is forbidden for a student.
func (s *Service) IsBlocked(ctx context.Context, studentID, foodID int64) (bool, error) {
	return s.store.IsBlocked(ctx, studentID, foodID)
}
