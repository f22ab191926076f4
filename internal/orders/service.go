package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/catalog"
)

// DefaultSurcharge is the per-item fee for placing a pre-order, in COP.
var DefaultSurcharge = decimal.NewFromInt(100)

// Catalog is the slice of the catalog service the order flow needs.
type Catalog interface {
	GetFood(ctx context.Context, id int64) (*catalog.Food, error)
	ReserveStock(ctx context.Context, id int64, qty int) (int, error)
	RestockFood(ctx context.Context, id int64, qty int) (int, error)
	IsBlocked(ctx context.Context, studentID, foodID int64) (bool, error)
}

// Balances debits student balances for completed sales.
type Balances interface {
	Debit(ctx context.Context, studentID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, studentID int64, amount decimal.Decimal) (decimal.Decimal, error)
}

// Service coordinates purchases across the catalog and balance stores.
type Service struct {
	store    Store
	catalog  Catalog
	balances Balances
	logger   *slog.Logger
}

// NewService creates a new order service.
func NewService(store Store, cat Catalog, balances Balances, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, catalog: cat, balances: balances, logger: logger}
}

// ItemRequest is one requested line of an order.
type ItemRequest struct {
	FoodID   int64 `json:"producto_id"`
	Quantity int   `json:"cantidad"`
}

// buildItems validates the requested lines against the catalog: the food
// must exist, must not be blocked for the student, and must have stock.
// Stock is reserved as it goes; on failure every prior reservation is
// returned.
func (s *Service) buildItems(ctx context.Context, studentID int64, reqs []ItemRequest) ([]Item, decimal.Decimal, error) {
	if len(reqs) == 0 {
		return nil, decimal.Zero, ErrEmptyOrder
	}

	var items []Item
	total := decimal.Zero

	rollback := func() {
		for _, it := range items {
			if _, err := s.catalog.RestockFood(ctx, it.FoodID, it.Quantity); err != nil {
				s.logger.Error("restock after failed order", "food_id", it.FoodID, "error", err)
			}
		}
	}

	for _, req := range reqs {
		qty := req.Quantity
		if qty <= 0 {
			qty = 1
		}

		food, err := s.catalog.GetFood(ctx, req.FoodID)
		if err != nil {
			rollback()
			return nil, decimal.Zero, err
		}

		blocked, err := s.catalog.IsBlocked(ctx, studentID, req.FoodID)
		if err != nil {
			rollback()
			return nil, decimal.Zero, err
		}
		if blocked {
			rollback()
			return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrFoodBlocked, food.Name)
		}

		if _, err := s.catalog.ReserveStock(ctx, req.FoodID, qty); err != nil {
			rollback()
			return nil, decimal.Zero, fmt.Errorf("%s: %w", food.Name, err)
		}

		subtotal := food.Price.Mul(decimal.NewFromInt(int64(qty)))
		items = append(items, Item{
			FoodID:    req.FoodID,
			FoodName:  food.Name,
			Quantity:  qty,
			UnitPrice: food.Price,
			Subtotal:  subtotal,
			Calories:  food.Calories,
		})
		total = total.Add(subtotal)
	}

	return items, total, nil
}

// compensate undoes a charged order whose record could not be written:
// reserved stock goes back and the debited amount is re-credited. A
// failed compensation leaves money or stock dangling, so it is logged
// as critical for operators.
func (s *Service) compensate(ctx context.Context, studentID int64, items []Item, amount decimal.Decimal) {
	for _, it := range items {
		if _, err := s.catalog.RestockFood(ctx, it.FoodID, it.Quantity); err != nil {
			s.logger.Error("CRITICAL: restock failed after unrecorded sale",
				"student_id", studentID, "food_id", it.FoodID, "quantity", it.Quantity, "error", err)
		}
	}
	if _, err := s.balances.Credit(ctx, studentID, amount); err != nil {
		s.logger.Error("CRITICAL: refund failed after unrecorded sale",
			"student_id", studentID, "amount", amount.String(), "error", err)
	}
}

// Purchase charges the student and records the sale. If the debit
// fails, reserved stock is returned; if the sale record cannot be
// written, the charge and the stock are both rolled back.
func (s *Service) Purchase(ctx context.Context, studentID int64, reqs []ItemRequest) (*Purchase, error) {
	items, total, err := s.buildItems(ctx, studentID, reqs)
	if err != nil {
		return nil, err
	}

	if _, err := s.balances.Debit(ctx, studentID, total); err != nil {
		for _, it := range items {
			if _, rerr := s.catalog.RestockFood(ctx, it.FoodID, it.Quantity); rerr != nil {
				s.logger.Error("restock after failed debit", "food_id", it.FoodID, "error", rerr)
			}
		}
		return nil, err
	}

	purchase := &Purchase{
		StudentID: studentID,
		Items:     items,
		Total:     total,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreatePurchase(ctx, purchase); err != nil {
		s.compensate(ctx, studentID, items, total)
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	s.logger.Info("purchase completed",
		"purchase_id", purchase.ID,
		"student_id", studentID,
		"total", total.String(),
		"items", len(items))
	return purchase, nil
}

// PreOrder places an order ahead of time. Each item carries a
// surcharge; the student is charged the full amount up front.
func (s *Service) PreOrder(ctx context.Context, studentID int64, reqs []ItemRequest, surcharge decimal.Decimal) (*PreOrder, *Purchase, error) {
	if surcharge.Sign() < 0 {
		return nil, nil, fmt.Errorf("surcharge cannot be negative")
	}
	if surcharge.IsZero() {
		surcharge = DefaultSurcharge
	}

	items, total, err := s.buildItems(ctx, studentID, reqs)
	if err != nil {
		return nil, nil, err
	}

	var itemCount int64
	for _, it := range items {
		itemCount += int64(it.Quantity)
	}
	totalWithSurcharge := total.Add(surcharge.Mul(decimal.NewFromInt(itemCount)))

	if _, err := s.balances.Debit(ctx, studentID, totalWithSurcharge); err != nil {
		for _, it := range items {
			if _, rerr := s.catalog.RestockFood(ctx, it.FoodID, it.Quantity); rerr != nil {
				s.logger.Error("restock after failed debit", "food_id", it.FoodID, "error", rerr)
			}
		}
		return nil, nil, err
	}

	purchase := &Purchase{
		StudentID: studentID,
		Items:     items,
		Total:     totalWithSurcharge,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreatePurchase(ctx, purchase); err != nil {
		s.compensate(ctx, studentID, items, totalWithSurcharge)
		return nil, nil, fmt.Errorf("record purchase: %w", err)
	}

	po := &PreOrder{
		PurchaseID: purchase.ID,
		StudentID:  studentID,
		Total:      totalWithSurcharge,
		Surcharge:  surcharge,
		Active:     true,
	}
	if err := s.store.CreatePreOrder(ctx, po); err != nil {
		if derr := s.store.DeletePurchase(ctx, purchase.ID); derr != nil {
			s.logger.Error("CRITICAL: purchase record left behind by failed pre-order",
				"purchase_id", purchase.ID, "error", derr)
		}
		s.compensate(ctx, studentID, items, totalWithSurcharge)
		return nil, nil, fmt.Errorf("record pre-order: %w", err)
	}

	s.logger.Info("pre-order placed",
		"preorder_id", po.ID,
		"student_id", studentID,
		"total", totalWithSurcharge.String())
	return po, purchase, nil
}

// MarkDelivered records that the cafeteria handed over a pre-order.
func (s *Service) MarkDelivered(ctx context.Context, id int64) (*PreOrder, error) {
	po, err := s.store.GetPreOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Delivered {
		return nil, ErrAlreadyDelivered
	}
	now := time.Now()
	po.Delivered = true
	po.DeliveredAt = &now
	if err := s.store.UpdatePreOrder(ctx, po); err != nil {
		return nil, err
	}
	return po, nil
}

// CancelDelivery reverses a delivery mark made in error.
func (s *Service) CancelDelivery(ctx context.Context, id int64) (*PreOrder, error) {
	po, err := s.store.GetPreOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !po.Delivered {
		return nil, ErrNotDelivered
	}
	po.Delivered = false
	po.DeliveredAt = nil
	if err := s.store.UpdatePreOrder(ctx, po); err != nil {
		return nil, err
	}
	return po, nil
}

// CancelPreOrder removes an undelivered pre-order, refunding the
// student and returning the reserved stock.
func (s *Service) CancelPreOrder(ctx context.Context, id int64) error {
	po, err := s.store.GetPreOrder(ctx, id)
	if err != nil {
		return err
	}
	if po.Delivered {
		return ErrDeliveredPreOrder
	}

	purchase, err := s.store.GetPurchase(ctx, po.PurchaseID)
	if err != nil {
		return err
	}
	for _, it := range purchase.Items {
		if _, rerr := s.catalog.RestockFood(ctx, it.FoodID, it.Quantity); rerr != nil {
			s.logger.Error("restock on pre-order cancel", "food_id", it.FoodID, "error", rerr)
		}
	}
	if _, err := s.balances.Credit(ctx, po.StudentID, po.Total); err != nil {
		return fmt.Errorf("refund pre-order: %w", err)
	}
	return s.store.DeletePreOrder(ctx, id)
}

// GetPurchase returns a purchase by ID.
func (s *Service) GetPurchase(ctx context.Context, id int64) (*Purchase, error) {
	return s.store.GetPurchase(ctx, id)
}

// ListPurchases returns a student's purchases, newest first.
func (s *Service) ListPurchases(ctx context.Context, studentID int64, limit int) ([]*Purchase, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListPurchases(ctx, studentID, limit)
}

// ListAllPurchases returns recent purchases across all students.
func (s *Service) ListAllPurchases(ctx context.Context, limit int) ([]*Purchase, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListAllPurchases(ctx, limit)
}

// GetPreOrder returns a pre-order by ID.
func (s *Service) GetPreOrder(ctx context.Context, id int64) (*PreOrder, error) {
	return s.store.GetPreOrder(ctx, id)
}

// ListPreOrders returns a student's pre-orders.
func (s *Service) ListPreOrders(ctx context.Context, studentID int64, onlyPending bool) ([]*PreOrder, error) {
	return s.store.ListPreOrders(ctx, studentID, onlyPending)
}

// ListPendingPreOrders returns every pre-order awaiting delivery.
func (s *Service) ListPendingPreOrders(ctx context.Context) ([]*PreOrder, error) {
	return s.store.ListPendingPreOrders(ctx)
}
