// Package orders records cafeteria purchases and pre-orders.
//
// A purchase debits the student's balance immediately and decrements
// stock. A pre-order is a purchase placed ahead of time with a per-item
// surcharge; it stays pending until the cafeteria marks it delivered.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPurchaseNotFound  = errors.New("purchase not found")
	ErrPreOrderNotFound  = errors.New("pre-order not found")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrFoodBlocked       = errors.New("food is blocked for this student")
	ErrAlreadyDelivered  = errors.New("pre-order already delivered")
	ErrNotDelivered      = errors.New("pre-order is not marked as delivered")
	ErrDeliveredPreOrder = errors.New("delivered pre-orders cannot be removed")
)

// Item is a line in a purchase.
type Item struct {
	FoodID    int64           `json:"producto_id"`
	FoodName  string          `json:"nombre_alimento,omitempty"`
	Quantity  int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precio_unitario"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Calories  int             `json:"calorias,omitempty"`
}

// Purchase is a completed sale against a student's balance.
type Purchase struct {
	ID        int64           `json:"id"`
	StudentID int64           `json:"usuario_id"`
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"fecha"`
}

// PreOrder is a purchase placed in advance, pending delivery.
type PreOrder struct {
	ID          int64           `json:"id"`
	PurchaseID  int64           `json:"id_compra"`
	StudentID   int64           `json:"id_estudiante"`
	Total       decimal.Decimal `json:"costo_total"`
	Surcharge   decimal.Decimal `json:"costo_adicional"`
	Delivered   bool            `json:"entregado"`
	Active      bool            `json:"activo"`
	DeliveredAt *time.Time      `json:"fecha_entrega,omitempty"`
	CreatedAt   time.Time       `json:"fecha_creacion"`
	UpdatedAt   time.Time       `json:"fecha_actualizacion"`
}

// Store persists purchases and pre-orders.
type Store interface {
	CreatePurchase(ctx context.Context, p *Purchase) error
	GetPurchase(ctx context.Context, id int64) (*Purchase, error)
	DeletePurchase(ctx context.Context, id int64) error
	ListPurchases(ctx context.Context, studentID int64, limit int) ([]*Purchase, error)
	ListAllPurchases(ctx context.Context, limit int) ([]*Purchase, error)

	CreatePreOrder(ctx context.Context, po *PreOrder) error
	GetPreOrder(ctx context.Context, id int64) (*PreOrder, error)
	UpdatePreOrder(ctx context.Context, po *PreOrder) error
	ListPreOrders(ctx context.Context, studentID int64, onlyPending bool) ([]*PreOrder, error)
	ListPendingPreOrders(ctx context.Context) ([]*PreOrder, error)
	DeletePreOrder(ctx context.Context, id int64) error
}
