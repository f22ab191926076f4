// Package catalog manages the cafeteria's food inventory and per-student
// food blocks (items a guardian has forbidden for a student).
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrFoodNotFound      = errors.New("food not found")
	ErrInvalidFood       = errors.New("invalid food")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyBlocked    = errors.New("food already blocked for this student")
	ErrBlockNotFound     = errors.New("block not found")
)

// Food is an item for sale in the cafeteria.
type Food struct {
	ID        int64           `json:"id"`
	Name      string          `json:"nombre"`
	Price     decimal.Decimal `json:"precio"`
	Stock     int             `json:"cantidad_en_stock"`
	Calories  int             `json:"calorias"`
	Image     string          `json:"imagen"`
	Category  string          `json:"categoria"`
	Active    bool            `json:"activo"`
	CreatedAt time.Time       `json:"fecha_creacion"`
	UpdatedAt time.Time       `json:"fecha_actualizacion"`
}

// Block forbids a food for a specific student.
type Block struct {
	StudentID int64     `json:"id_estudiante"`
	FoodID    int64     `json:"id_alimento"`
	BlockedAt time.Time `json:"fecha_bloqueo"`
}

// Store persists foods and blocks.
//
// AdjustStock applies the delta atomically; a delta that would take the
// stock below zero fails with ErrInsufficientStock.
type Store interface {
	CreateFood(ctx context.Context, f *Food) error
	GetFood(ctx context.Context, id int64) (*Food, error)
	ListFoods(ctx context.Context, onlyActive bool) ([]*Food, error)
	UpdateFood(ctx context.Context, f *Food) error
	AdjustStock(ctx context.Context, id int64, delta int) (int, error)

	CreateBlock(ctx context.Context, b *Block) error
	DeleteBlock(ctx context.Context, studentID, foodID int64) error
	ListBlocks(ctx context.Context, studentID int64) ([]*Block, error)
	IsBlocked(ctx context.Context, studentID, foodID int64) (bool, error)
}
