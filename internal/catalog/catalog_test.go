package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func newFood(name string, price int64, stock int) *Food {
	return &Food{
		Name:     name,
		Price:    decimal.NewFromInt(price),
		Stock:    stock,
		Calories: 250,
		Category: "almuerzo",
	}
}

func TestCreateFoodValidation(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	if _, err := svc.CreateFood(ctx, newFood("", 5000, 10)); err != ErrInvalidFood {
		t.Errorf("empty name err = %v, want ErrInvalidFood", err)
	}
	if _, err := svc.CreateFood(ctx, newFood("Arepa", 0, 10)); err != ErrInvalidFood {
		t.Errorf("zero price err = %v, want ErrInvalidFood", err)
	}
	if _, err := svc.CreateFood(ctx, newFood("Arepa", -5, 10)); err != ErrInvalidFood {
		t.Errorf("negative price err = %v, want ErrInvalidFood", err)
	}

	f, err := svc.CreateFood(ctx, newFood("Arepa", 5000, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !f.Active {
		t.Error("new food should be active")
	}
}

func TestStockReservation(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	f, err := svc.CreateFood(ctx, newFood("Jugo", 3000, 5))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	left, err := svc.ReserveStock(ctx, f.ID, 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if left != 2 {
		t.Errorf("stock = %d, want 2", left)
	}

	if _, err := svc.ReserveStock(ctx, f.ID, 3); err != ErrInsufficientStock {
		t.Errorf("oversell err = %v, want ErrInsufficientStock", err)
	}

	left, err = svc.RestockFood(ctx, f.ID, 10)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if left != 12 {
		t.Errorf("stock after restock = %d, want 12", left)
	}
}

func TestConcurrentReservations(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	f, err := svc.CreateFood(ctx, newFood("Empanada", 2000, 50))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ReserveStock(ctx, f.ID, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	var failed int
	for err := range errs {
		if err != ErrInsufficientStock {
			t.Errorf("unexpected error: %v", err)
		}
		failed++
	}
	if failed != 50 {
		t.Errorf("failed reservations = %d, want 50", failed)
	}

	got, err := svc.GetFood(ctx, f.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stock != 0 {
		t.Errorf("final stock = %d, want 0", got.Stock)
	}
}

func TestBlocks(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	f, err := svc.CreateFood(ctx, newFood("Gaseosa", 2500, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.BlockFood(ctx, 1, f.ID); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := svc.BlockFood(ctx, 1, f.ID); err != ErrAlreadyBlocked {
		t.Errorf("double block err = %v, want ErrAlreadyBlocked", err)
	}
	if _, err := svc.BlockFood(ctx, 1, 9999); err != ErrFoodNotFound {
		t.Errorf("block missing food err = %v, want ErrFoodNotFound", err)
	}

	blocked, err := svc.IsBlocked(ctx, 1, f.ID)
	if err != nil || !blocked {
		t.Errorf("IsBlocked = %v, %v, want true", blocked, err)
	}
	blocked, _ = svc.IsBlocked(ctx, 2, f.ID)
	if blocked {
		t.Error("food should not be blocked for another student")
	}

	if err := svc.UnblockFood(ctx, 1, f.ID); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if err := svc.UnblockFood(ctx, 1, f.ID); err != ErrBlockNotFound {
		t.Errorf("double unblock err = %v, want ErrBlockNotFound", err)
	}
}

func TestDeactivateFood(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	f, err := svc.CreateFood(ctx, newFood("Sopa", 4000, 8))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeactivateFood(ctx, f.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := svc.ListFoods(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, af := range active {
		if af.ID == f.ID {
			t.Error("deactivated food still listed as active")
		}
	}

	all, err := svc.ListFoods(ctx, true)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(all) = %d, want 1", len(all))
	}
}
