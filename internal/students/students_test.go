package students

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"maría pérez", "MARIA PEREZ"},
		{"  Ñoño  ", "NONO"},
		{"JUAN", "JUAN"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreateAndGet(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	s, err := svc.Create(ctx, "maría gómez", "m@example.com", "2012-04-01", "padre1", "1001")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Name != "MARIA GOMEZ" {
		t.Errorf("name not normalized: %q", s.Name)
	}
	if !s.Balance.IsZero() {
		t.Errorf("new student balance = %s, want 0", s.Balance)
	}

	got, err := svc.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Cedula != "1001" {
		t.Errorf("cedula = %q", got.Cedula)
	}

	if _, err := svc.Create(ctx, "otro", "", "", "padre2", "1001"); err != ErrDuplicateCedula {
		t.Errorf("duplicate cedula err = %v, want ErrDuplicateCedula", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	if _, err := svc.Create(ctx, "", "", "", "", "1001"); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := svc.Create(ctx, "ANA", "", "", "", "  "); err == nil {
		t.Error("expected error for empty cedula")
	}
}

func TestCreditAndDebit(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	s, err := svc.Create(ctx, "ANA", "", "", "padre1", "2001")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	balance, err := svc.Credit(ctx, s.ID, decimal.NewFromInt(50000))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("balance after credit = %s, want 50000", balance)
	}

	balance, err = svc.Debit(ctx, s.ID, decimal.NewFromInt(12000))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(38000)) {
		t.Errorf("balance after debit = %s, want 38000", balance)
	}

	if _, err := svc.Debit(ctx, s.ID, decimal.NewFromInt(100000)); err != ErrInsufficientBalance {
		t.Errorf("overdraw err = %v, want ErrInsufficientBalance", err)
	}

	if _, err := svc.Credit(ctx, s.ID, decimal.Zero); err != ErrInvalidAmount {
		t.Errorf("zero credit err = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Credit(ctx, s.ID, decimal.NewFromInt(-5)); err != ErrInvalidAmount {
		t.Errorf("negative credit err = %v, want ErrInvalidAmount", err)
	}

	if _, err := svc.Credit(ctx, 9999, decimal.NewFromInt(100)); err != ErrStudentNotFound {
		t.Errorf("credit missing student err = %v, want ErrStudentNotFound", err)
	}
}

func TestConcurrentCredits(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	s, err := svc.Create(ctx, "LUIS", "", "", "padre1", "3001")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Credit(ctx, s.ID, decimal.NewFromInt(10)); err != nil {
				t.Errorf("credit: %v", err)
			}
		}()
	}
	wg.Wait()

	balance, err := svc.Balance(ctx, s.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(n * 10)) {
		t.Errorf("balance = %s, want %d", balance, n*10)
	}
}

func TestListByGuardian(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	for i, cedula := range []string{"4001", "4002"} {
		if _, err := svc.Create(ctx, "HIJO", "", "", "padre1", cedula); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := svc.Create(ctx, "OTRO", "", "", "padre2", "4003"); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := svc.ListByGuardian(ctx, "padre1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len = %d, want 2", len(list))
	}
}
