package auth

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(NewMemoryStore(), "test-secret")
	ctx := context.Background()

	user, err := svc.Register(ctx, "Padre1", "secreto123", RoleGuardian)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Username != "padre1" {
		t.Errorf("username not lowered: %q", user.Username)
	}
	if user.PasswordHash == "secreto123" {
		t.Error("password stored in plain text")
	}

	got, token, err := svc.Login(ctx, "PADRE1", "secreto123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("login returned wrong user")
	}
	if token == "" {
		t.Fatal("empty token")
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != string(RoleGuardian) {
		t.Errorf("claims = %+v", claims)
	}
}

func TestLoginFailures(t *testing.T) {
	svc := NewService(NewMemoryStore(), "test-secret")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "padre1", "secreto123", RoleGuardian); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "padre1", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "nadie", "secreto123"); err != ErrInvalidCredentials {
		t.Errorf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(), "test-secret")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "secreto123", RoleGuardian); err != ErrInvalidUsername {
		t.Errorf("short username err = %v, want ErrInvalidUsername", err)
	}
	if _, err := svc.Register(ctx, "padre1", "12345", RoleGuardian); err != ErrInvalidPassword {
		t.Errorf("short password err = %v, want ErrInvalidPassword", err)
	}

	if _, err := svc.Register(ctx, "padre1", "secreto123", RoleGuardian); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "padre1", "otro-secreto", RoleGuardian); err != ErrDuplicateUsername {
		t.Errorf("duplicate username err = %v, want ErrDuplicateUsername", err)
	}
}

func TestVerifyTokenRejectsTampering(t *testing.T) {
	svc := NewService(NewMemoryStore(), "test-secret")
	other := NewService(NewMemoryStore(), "another-secret")
	ctx := context.Background()

	user, err := svc.Register(ctx, "padre1", "secreto123", RoleGuardian)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := other.VerifyToken(token); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
	if _, err := svc.VerifyToken(token + "x"); err == nil {
		t.Error("tampered token was accepted")
	}
}

func TestUserBalance(t *testing.T) {
	svc := NewService(NewMemoryStore(), "test-secret")
	ctx := context.Background()

	user, err := svc.Register(ctx, "padre1", "secreto123", RoleGuardian)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	balance, err := svc.Credit(ctx, user.ID, decimal.NewFromInt(20000))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(20000)) {
		t.Errorf("balance = %s, want 20000", balance)
	}

	if _, err := svc.Debit(ctx, user.ID, decimal.NewFromInt(50000)); err != ErrInsufficientFunds {
		t.Errorf("overdraw err = %v, want ErrInsufficientFunds", err)
	}
}
