// Package auth manages user accounts and JWT-based authentication.
//
// Two kinds of accounts exist: guardians (parents) who fund student
// balances, and admins who manage the cafeteria. Guardian accounts also
// carry their own balance, which the crypto recharge rail credits
// directly.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("username must be at least 3 characters")
	ErrInvalidPassword    = errors.New("password must be at least 6 characters")
	ErrInsufficientFunds  = errors.New("insufficient balance")
)

// Role determines what a user can do.
type Role string

const (
	RoleGuardian Role = "responsable"
	RoleAdmin    Role = "admin"
)

// User is an authenticated account.
type User struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Role         Role            `json:"rol"`
	Balance      decimal.Decimal `json:"saldo"`
	CreatedAt    time.Time       `json:"fecha_creacion"`
	UpdatedAt    time.Time       `json:"fecha_actualizacion"`
}

// Store persists user accounts.
//
// AddBalance has the same contract as the student store: the delta is
// applied atomically and a negative result fails with
// ErrInsufficientFunds.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	AddBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error)
}
