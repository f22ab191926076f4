// Package students manages student records and their spendable balances.
//
// The balance is the single source of truth for what a student can spend
// in the cafeteria. Recharges (card or crypto rail) credit it, purchases
// debit it. Both mutations go through atomic additive updates so that
// concurrent operations on the same student never lose an update.
package students

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrStudentNotFound     = errors.New("student not found")
	ErrDuplicateCedula     = errors.New("a student with this cedula already exists")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Student represents an enrolled student with a spendable balance.
type Student struct {
	ID        int64           `json:"id"`
	Name      string          `json:"nombre"`
	Email     string          `json:"email"`
	BirthDate string          `json:"fecha_nacimiento"`
	Guardian  string          `json:"responsable_financiero"` // parent account username
	Cedula    string          `json:"cedula"`
	Balance   decimal.Decimal `json:"saldo"`
	CreatedAt time.Time       `json:"fecha_creacion"`
	UpdatedAt time.Time       `json:"fecha_actualizacion"`
}

// Store persists student records.
//
// AddBalance applies the delta atomically with respect to concurrent
// credits/debits on the same student and returns the resulting balance.
// A negative delta that would leave the balance below zero fails with
// ErrInsufficientBalance.
type Store interface {
	Create(ctx context.Context, s *Student) error
	Get(ctx context.Context, id int64) (*Student, error)
	GetByCedula(ctx context.Context, cedula string) (*Student, error)
	ListByGuardian(ctx context.Context, guardian string) ([]*Student, error)
	List(ctx context.Context, limit int) ([]*Student, error)
	Update(ctx context.Context, s *Student) error
	AddBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error)
}

// NormalizeName strips accents and upper-cases a student name so lookups
// are insensitive to how the enrollment form was filled in.
func NormalizeName(name string) string {
	replacer := strings.NewReplacer(
		"á", "A", "é", "E", "í", "I", "ó", "O", "ú", "U",
		"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U",
		"ñ", "N", "Ñ", "N", "ü", "U", "Ü", "U",
	)
	return strings.ToUpper(strings.TrimSpace(replacer.Replace(name)))
}
