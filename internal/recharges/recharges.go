// Package recharges drives card-rail balance recharges.
//
// A recharge starts PENDIENTE, gets a payment reference when the widget
// is requested, and resolves to APROBADA, RECHAZADA or CANCELADA from
// the gateway's webhook. Approval credits the student balance exactly
// once: terminal states never process a second time, and a failed
// credit reverts the recharge to PENDIENTE so a webhook retry can run
// the whole approval again.
package recharges

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRechargeNotFound  = errors.New("recharge not found")
	ErrReferenceNotFound = errors.New("no recharge with that reference")
	ErrNotPending        = errors.New("recharge is not pending")
	ErrAmountOutOfRange  = errors.New("amount out of allowed range")
	ErrStatusConflict    = errors.New("recharge status changed concurrently")
)

// Status is the lifecycle state of a card recharge.
// Values are persisted and exposed on the wire in Spanish.
type Status string

const (
	StatusPending  Status = "PENDIENTE"
	StatusApproved Status = "APROBADA"
	StatusRejected Status = "RECHAZADA"
	StatusCanceled Status = "CANCELADA"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCanceled
}

// Recharge is one card-rail top-up attempt for a student.
type Recharge struct {
	ID            string          `json:"id"`
	StudentID     int64           `json:"usuario_id"`
	Amount        decimal.Decimal `json:"monto"`
	Status        Status          `json:"estado"`
	Reference     string          `json:"referencia_wompi,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"fecha_creacion"`
	UpdatedAt     time.Time       `json:"fecha_actualizacion"`
}

// Store persists recharge records.
//
// SetReference assigns the payment reference only if none is set yet,
// so concurrent widget requests agree on a single reference.
//
// Update writes only if the stored status still equals from, and
// returns ErrStatusConflict otherwise. The in-process lock serializes
// one replica; the status precondition is what keeps two replicas
// sharing a database from approving the same recharge twice.
type Store interface {
	Create(ctx context.Context, r *Recharge) error
	Get(ctx context.Context, id string) (*Recharge, error)
	GetByReference(ctx context.Context, reference string) (*Recharge, error)
	Update(ctx context.Context, r *Recharge, from Status) error
	SetReference(ctx context.Context, id, reference string) (string, error)
	ListByStudent(ctx context.Context, studentID int64, limit int) ([]*Recharge, error)
}
