package recharges

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/idgen"
	"github.com/foodcash/foodcash/internal/metrics"
	"github.com/foodcash/foodcash/internal/money"
	"github.com/foodcash/foodcash/internal/students"
	"github.com/foodcash/foodcash/internal/syncutil"
	"github.com/foodcash/foodcash/internal/traces"
	"github.com/foodcash/foodcash/internal/wompi"
)

// Students is the slice of the student service the card rail needs.
type Students interface {
	Get(ctx context.Context, id int64) (*students.Student, error)
	Credit(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error)
}

// Notifier publishes recharge lifecycle events, e.g. to WebSocket
// subscribers. May be nil.
type Notifier interface {
	RechargeResolved(rechargeID string, studentID int64, status string, amount decimal.Decimal)
}

// Bounds are the allowed recharge amounts in COP.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Service implements the card recharge state machine.
type Service struct {
	store    Store
	gateway  *wompi.Gateway
	students Students
	notifier Notifier
	bounds   Bounds
	locks    syncutil.ShardedMutex
	logger   *slog.Logger
}

// NewService creates a new card recharge service.
func NewService(store Store, gateway *wompi.Gateway, st Students, notifier Notifier, bounds Bounds, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		students: st,
		notifier: notifier,
		bounds:   bounds,
		logger:   logger,
	}
}

// CreatePending opens a new recharge for a student.
func (s *Service) CreatePending(ctx context.Context, studentID int64, amount decimal.Decimal) (*Recharge, error) {
	if amount.LessThan(s.bounds.Min) || amount.GreaterThan(s.bounds.Max) {
		return nil, fmt.Errorf("%w: between %s and %s COP", ErrAmountOutOfRange,
			money.Format(s.bounds.Min), money.Format(s.bounds.Max))
	}
	if _, err := s.students.Get(ctx, studentID); err != nil {
		return nil, err
	}

	r := &Recharge{
		ID:        idgen.New(),
		StudentID: studentID,
		Amount:    amount,
		Status:    StatusPending,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("recharge created", "recharge_id", r.ID, "student_id", studentID, "amount", amount.String())
	return r, nil
}

// WidgetConfig prepares the gateway widget for a pending recharge.
// The payment reference is assigned on first call and reused afterwards
// so the gateway always sees a single reference per recharge.
func (s *Service) WidgetConfig(ctx context.Context, rechargeID string) (*wompi.WidgetConfig, error) {
	r, err := s.store.Get(ctx, rechargeID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, fmt.Errorf("%w: estado %s", ErrNotPending, r.Status)
	}

	reference := r.Reference
	if reference == "" {
		candidate := buildReference(r.ID, r.StudentID)
		reference, err = s.store.SetReference(ctx, r.ID, candidate)
		if err != nil {
			return nil, err
		}
	}

	return s.gateway.BuildWidgetConfig(
		reference,
		money.ToCents(r.Amount),
		fmt.Sprintf("Recarga de saldo - %s COP", money.Format(r.Amount)),
		"",
	)
}

// buildReference produces the gateway reference: "REC", the first 8
// chars of the recharge ID without dashes, the student ID and a unix
// timestamp.
func buildReference(rechargeID string, studentID int64) string {
	compact := strings.ReplaceAll(rechargeID, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return fmt.Sprintf("REC%s%d%d", compact, studentID, time.Now().Unix())
}

// ProcessWebhook handles a verified gateway notification. It is safe
// to call repeatedly with the same event: a recharge already in a
// terminal state is returned unchanged.
func (s *Service) ProcessWebhook(ctx context.Context, ev *wompi.Event) (*Recharge, error) {
	if ev.Type != "transaction.updated" {
		s.logger.Info("ignoring webhook event", "type", ev.Type)
		return nil, nil
	}
	reference := ev.Transaction.Reference
	if reference == "" {
		return nil, fmt.Errorf("%w: event has no reference", wompi.ErrInvalidEvent)
	}

	ctx, span := traces.StartSpan(ctx, "recharges.ProcessWebhook",
		traces.Rail("card"), traces.Reference(reference))
	defer span.End()

	r, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	// All transitions lock on the recharge ID, so duplicate webhook
	// deliveries, cancels and manual approvals cannot race the credit.
	unlock := s.locks.Lock(r.ID)
	defer unlock()

	r, err = s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	if r.Status.IsTerminal() {
		s.logger.Info("webhook for already resolved recharge",
			"recharge_id", r.ID, "status", r.Status)
		return r, nil
	}

	outcome := s.gateway.MapStatus(ev.Transaction.Status)

	switch outcome {
	case wompi.OutcomeApproved:
		r.TransactionID = ev.Transaction.ID
		return s.approve(ctx, r)
	case wompi.OutcomeDeclined:
		r.TransactionID = ev.Transaction.ID
		return s.resolve(ctx, r, StatusRejected)
	case wompi.OutcomeVoided:
		r.TransactionID = ev.Transaction.ID
		return s.resolve(ctx, r, StatusCanceled)
	case wompi.OutcomePending:
		return r, nil
	default:
		s.logger.Warn("unrecognized gateway status",
			"recharge_id", r.ID, "status", ev.Transaction.Status)
		return r, nil
	}
}

// approve moves the recharge to APROBADA and credits the student. The
// student is looked up before any write; if the credit itself fails the
// recharge is reverted to PENDIENTE so a retried webhook can attempt
// the approval again without double crediting. The PENDIENTE -> APROBADA
// write is conditional on the stored status, so only one writer (in this
// process or another replica) wins the transition and credits.
func (s *Service) approve(ctx context.Context, r *Recharge) (*Recharge, error) {
	if _, err := s.students.Get(ctx, r.StudentID); err != nil {
		return nil, fmt.Errorf("approve recharge %s: %w", r.ID, err)
	}

	r.Status = StatusApproved
	if err := s.store.Update(ctx, r, StatusPending); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			s.logger.Info("recharge resolved by another writer, skipping credit", "recharge_id", r.ID)
			return s.store.Get(ctx, r.ID)
		}
		return nil, fmt.Errorf("persist approval: %w", err)
	}

	newBalance, err := s.students.Credit(ctx, r.StudentID, r.Amount)
	if err != nil {
		r.Status = StatusPending
		if rerr := s.store.Update(ctx, r, StatusApproved); rerr != nil {
			// Approval is persisted but the money never moved; this
			// needs an operator.
			s.logger.Error("CRITICAL: approved recharge not credited and revert failed",
				"recharge_id", r.ID, "student_id", r.StudentID,
				"amount", r.Amount.String(), "credit_error", err, "revert_error", rerr)
			return nil, fmt.Errorf("credit failed (%v) and revert failed: %w", err, rerr)
		}
		s.logger.Error("credit failed, recharge reverted to pending",
			"recharge_id", r.ID, "student_id", r.StudentID, "error", err)
		return nil, fmt.Errorf("credit student: %w", err)
	}

	metrics.RechargesTotal.WithLabelValues("card", string(StatusApproved)).Inc()
	amountF, _ := r.Amount.Float64()
	metrics.RechargeAmountCOP.WithLabelValues("card").Observe(amountF)

	s.logger.Info("recharge approved",
		"recharge_id", r.ID,
		"student_id", r.StudentID,
		"amount", r.Amount.String(),
		"new_balance", newBalance.String())

	if s.notifier != nil {
		s.notifier.RechargeResolved(r.ID, r.StudentID, string(r.Status), r.Amount)
	}
	return r, nil
}

func (s *Service) resolve(ctx context.Context, r *Recharge, status Status) (*Recharge, error) {
	r.Status = status
	if err := s.store.Update(ctx, r, StatusPending); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			s.logger.Info("recharge resolved by another writer", "recharge_id", r.ID)
			return s.store.Get(ctx, r.ID)
		}
		return nil, err
	}

	metrics.RechargesTotal.WithLabelValues("card", string(status)).Inc()
	s.logger.Info("recharge resolved", "recharge_id", r.ID, "status", status)

	if s.notifier != nil {
		s.notifier.RechargeResolved(r.ID, r.StudentID, string(status), r.Amount)
	}
	return r, nil
}

// Approve resolves a pending recharge without a webhook. For operators,
// when the gateway dashboard shows the payment but the callback never
// arrived. Idempotent: an already resolved recharge is returned as is.
func (s *Service) Approve(ctx context.Context, id string) (*Recharge, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(r.ID)
	defer unlock()

	r, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status.IsTerminal() {
		return r, nil
	}

	s.logger.Info("manual recharge approval", "recharge_id", r.ID)
	return s.approve(ctx, r)
}

// Cancel voids a pending recharge at the user's request.
func (s *Service) Cancel(ctx context.Context, id string) (*Recharge, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(r.ID)
	defer unlock()

	// Re-read under the lock; a webhook may have resolved it meanwhile.
	r, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, fmt.Errorf("%w: estado %s", ErrNotPending, r.Status)
	}
	resolved, err := s.resolve(ctx, r, StatusCanceled)
	if err != nil {
		return nil, err
	}
	if resolved.Status != StatusCanceled {
		// A webhook on another replica beat the cancel.
		return nil, fmt.Errorf("%w: estado %s", ErrNotPending, resolved.Status)
	}
	return resolved, nil
}

// Get returns a recharge by ID.
func (s *Service) Get(ctx context.Context, id string) (*Recharge, error) {
	return s.store.Get(ctx, id)
}

// ListByStudent returns a student's recharges, newest first.
func (s *Service) ListByStudent(ctx context.Context, studentID int64, limit int) ([]*Recharge, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListByStudent(ctx, studentID, limit)
}

// VerifyWebhook checks a raw webhook payload's signature and parses it.
func (s *Service) VerifyWebhook(payload []byte, headerChecksum, headerTimestamp string) (*wompi.Event, bool) {
	if !s.gateway.VerifyWebhookSignature(payload, headerChecksum, headerTimestamp) {
		metrics.WebhookVerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, false
	}
	metrics.WebhookVerificationsTotal.WithLabelValues("valid").Inc()

	ev, err := wompi.ParseEvent(payload)
	if err != nil {
		s.logger.Warn("signed webhook with unparseable body", "error", err)
		return nil, false
	}
	return ev, true
}
