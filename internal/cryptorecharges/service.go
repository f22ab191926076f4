package cryptorecharges

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/auth"
	"github.com/foodcash/foodcash/internal/celo"
	"github.com/foodcash/foodcash/internal/idgen"
	"github.com/foodcash/foodcash/internal/metrics"
	"github.com/foodcash/foodcash/internal/syncutil"
	"github.com/foodcash/foodcash/internal/traces"
	"github.com/foodcash/foodcash/internal/validation"
)

// Users is the slice of the account service the crypto rail needs.
// Crypto recharges credit the guardian's own account, not a student.
type Users interface {
	Get(ctx context.Context, id int64) (*auth.User, error)
	Credit(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error)
}

// Chain verifies payments on the blockchain. *celo.Client satisfies it.
type Chain interface {
	Connected(ctx context.Context) bool
	VerifyPayment(ctx context.Context, txHash string, expected, tolerance decimal.Decimal) *celo.Verification
	Network(ctx context.Context) celo.NetworkInfo
}

// Notifier publishes recharge lifecycle events. May be nil.
type Notifier interface {
	RechargeResolved(rechargeID string, userID int64, status string, amount decimal.Decimal)
}

// Config for the crypto recharge service.
type Config struct {
	Destination string          // FoodCash receiving address
	MinCOP      decimal.Decimal // default 1000
	MaxCOP      decimal.Decimal // default 5000000
	TTL         time.Duration   // payment window, default 30m
	Tolerance   decimal.Decimal // amount tolerance fraction, default 0.01
}

// DefaultConfig returns the production limits.
func DefaultConfig(destination string) Config {
	return Config{
		Destination: destination,
		MinCOP:      decimal.NewFromInt(1000),
		MaxCOP:      decimal.NewFromInt(5000000),
		TTL:         30 * time.Minute,
		Tolerance:   decimal.NewFromFloat(0.01),
	}
}

// Service implements the crypto recharge state machine.
type Service struct {
	store    Store
	chain    Chain
	users    Users
	notifier Notifier
	config   Config
	locks    syncutil.ShardedMutex
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new crypto recharge service.
func NewService(store Store, chain Chain, users Users, notifier Notifier, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = decimal.NewFromFloat(0.01)
	}
	return &Service{
		store:    store,
		chain:    chain,
		users:    users,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// buildID produces a recharge ID like REC_CRYPTO_20260830153000_A1B2C3D4.
func (s *Service) buildID() string {
	timestamp := s.now().UTC().Format("20060102150405")
	return fmt.Sprintf("REC_CRYPTO_%s_%s", timestamp, strings.ToUpper(idgen.Hex(4)))
}

// CreatePending opens a new crypto recharge for a user.
func (s *Service) CreatePending(ctx context.Context, userID int64, amountCOP decimal.Decimal, asset Asset) (*CryptoRecharge, error) {
	if asset == "" {
		asset = AssetCCOP
	}
	if amountCOP.LessThan(s.config.MinCOP) || amountCOP.GreaterThan(s.config.MaxCOP) {
		return nil, fmt.Errorf("%w: between %s and %s COP", ErrAmountOutOfRange,
			s.config.MinCOP.String(), s.config.MaxCOP.String())
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}
	if !s.chain.Connected(ctx) {
		return nil, ErrChainUnavailable
	}
	if s.config.Destination == "" {
		return nil, celo.ErrNotConfigured
	}

	// cCOP is pegged 1:1 to COP; other assets need a price feed we
	// don't have.
	if asset != AssetCCOP {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset)
	}

	r := &CryptoRecharge{
		ID:             s.buildID(),
		UserID:         userID,
		AmountCOP:      amountCOP,
		AmountCrypto:   amountCOP,
		Asset:          asset,
		ConversionRate: decimal.NewFromInt(1),
		Status:         StatusPending,
		Destination:    s.config.Destination,
		Message:        "Esperando transacción del usuario",
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("crypto recharge created",
		"recharge_id", r.ID, "user_id", userID, "amount_cop", amountCOP.String())
	return r, nil
}

// remainingTTL computes the payment window left, never negative.
func (s *Service) remainingTTL(r *CryptoRecharge) time.Duration {
	elapsed := s.now().Sub(r.CreatedAt)
	if elapsed >= s.config.TTL {
		return 0
	}
	return s.config.TTL - elapsed
}

// PaymentInstructions describes how to pay a pending recharge.
type PaymentInstructions struct {
	RechargeID       string          `json:"recarga_id"`
	AmountCOP        decimal.Decimal `json:"monto_cop"`
	AmountCrypto     decimal.Decimal `json:"monto_crypto"`
	Asset            Asset           `json:"tipo_crypto"`
	Destination      string          `json:"direccion_destino"`
	RemainingMinutes int             `json:"tiempo_expiracion_minutos"`
	Steps            []string        `json:"instrucciones"`
	Network          string          `json:"red"`
	TokenContract    string          `json:"token_contract"`
}

// Instructions returns payment instructions for a pending recharge.
func (s *Service) Instructions(ctx context.Context, id string) (*PaymentInstructions, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, fmt.Errorf("%w: estado %s", ErrAlreadyProcessed, r.Status)
	}

	network := s.chain.Network(ctx)
	return &PaymentInstructions{
		RechargeID:       r.ID,
		AmountCOP:        r.AmountCOP,
		AmountCrypto:     r.AmountCrypto,
		Asset:            r.Asset,
		Destination:      r.Destination,
		RemainingMinutes: int(s.remainingTTL(r).Minutes()),
		Steps: []string{
			"1. Abre tu wallet de Celo (Valora, MetaMask u otra compatible)",
			"2. Asegúrate de estar en la red de Celo Mainnet",
			fmt.Sprintf("3. Envía exactamente %s %s a la dirección %s", r.AmountCrypto, r.Asset, r.Destination),
			"4. Copia el hash de la transacción",
			"5. Regresa a FoodCash y confirma tu pago con el hash",
		},
		Network:       "Celo Mainnet",
		TokenContract: network.TokenContract,
	}, nil
}

// ConfirmPayment verifies a submitted transaction hash and, when the
// chain proves the transfer, credits the user's balance. Safe to retry:
// a completed recharge returns success without crediting again, and a
// verification the chain could not answer leaves the recharge in
// VERIFICANDO for another attempt.
func (s *Service) ConfirmPayment(ctx context.Context, id, txHash, walletAddr string) (*CryptoRecharge, error) {
	if !validation.IsValidTxHash(txHash) {
		return nil, ErrInvalidTxHash
	}
	if !validation.IsValidWalletAddress(validation.SanitizeAddress(walletAddr)) {
		return nil, ErrInvalidWalletAddr
	}

	ctx, span := traces.StartSpan(ctx, "cryptorecharges.ConfirmPayment",
		traces.Rail("crypto"), traces.RechargeID(id))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !r.Status.Verifiable() {
		if r.Status == StatusCompleted {
			// Replayed confirmation of a finished recharge is success.
			return r, nil
		}
		return nil, fmt.Errorf("%w: estado %s", ErrAlreadyProcessed, r.Status)
	}

	if s.remainingTTL(r) <= 0 {
		s.reject(ctx, r, "Tiempo de pago expirado")
		return r, ErrExpired
	}

	// The hash is pinned before the chain is consulted so a crash
	// between verify and credit leaves an auditable record.
	from := r.Status
	r.Status = StatusVerifying
	r.TxHash = celo.NormalizeTxHash(txHash)
	r.WalletAddress = validation.SanitizeAddress(walletAddr)
	r.Message = "Verificando transacción en blockchain"
	if err := s.store.Update(ctx, r, from); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.resolvedElsewhere(ctx, r.ID)
		}
		return nil, err
	}

	v := s.chain.VerifyPayment(ctx, r.TxHash, r.AmountCrypto, s.config.Tolerance)
	switch v.Outcome {
	case celo.OutcomeUnavailable:
		s.logger.Warn("chain unavailable, recharge stays verifiable",
			"recharge_id", r.ID, "tx", r.TxHash, "message", v.Message)
		return r, fmt.Errorf("%w: %s", ErrChainUnavailable, v.Message)

	case celo.OutcomeRejected:
		s.reject(ctx, r, v.Message)
		return r, fmt.Errorf("%w: %s", ErrVerificationFailed, v.Message)
	}

	// Verified on chain. The verificando -> confirmada write is what
	// gates the credit: only the writer that wins it credits.
	now := s.now()
	r.Status = StatusConfirmed
	r.ConfirmedAt = &now
	r.BlockNumber = v.Details.BlockNumber
	r.Message = "Transacción confirmada en blockchain"
	if err := s.store.Update(ctx, r, StatusVerifying); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.resolvedElsewhere(ctx, r.ID)
		}
		return nil, err
	}

	newBalance, err := s.users.Credit(ctx, r.UserID, r.AmountCOP)
	if err != nil {
		// The money is on chain but the balance was not credited. This
		// is terminal and needs an operator.
		r.Status = StatusError
		r.Message = "Error acreditando saldo: " + err.Error()
		if uerr := s.store.Update(ctx, r, StatusConfirmed); uerr != nil {
			s.logger.Error("CRITICAL: verified payment not credited and state not persisted",
				"recharge_id", r.ID, "user_id", r.UserID, "tx", r.TxHash,
				"credit_error", err, "update_error", uerr)
			return nil, fmt.Errorf("credit failed (%v) and update failed: %w", err, uerr)
		}
		s.logger.Error("CRITICAL: verified payment not credited",
			"recharge_id", r.ID, "user_id", r.UserID, "tx", r.TxHash, "error", err)
		metrics.RechargesTotal.WithLabelValues("crypto", string(StatusError)).Inc()
		return r, fmt.Errorf("credit user: %w", err)
	}

	r.Status = StatusCompleted
	r.Message = "Recarga completada. Saldo acreditado exitosamente."
	if err := s.store.Update(ctx, r, StatusConfirmed); err != nil {
		// Credited but stuck in CONFIRMADA; the replay guard above
		// keeps a retried confirmation from crediting twice.
		s.logger.Error("credited recharge not marked completed",
			"recharge_id", r.ID, "error", err)
		return r, err
	}

	metrics.RechargesTotal.WithLabelValues("crypto", string(StatusCompleted)).Inc()
	amountF, _ := r.AmountCOP.Float64()
	metrics.RechargeAmountCOP.WithLabelValues("crypto").Observe(amountF)

	s.logger.Info("crypto recharge completed",
		"recharge_id", r.ID,
		"user_id", r.UserID,
		"amount_cop", r.AmountCOP.String(),
		"tx", r.TxHash,
		"block", r.BlockNumber,
		"new_balance", newBalance.String())

	if s.notifier != nil {
		s.notifier.RechargeResolved(r.ID, r.UserID, string(r.Status), r.AmountCOP)
	}
	return r, nil
}

// resolvedElsewhere reloads a recharge another writer transitioned
// mid-flight. A completed recharge is a replay success; anything else
// refuses further proofs.
func (s *Service) resolvedElsewhere(ctx context.Context, id string) (*CryptoRecharge, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusCompleted {
		return r, nil
	}
	return nil, fmt.Errorf("%w: estado %s", ErrAlreadyProcessed, r.Status)
}

func (s *Service) reject(ctx context.Context, r *CryptoRecharge, reason string) {
	from := r.Status
	r.Status = StatusRejected
	r.Message = "Recarga rechazada: " + reason
	if err := s.store.Update(ctx, r, from); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			s.logger.Info("recharge resolved by another writer", "recharge_id", r.ID)
			return
		}
		s.logger.Error("failed to persist rejection", "recharge_id", r.ID, "error", err)
		return
	}
	metrics.RechargesTotal.WithLabelValues("crypto", string(StatusRejected)).Inc()
	s.logger.Info("crypto recharge rejected", "recharge_id", r.ID, "reason", reason)

	if s.notifier != nil {
		s.notifier.RechargeResolved(r.ID, r.UserID, string(r.Status), r.AmountCOP)
	}
}

// Get returns a recharge by ID.
func (s *Service) Get(ctx context.Context, id string) (*CryptoRecharge, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns a user's crypto recharges, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*CryptoRecharge, error) {
	return s.store.ListByUser(ctx, userID)
}

// VerificationStatus is the polling view of a recharge.
type VerificationStatus struct {
	RechargeID string `json:"recarga_id"`
	Status     Status `json:"estado"`
	Verified   bool   `json:"verificada"`
	Message    string `json:"mensaje"`
	TxHash     string `json:"tx_hash,omitempty"`
	Block      uint64 `json:"block_number,omitempty"`
}

// Status returns the current verification state of a recharge.
func (s *Service) Status(ctx context.Context, id string) (*VerificationStatus, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &VerificationStatus{
		RechargeID: r.ID,
		Status:     r.Status,
		Verified:   r.Status == StatusCompleted,
		Message:    r.Message,
		TxHash:     r.TxHash,
		Block:      r.BlockNumber,
	}, nil
}

// SystemConfig describes the crypto payment setup for clients.
type SystemConfig struct {
	SupportedAssets []Asset          `json:"criptomonedas_soportadas"`
	Network         celo.NetworkInfo `json:"info_red"`
	Destination     string           `json:"direccion_recepcion"`
	ServiceStatus   string           `json:"estado_servicio"`
	MinCOP          decimal.Decimal  `json:"monto_minimo_cop"`
	MaxCOP          decimal.Decimal  `json:"monto_maximo_cop"`
	TTLMinutes      int              `json:"tiempo_expiracion_minutos"`
}

// Config returns the public crypto payment configuration.
func (s *Service) Config(ctx context.Context) *SystemConfig {
	network := s.chain.Network(ctx)
	status := "operativo"
	if !network.Connected {
		status = "no_disponible"
	}
	return &SystemConfig{
		SupportedAssets: []Asset{AssetCCOP},
		Network:         network,
		Destination:     s.config.Destination,
		ServiceStatus:   status,
		MinCOP:          s.config.MinCOP,
		MaxCOP:          s.config.MaxCOP,
		TTLMinutes:      int(s.config.TTL.Minutes()),
	}
}
