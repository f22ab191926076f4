// Package cryptorecharges implements balance recharges paid with cCOP
// on the Celo blockchain.
//
// Unlike the card rail there is no gateway callback: the payer submits
// a transaction hash as proof, and the service verifies the transfer on
// chain before crediting the account.
package cryptorecharges

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRechargeNotFound   = errors.New("crypto recharge not found")
	ErrAmountOutOfRange   = errors.New("amount out of range")
	ErrUnsupportedAsset   = errors.New("unsupported crypto asset")
	ErrChainUnavailable   = errors.New("blockchain service unavailable")
	ErrAlreadyProcessed   = errors.New("recharge already processed")
	ErrExpired            = errors.New("payment window expired")
	ErrInvalidTxHash      = errors.New("invalid transaction hash")
	ErrInvalidWalletAddr  = errors.New("invalid wallet address")
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrStatusConflict     = errors.New("recharge status changed concurrently")
)

// Asset is a supported cryptocurrency.
type Asset string

const (
	AssetCCOP Asset = "cCOP"
	AssetCUSD Asset = "cUSD"
	AssetCELO Asset = "CELO"
)

// Status of a crypto recharge. Persisted and wire values are Spanish.
type Status string

const (
	StatusPending   Status = "pendiente"
	StatusVerifying Status = "verificando"
	StatusConfirmed Status = "confirmada"
	StatusCompleted Status = "completada"
	StatusRejected  Status = "rechazada"
	StatusError     Status = "error"
)

// Verifiable reports whether a payment proof may still be submitted.
// VERIFICANDO stays verifiable so an unavailable chain can be retried.
func (s Status) Verifiable() bool {
	return s == StatusPending || s == StatusVerifying
}

// IsTerminal reports whether the recharge reached a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusError
}

// CryptoRecharge is a crypto-rail recharge record.
type CryptoRecharge struct {
	ID             string          `json:"id"`
	UserID         int64           `json:"usuario_id"`
	AmountCOP      decimal.Decimal `json:"monto_cop"`
	AmountCrypto   decimal.Decimal `json:"monto_crypto"`
	Asset          Asset           `json:"tipo_crypto"`
	ConversionRate decimal.Decimal `json:"tasa_conversion"`
	Status         Status          `json:"estado"`
	Destination    string          `json:"direccion_destino"`
	TxHash         string          `json:"tx_hash,omitempty"`
	WalletAddress  string          `json:"wallet_address,omitempty"`
	BlockNumber    uint64          `json:"block_number,omitempty"`
	Message        string          `json:"mensaje,omitempty"`
	CreatedAt      time.Time       `json:"fecha_creacion"`
	UpdatedAt      time.Time       `json:"fecha_actualizacion"`
	ConfirmedAt    *time.Time      `json:"fecha_confirmacion,omitempty"`
}

// Store persists crypto recharges.
//
// Update writes only if the stored status still equals from, and
// returns ErrStatusConflict otherwise. Two replicas sharing a database
// then cannot both win the verificando -> confirmada transition, which
// is what gates the credit.
type Store interface {
	Create(ctx context.Context, r *CryptoRecharge) error
	Get(ctx context.Context, id string) (*CryptoRecharge, error)
	Update(ctx context.Context, r *CryptoRecharge, from Status) error
	ListByUser(ctx context.Context, userID int64) ([]*CryptoRecharge, error)
}
