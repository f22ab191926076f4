package celo

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/metrics"
	"github.com/foodcash/foodcash/internal/money"
)

// Outcome is the three-way result of a payment verification.
type Outcome string

const (
	// OutcomeVerified means a matching transfer was found on chain.
	OutcomeVerified Outcome = "verified"
	// OutcomeRejected means the chain proves the payment is not valid.
	OutcomeRejected Outcome = "rejected"
	// OutcomeUnavailable means the chain could not be consulted; the
	// caller should retry, this is never a proof of failure.
	OutcomeUnavailable Outcome = "unavailable"
)

// TransferDetails describes the transfer backing a verified payment.
type TransferDetails struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	BlockNumber uint64          `json:"block_number"`
	GasUsed     uint64          `json:"gas_used"`
}

// Verification is the result of checking a payment proof.
type Verification struct {
	Outcome Outcome
	Message string
	Details *TransferDetails
}

// VerifyPayment checks that txHash is a successful cCOP transfer to the
// receiving address for the expected amount, within tolerance (a
// fraction, 0.01 for 1%, boundaries inclusive).
func (c *Client) VerifyPayment(ctx context.Context, txHash string, expected, tolerance decimal.Decimal) *Verification {
	v := c.verifyPayment(ctx, txHash, expected, tolerance)
	metrics.ChainVerificationsTotal.WithLabelValues(string(v.Outcome)).Inc()
	return v
}

func (c *Client) verifyPayment(ctx context.Context, txHash string, expected, tolerance decimal.Decimal) *Verification {
	if (c.config.ReceivingAddress == common.Address{}) {
		return &Verification{Outcome: OutcomeUnavailable, Message: ErrNotConfigured.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	hash := common.HexToHash(NormalizeTxHash(txHash))
	receipt, err := c.reader.TransactionReceipt(ctx, hash)
	if err != nil {
		// Not found covers pending transactions too; either way the
		// chain has not answered, so the proof stays open.
		c.logger.Warn("receipt unavailable", "tx", hash.Hex(), "error", err)
		return &Verification{
			Outcome: OutcomeUnavailable,
			Message: "transaction not found or still pending",
		}
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return &Verification{
			Outcome: OutcomeRejected,
			Message: "transaction failed on chain",
		}
	}

	transfer := c.findTransfer(receipt)
	if transfer == nil {
		return &Verification{
			Outcome: OutcomeRejected,
			Message: "no cCOP transfer to the receiving address in this transaction",
		}
	}
	transfer.BlockNumber = receipt.BlockNumber.Uint64()
	transfer.GasUsed = receipt.GasUsed

	if !money.WithinTolerance(transfer.Amount, expected, tolerance) {
		return &Verification{
			Outcome: OutcomeRejected,
			Message: "amount mismatch: expected " + expected.String() +
				" cCOP, received " + transfer.Amount.String() + " cCOP",
			Details: transfer,
		}
	}

	c.logger.Info("payment verified",
		"tx", hash.Hex(),
		"from", transfer.From,
		"amount", transfer.Amount.String(),
		"block", transfer.BlockNumber)

	return &Verification{Outcome: OutcomeVerified, Details: transfer}
}

// findTransfer scans receipt logs for a Transfer from the token
// contract to the receiving address.
//
// Topics[1] = from address (indexed)
// Topics[2] = to address (indexed)
// Data      = amount
func (c *Client) findTransfer(receipt *types.Receipt) *TransferDetails {
	for _, vLog := range receipt.Logs {
		if vLog.Address != c.config.TokenContract {
			continue
		}
		if len(vLog.Topics) < 3 || vLog.Topics[0] != transferEventSig {
			continue
		}
		to := common.BytesToAddress(vLog.Topics[2].Bytes())
		if to != c.config.ReceivingAddress {
			continue
		}

		from := common.BytesToAddress(vLog.Topics[1].Bytes())
		amount := new(big.Int).SetBytes(vLog.Data)
		return &TransferDetails{
			From:   from.Hex(),
			To:     to.Hex(),
			Amount: c.fromTokenUnits(amount),
		}
	}
	return nil
}
