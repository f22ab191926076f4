// Package celo reads the Celo blockchain to verify cCOP payments.
//
// Recharges on the crypto rail are proven by an on-chain ERC20 Transfer
// of cCOP to the platform's receiving address; this package fetches the
// transaction receipt and decides whether it backs a given recharge.
package celo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// ERC20 Transfer event signature
var transferEventSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// balanceOf(address) selector
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// cCOP contract on Celo mainnet.
const DefaultTokenContract = "0x00Be915B9dCf56a3CBE739D9B9c202ca692409EC"

// DefaultRPCURL is the public Celo mainnet endpoint.
const DefaultRPCURL = "https://forno.celo.org"

var ErrNotConfigured = errors.New("receiving address not configured")

// ChainReader is the slice of the RPC client the verifier needs.
// *ethclient.Client satisfies it; tests supply a fake.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config for the chain verifier.
type Config struct {
	RPCURL           string
	TokenContract    common.Address
	ReceivingAddress common.Address
	TokenDecimals    int32
	RequestTimeout   time.Duration
}

// DefaultConfig returns mainnet defaults.
func DefaultConfig() Config {
	return Config{
		RPCURL:         DefaultRPCURL,
		TokenContract:  common.HexToAddress(DefaultTokenContract),
		TokenDecimals:  18,
		RequestTimeout: 15 * time.Second,
	}
}

// Client verifies cCOP payments against the chain.
type Client struct {
	reader ChainReader
	config Config
	logger *slog.Logger
}

// NewClient dials the RPC endpoint and builds a verifier.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		cfg.RPCURL = DefaultRPCURL
	}
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewClientWithReader(eth, cfg, logger), nil
}

// NewClientWithReader builds a verifier over an existing reader.
func NewClientWithReader(reader ChainReader, cfg Config, logger *slog.Logger) *Client {
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = 18
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{reader: reader, config: cfg, logger: logger}
}

// ReceivingAddress returns the configured payment destination.
func (c *Client) ReceivingAddress() common.Address {
	return c.config.ReceivingAddress
}

// Connected reports whether the RPC endpoint answers.
func (c *Client) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	_, err := c.reader.BlockNumber(ctx)
	return err == nil
}

// NetworkInfo describes the connected chain.
type NetworkInfo struct {
	Connected        bool   `json:"connected"`
	ChainID          uint64 `json:"chain_id,omitempty"`
	LatestBlock      uint64 `json:"latest_block,omitempty"`
	TokenContract    string `json:"token_contract"`
	ReceivingAddress string `json:"receiving_address"`
}

// Network returns chain metadata for the public configuration endpoint.
func (c *Client) Network(ctx context.Context) NetworkInfo {
	info := NetworkInfo{
		TokenContract:    c.config.TokenContract.Hex(),
		ReceivingAddress: c.config.ReceivingAddress.Hex(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	block, err := c.reader.BlockNumber(ctx)
	if err != nil {
		return info
	}
	info.Connected = true
	info.LatestBlock = block

	if id, err := c.reader.ChainID(ctx); err == nil {
		info.ChainID = id.Uint64()
	}
	return info
}

// TokenBalance returns an address's cCOP balance.
func (c *Client) TokenBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(addr.Bytes(), 32)...)

	token := c.config.TokenContract
	out, err := c.reader.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf call: %w", err)
	}
	return c.fromTokenUnits(new(big.Int).SetBytes(out)), nil
}

// fromTokenUnits converts raw token units to a decimal cCOP amount.
func (c *Client) fromTokenUnits(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -c.config.TokenDecimals)
}

// NormalizeTxHash adds the 0x prefix if missing and lower-cases the hash.
func NormalizeTxHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	return h
}
