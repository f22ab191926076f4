package cryptorecharges

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed crypto recharge store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the crypto_recharges table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS crypto_recharges (
			id              VARCHAR(40) PRIMARY KEY,
			user_id         BIGINT NOT NULL,
			amount_cop      NUMERIC(12,2) NOT NULL,
			amount_crypto   NUMERIC(24,8) NOT NULL,
			asset           VARCHAR(10) NOT NULL DEFAULT 'cCOP',
			conversion_rate NUMERIC(12,6) NOT NULL DEFAULT 1,
			status          VARCHAR(20) NOT NULL DEFAULT 'pendiente',
			destination     VARCHAR(42) NOT NULL,
			tx_hash         VARCHAR(66),
			wallet_address  VARCHAR(42),
			block_number    BIGINT,
			message         TEXT,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW(),
			confirmed_at    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_crypto_recharges_user ON crypto_recharges(user_id);
		CREATE INDEX IF NOT EXISTS idx_crypto_recharges_status ON crypto_recharges(status);
		CREATE INDEX IF NOT EXISTS idx_crypto_recharges_tx ON crypto_recharges(tx_hash) WHERE tx_hash IS NOT NULL;
	`)
	return err
}

// Create inserts a new crypto recharge record.
func (p *PostgresStore) Create(ctx context.Context, r *CryptoRecharge) error {
	now := time.Now()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO crypto_recharges (id, user_id, amount_cop, amount_crypto, asset, conversion_rate,
			status, destination, tx_hash, wallet_address, block_number, message, created_at, updated_at)
		VALUES ($1, $2, $3::NUMERIC(12,2), $4::NUMERIC(24,8), $5, $6::NUMERIC(12,6),
			$7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, 0), NULLIF($12, ''), $13, $14)
	`, r.ID, r.UserID, r.AmountCOP.String(), r.AmountCrypto.String(), string(r.Asset),
		r.ConversionRate.String(), string(r.Status), r.Destination, r.TxHash,
		r.WalletAddress, int64(r.BlockNumber), r.Message, now, now)
	if err != nil {
		return fmt.Errorf("insert crypto recharge: %w", err)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// Get retrieves a crypto recharge by ID.
func (p *PostgresStore) Get(ctx context.Context, id string) (*CryptoRecharge, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount_cop, amount_crypto, asset, conversion_rate, status,
			destination, tx_hash, wallet_address, block_number, message,
			created_at, updated_at, confirmed_at
		FROM crypto_recharges WHERE id = $1
	`, id)

	r, err := scanCryptoRecharge(row)
	if err == sql.ErrNoRows {
		return nil, ErrRechargeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crypto recharge: %w", err)
	}
	return r, nil
}

// Update modifies a crypto recharge's mutable fields, guarded by the
// expected current status so concurrent replicas cannot both win the
// same transition.
func (p *PostgresStore) Update(ctx context.Context, r *CryptoRecharge, from Status) error {
	r.UpdatedAt = time.Now()

	result, err := p.db.ExecContext(ctx, `
		UPDATE crypto_recharges SET
			status         = $2,
			tx_hash        = NULLIF($3, ''),
			wallet_address = NULLIF($4, ''),
			block_number   = NULLIF($5, 0),
			message        = NULLIF($6, ''),
			updated_at     = $7,
			confirmed_at   = $8
		WHERE id = $1 AND status = $9
	`, r.ID, string(r.Status), r.TxHash, r.WalletAddress, int64(r.BlockNumber),
		r.Message, r.UpdatedAt, r.ConfirmedAt, string(from))
	if err != nil {
		return fmt.Errorf("update crypto recharge: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		var current string
		err := p.db.QueryRowContext(ctx, `SELECT status FROM crypto_recharges WHERE id = $1`, r.ID).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrRechargeNotFound
		}
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}
		return ErrStatusConflict
	}
	return nil
}

// ListByUser returns a user's crypto recharges, newest first.
func (p *PostgresStore) ListByUser(ctx context.Context, userID int64) ([]*CryptoRecharge, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, amount_cop, amount_crypto, asset, conversion_rate, status,
			destination, tx_hash, wallet_address, block_number, message,
			created_at, updated_at, confirmed_at
		FROM crypto_recharges WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list crypto recharges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*CryptoRecharge
	for rows.Next() {
		r, err := scanCryptoRecharge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanCryptoRecharge(row scannable) (*CryptoRecharge, error) {
	var r CryptoRecharge
	var amountCOP, amountCrypto, rate, status, asset string
	var txHash, walletAddr, message sql.NullString
	var blockNumber sql.NullInt64
	var createdAt, updatedAt, confirmedAt sql.NullTime

	err := row.Scan(&r.ID, &r.UserID, &amountCOP, &amountCrypto, &asset, &rate, &status,
		&r.Destination, &txHash, &walletAddr, &blockNumber, &message,
		&createdAt, &updatedAt, &confirmedAt)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.Asset = Asset(asset)
	if r.AmountCOP, err = decimal.NewFromString(amountCOP); err != nil {
		return nil, fmt.Errorf("parse amount_cop: %w", err)
	}
	if r.AmountCrypto, err = decimal.NewFromString(amountCrypto); err != nil {
		return nil, fmt.Errorf("parse amount_crypto: %w", err)
	}
	if r.ConversionRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse conversion_rate: %w", err)
	}
	r.TxHash = txHash.String
	r.WalletAddress = walletAddr.String
	r.Message = message.String
	if blockNumber.Valid {
		r.BlockNumber = uint64(blockNumber.Int64)
	}
	if createdAt.Valid {
		r.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		r.UpdatedAt = updatedAt.Time
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		r.ConfirmedAt = &t
	}
	return &r, nil
}
