package recharges

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

// NewPostgresStore creates a new PostgreSQL-backed recharge store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the recharges table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS recharges (
			id             VARCHAR(36) PRIMARY KEY,
			student_id     BIGINT NOT NULL,
			amount         NUMERIC(12,2) NOT NULL,
			status         VARCHAR(20) NOT NULL DEFAULT 'PENDIENTE',
			reference      VARCHAR(100),
			transaction_id VARCHAR(100),
			created_at     TIMESTAMPTZ DEFAULT NOW(),
			updated_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_recharges_reference ON recharges(reference) WHERE reference IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_recharges_student ON recharges(student_id);
		CREATE INDEX IF NOT EXISTS idx_recharges_status ON recharges(status);
	`)
	return err
}

// Create inserts a new recharge record.
func (p *PostgresStore) Create(ctx context.Context, r *Recharge) error {
	now := time.Now()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO recharges (id, student_id, amount, status, reference, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3::NUMERIC(12,2), $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
	`, r.ID, r.StudentID, r.Amount.String(), string(r.Status), r.Reference, r.TransactionID, now, now)
	if err != nil {
		return fmt.Errorf("insert recharge: %w", err)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// Get retrieves a recharge by ID.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Recharge, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, student_id, amount, status, reference, transaction_id, created_at, updated_at
		FROM recharges WHERE id = $1
	`, id)

	r, err := scanRecharge(row)
	if err == sql.ErrNoRows {
		return nil, ErrRechargeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recharge: %w", err)
	}
	return r, nil
}

// GetByReference retrieves a recharge by its gateway reference.
func (p *PostgresStore) GetByReference(ctx context.Context, reference string) (*Recharge, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, student_id, amount, status, reference, transaction_id, created_at, updated_at
		FROM recharges WHERE reference = $1
	`, reference)

	r, err := scanRecharge(row)
	if err == sql.ErrNoRows {
		return nil, ErrReferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recharge by reference: %w", err)
	}
	return r, nil
}

// Update modifies a recharge's status and transaction ID, guarded by
// the expected current status so concurrent replicas cannot both win
// the same transition.
func (p *PostgresStore) Update(ctx context.Context, r *Recharge, from Status) error {
	r.UpdatedAt = time.Now()

	result, err := p.db.ExecContext(ctx, `
		UPDATE recharges SET
			status         = $2,
			transaction_id = NULLIF($3, ''),
			updated_at     = $4
		WHERE id = $1 AND status = $5
	`, r.ID, string(r.Status), r.TransactionID, r.UpdatedAt, string(from))
	if err != nil {
		return fmt.Errorf("update recharge: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		var current string
		err := p.db.QueryRowContext(ctx, `SELECT status FROM recharges WHERE id = $1`, r.ID).Scan(&current)
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

// SetReference assigns the reference if none is set yet and returns the
// effective one, so concurrent callers converge on a single reference.
func (p *PostgresStore) SetReference(ctx context.Context, id, reference string) (string, error) {
	_, err := p.db.ExecContext(ctx, `
		UPDATE recharges SET reference = $2, updated_at = NOW()
		WHERE id = $1 AND reference IS NULL
	`, id, reference)
	if err != nil {
		return "", fmt.Errorf("set reference: %w", err)
	}

	var current sql.NullString
	err = p.db.QueryRowContext(ctx, `
		SELECT reference FROM recharges WHERE id = $1
	`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return "", ErrRechargeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read reference: %w", err)
	}
	return current.String, nil
}

// ListByStudent returns a student's recharges, newest first.
func (p *PostgresStore) ListByStudent(ctx context.Context, studentID int64, limit int) ([]*Recharge, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, student_id, amount, status, reference, transaction_id, created_at, updated_at
		FROM recharges WHERE student_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recharges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Recharge
	for rows.Next() {
		r, err := scanRecharge(rows)
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

func scanRecharge(row scannable) (*Recharge, error) {
	var r Recharge
	var amount, status string
	var reference, transactionID sql.NullString
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&r.ID, &r.StudentID, &amount, &status, &reference, &transactionID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	r.Reference = reference.String
	r.TransactionID = transactionID.String
	if createdAt.Valid {
		r.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		r.UpdatedAt = updatedAt.Time
	}
	return &r, nil
}
