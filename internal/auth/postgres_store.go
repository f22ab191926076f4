package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			username      VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(100) NOT NULL,
			role          VARCHAR(20) NOT NULL DEFAULT 'responsable',
			balance       NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Create inserts a new user account.
func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	now := time.Now()
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, role, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC(12,2), $5, $6)
		RETURNING id
	`, u.Username, u.PasswordHash, string(u.Role), u.Balance.String(), now, now).Scan(&u.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// Get retrieves a user by ID.
func (p *PostgresStore) Get(ctx context.Context, id int64) (*User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, balance, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

// GetByUsername retrieves a user by username.
func (p *PostgresStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, balance, created_at, updated_at
		FROM users WHERE username = $1
	`, username)
	return scanUser(row)
}

// AddBalance applies delta atomically, same contract as the student store.
func (p *PostgresStore) AddBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var raw string
	err := p.db.QueryRowContext(ctx, `
		UPDATE users
		SET balance = balance + $2::NUMERIC(12,2), updated_at = NOW()
		WHERE id = $1
		RETURNING balance
	`, id, delta.String()).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" {
			return decimal.Zero, ErrInsufficientFunds
		}
		return decimal.Zero, fmt.Errorf("add balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	return balance, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var role, balance string
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &balance, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.Role = Role(role)
	u.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if createdAt.Valid {
		u.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		u.UpdatedAt = updatedAt.Time
	}
	return &u, nil
}
