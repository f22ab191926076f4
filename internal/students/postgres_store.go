package students

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

// NewPostgresStore creates a new PostgreSQL-backed student store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the students table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS students (
			id          BIGSERIAL PRIMARY KEY,
			name        VARCHAR(200) NOT NULL,
			email       VARCHAR(200) NOT NULL DEFAULT '',
			birth_date  VARCHAR(10) NOT NULL DEFAULT '',
			guardian    VARCHAR(100) NOT NULL DEFAULT '',
			cedula      VARCHAR(20) NOT NULL UNIQUE,
			balance     NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_students_guardian ON students(guardian);
	`)
	return err
}

// Create inserts a new student record.
func (p *PostgresStore) Create(ctx context.Context, s *Student) error {
	now := time.Now()
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO students (name, email, birth_date, guardian, cedula, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC(12,2), $7, $8)
		RETURNING id
	`, s.Name, s.Email, s.BirthDate, s.Guardian, s.Cedula, s.Balance.String(), now, now).Scan(&s.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateCedula
		}
		return fmt.Errorf("insert student: %w", err)
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// Get retrieves a student by ID.
func (p *PostgresStore) Get(ctx context.Context, id int64) (*Student, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, email, birth_date, guardian, cedula, balance, created_at, updated_at
		FROM students WHERE id = $1
	`, id)

	s, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// GetByCedula retrieves a student by national ID.
func (p *PostgresStore) GetByCedula(ctx context.Context, cedula string) (*Student, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, email, birth_date, guardian, cedula, balance, created_at, updated_at
		FROM students WHERE cedula = $1
	`, cedula)

	s, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student by cedula: %w", err)
	}
	return s, nil
}

// ListByGuardian returns the students linked to a guardian account.
func (p *PostgresStore) ListByGuardian(ctx context.Context, guardian string) ([]*Student, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, birth_date, guardian, cedula, balance, created_at, updated_at
		FROM students WHERE guardian = $1
		ORDER BY name
	`, guardian)
	if err != nil {
		return nil, fmt.Errorf("list by guardian: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanStudents(rows)
}

// List returns up to limit students, most recently enrolled first.
func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Student, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, birth_date, guardian, cedula, balance, created_at, updated_at
		FROM students
		ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanStudents(rows)
}

// Update modifies a student's profile fields. Balance is excluded on
// purpose: it only moves through AddBalance.
func (p *PostgresStore) Update(ctx context.Context, s *Student) error {
	s.UpdatedAt = time.Now()

	result, err := p.db.ExecContext(ctx, `
		UPDATE students SET
			name       = $2,
			email      = $3,
			birth_date = $4,
			guardian   = $5,
			updated_at = $6
		WHERE id = $1
	`, s.ID, s.Name, s.Email, s.BirthDate, s.Guardian, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStudentNotFound
	}
	return nil
}

// AddBalance applies delta to the balance in a single UPDATE so that
// concurrent credits and debits on the same student serialize in the
// database. The CHECK constraint rejects overdrafts.
func (p *PostgresStore) AddBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var raw string
	err := p.db.QueryRowContext(ctx, `
		UPDATE students
		SET balance = balance + $2::NUMERIC(12,2), updated_at = NOW()
		WHERE id = $1
		RETURNING balance
	`, id, delta.String()).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrStudentNotFound
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" {
			return decimal.Zero, ErrInsufficientBalance
		}
		return decimal.Zero, fmt.Errorf("add balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	return balance, nil
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanStudent(row scannable) (*Student, error) {
	var s Student
	var balance string
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.BirthDate, &s.Guardian, &s.Cedula,
		&balance, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if createdAt.Valid {
		s.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		s.UpdatedAt = updatedAt.Time
	}
	return &s, nil
}

func scanStudents(rows *sql.Rows) ([]*Student, error) {
	var result []*Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
