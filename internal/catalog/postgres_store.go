package catalog

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

// NewPostgresStore creates a new PostgreSQL-backed catalog store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the foods and blocked_foods tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS foods (
			id         BIGSERIAL PRIMARY KEY,
			name       VARCHAR(200) NOT NULL,
			price      NUMERIC(12,2) NOT NULL CHECK (price > 0),
			stock      INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
			calories   INTEGER NOT NULL DEFAULT 0,
			image      TEXT NOT NULL DEFAULT '',
			category   VARCHAR(100) NOT NULL,
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_foods_category ON foods(category);

		CREATE TABLE IF NOT EXISTS blocked_foods (
			student_id BIGINT NOT NULL,
			food_id    BIGINT NOT NULL,
			blocked_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (student_id, food_id)
		);
	`)
	return err
}

func (p *PostgresStore) CreateFood(ctx context.Context, f *Food) error {
	now := time.Now()
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO foods (name, price, stock, calories, image, category, active, created_at, updated_at)
		VALUES ($1, $2::NUMERIC(12,2), $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, f.Name, f.Price.String(), f.Stock, f.Calories, f.Image, f.Category, f.Active, now, now).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("insert food: %w", err)
	}
	f.CreatedAt = now
	f.UpdatedAt = now
	return nil
}

func (p *PostgresStore) GetFood(ctx context.Context, id int64) (*Food, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, calories, image, category, active, created_at, updated_at
		FROM foods WHERE id = $1
	`, id)

	f, err := scanFood(row)
	if err == sql.ErrNoRows {
		return nil, ErrFoodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get food: %w", err)
	}
	return f, nil
}

func (p *PostgresStore) ListFoods(ctx context.Context, onlyActive bool) ([]*Food, error) {
	query := `
		SELECT id, name, price, stock, calories, image, category, active, created_at, updated_at
		FROM foods`
	if onlyActive {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY category, name`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list foods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Food
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (p *PostgresStore) UpdateFood(ctx context.Context, f *Food) error {
	f.UpdatedAt = time.Now()

	result, err := p.db.ExecContext(ctx, `
		UPDATE foods SET
			name       = $2,
			price      = $3::NUMERIC(12,2),
			calories   = $4,
			image      = $5,
			category   = $6,
			active     = $7,
			updated_at = $8
		WHERE id = $1
	`, f.ID, f.Name, f.Price.String(), f.Calories, f.Image, f.Category, f.Active, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update food: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFoodNotFound
	}
	return nil
}

// AdjustStock applies delta in a single UPDATE so concurrent sales
// serialize in the database. The CHECK constraint rejects oversells.
func (p *PostgresStore) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	var stock int
	err := p.db.QueryRowContext(ctx, `
		UPDATE foods
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`, id, delta).Scan(&stock)
	if err == sql.ErrNoRows {
		return 0, ErrFoodNotFound
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" {
			return 0, ErrInsufficientStock
		}
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	return stock, nil
}

func (p *PostgresStore) CreateBlock(ctx context.Context, b *Block) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO blocked_foods (student_id, food_id, blocked_at)
		VALUES ($1, $2, $3)
	`, b.StudentID, b.FoodID, b.BlockedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrAlreadyBlocked
		}
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteBlock(ctx context.Context, studentID, foodID int64) error {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM blocked_foods WHERE student_id = $1 AND food_id = $2
	`, studentID, foodID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (p *PostgresStore) ListBlocks(ctx context.Context, studentID int64) ([]*Block, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT student_id, food_id, blocked_at
		FROM blocked_foods WHERE student_id = $1
		ORDER BY blocked_at DESC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.StudentID, &b.FoodID, &b.BlockedAt); err != nil {
			return nil, err
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

func (p *PostgresStore) IsBlocked(ctx context.Context, studentID, foodID int64) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM blocked_foods WHERE student_id = $1 AND food_id = $2)
	`, studentID, foodID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return exists, nil
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanFood(row scannable) (*Food, error) {
	var f Food
	var price string
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&f.ID, &f.Name, &price, &f.Stock, &f.Calories, &f.Image,
		&f.Category, &f.Active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	f.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if createdAt.Valid {
		f.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		f.UpdatedAt = updatedAt.Time
	}
	return &f, nil
}
