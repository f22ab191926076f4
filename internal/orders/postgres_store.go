package orders

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

// NewPostgresStore creates a new PostgreSQL-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the purchases, purchase_items and preorders tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS purchases (
			id         BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL,
			total      NUMERIC(12,2) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_purchases_student ON purchases(student_id);

		CREATE TABLE IF NOT EXISTS purchase_items (
			id          BIGSERIAL PRIMARY KEY,
			purchase_id BIGINT NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
			food_id     BIGINT NOT NULL,
			food_name   VARCHAR(200) NOT NULL DEFAULT '',
			quantity    INTEGER NOT NULL,
			unit_price  NUMERIC(12,2) NOT NULL,
			subtotal    NUMERIC(12,2) NOT NULL,
			calories    INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase ON purchase_items(purchase_id);

		CREATE TABLE IF NOT EXISTS preorders (
			id           BIGSERIAL PRIMARY KEY,
			purchase_id  BIGINT NOT NULL REFERENCES purchases(id),
			student_id   BIGINT NOT NULL,
			total        NUMERIC(12,2) NOT NULL,
			surcharge    NUMERIC(12,2) NOT NULL,
			delivered    BOOLEAN NOT NULL DEFAULT FALSE,
			active       BOOLEAN NOT NULL DEFAULT TRUE,
			delivered_at TIMESTAMPTZ,
			created_at   TIMESTAMPTZ DEFAULT NOW(),
			updated_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_preorders_student ON preorders(student_id);
		CREATE INDEX IF NOT EXISTS idx_preorders_delivered ON preorders(delivered);
	`)
	return err
}

// CreatePurchase inserts the purchase and its items in one transaction.
func (p *PostgresStore) CreatePurchase(ctx context.Context, purchase *Purchase) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now()
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO purchases (student_id, total, created_at)
		VALUES ($1, $2::NUMERIC(12,2), $3)
		RETURNING id
	`, purchase.StudentID, purchase.Total.String(), purchase.CreatedAt).Scan(&purchase.ID)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}

	for _, it := range purchase.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_items (purchase_id, food_id, food_name, quantity, unit_price, subtotal, calories)
			VALUES ($1, $2, $3, $4, $5::NUMERIC(12,2), $6::NUMERIC(12,2), $7)
		`, purchase.ID, it.FoodID, it.FoodName, it.Quantity, it.UnitPrice.String(), it.Subtotal.String(), it.Calories)
		if err != nil {
			return fmt.Errorf("insert purchase item: %w", err)
		}
	}

	return tx.Commit()
}

// GetPurchase retrieves a purchase with its items.
func (p *PostgresStore) GetPurchase(ctx context.Context, id int64) (*Purchase, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, student_id, total, created_at FROM purchases WHERE id = $1
	`, id)

	purchase, err := scanPurchase(row)
	if err == sql.ErrNoRows {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase: %w", err)
	}

	if err := p.loadItems(ctx, purchase); err != nil {
		return nil, err
	}
	return purchase, nil
}

// DeletePurchase removes a purchase and its items (ON DELETE CASCADE).
func (p *PostgresStore) DeletePurchase(ctx context.Context, id int64) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

// ListPurchases returns a student's purchases, newest first.
func (p *PostgresStore) ListPurchases(ctx context.Context, studentID int64, limit int) ([]*Purchase, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, student_id, total, created_at
		FROM purchases WHERE student_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return p.collectPurchases(ctx, rows)
}

// ListAllPurchases returns recent purchases across all students.
func (p *PostgresStore) ListAllPurchases(ctx context.Context, limit int) ([]*Purchase, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, student_id, total, created_at
		FROM purchases
		ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list all purchases: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return p.collectPurchases(ctx, rows)
}

func (p *PostgresStore) collectPurchases(ctx context.Context, rows *sql.Rows) ([]*Purchase, error) {
	var result []*Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, purchase := range result {
		if err := p.loadItems(ctx, purchase); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *PostgresStore) loadItems(ctx context.Context, purchase *Purchase) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT food_id, food_name, quantity, unit_price, subtotal, calories
		FROM purchase_items WHERE purchase_id = $1
		ORDER BY id
	`, purchase.ID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var it Item
		var unitPrice, subtotal string
		if err := rows.Scan(&it.FoodID, &it.FoodName, &it.Quantity, &unitPrice, &subtotal, &it.Calories); err != nil {
			return err
		}
		if it.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return fmt.Errorf("parse unit price: %w", err)
		}
		if it.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return fmt.Errorf("parse subtotal: %w", err)
		}
		purchase.Items = append(purchase.Items, it)
	}
	return rows.Err()
}

// CreatePreOrder inserts a new pre-order.
func (p *PostgresStore) CreatePreOrder(ctx context.Context, po *PreOrder) error {
	now := time.Now()
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO preorders (purchase_id, student_id, total, surcharge, delivered, active, created_at, updated_at)
		VALUES ($1, $2, $3::NUMERIC(12,2), $4::NUMERIC(12,2), $5, $6, $7, $8)
		RETURNING id
	`, po.PurchaseID, po.StudentID, po.Total.String(), po.Surcharge.String(), po.Delivered, po.Active, now, now).Scan(&po.ID)
	if err != nil {
		return fmt.Errorf("insert preorder: %w", err)
	}
	po.CreatedAt = now
	po.UpdatedAt = now
	return nil
}

// GetPreOrder retrieves a pre-order by ID.
func (p *PostgresStore) GetPreOrder(ctx context.Context, id int64) (*PreOrder, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, purchase_id, student_id, total, surcharge, delivered, active, delivered_at, created_at, updated_at
		FROM preorders WHERE id = $1
	`, id)

	po, err := scanPreOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrPreOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preorder: %w", err)
	}
	return po, nil
}

// UpdatePreOrder modifies a pre-order's delivery state.
func (p *PostgresStore) UpdatePreOrder(ctx context.Context, po *PreOrder) error {
	po.UpdatedAt = time.Now()

	var deliveredAt sql.NullTime
	if po.DeliveredAt != nil {
		deliveredAt = sql.NullTime{Time: *po.DeliveredAt, Valid: true}
	}

	result, err := p.db.ExecContext(ctx, `
		UPDATE preorders SET
			delivered    = $2,
			active       = $3,
			delivered_at = $4,
			updated_at   = $5
		WHERE id = $1
	`, po.ID, po.Delivered, po.Active, deliveredAt, po.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update preorder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPreOrderNotFound
	}
	return nil
}

// ListPreOrders returns a student's pre-orders.
func (p *PostgresStore) ListPreOrders(ctx context.Context, studentID int64, onlyPending bool) ([]*PreOrder, error) {
	query := `
		SELECT id, purchase_id, student_id, total, surcharge, delivered, active, delivered_at, created_at, updated_at
		FROM preorders WHERE student_id = $1`
	if onlyPending {
		query += ` AND delivered = FALSE AND active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list preorders: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPreOrders(rows)
}

// ListPendingPreOrders returns every pre-order awaiting delivery.
func (p *PostgresStore) ListPendingPreOrders(ctx context.Context) ([]*PreOrder, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, purchase_id, student_id, total, surcharge, delivered, active, delivered_at, created_at, updated_at
		FROM preorders WHERE delivered = FALSE AND active = TRUE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending preorders: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPreOrders(rows)
}

// DeletePreOrder removes a pre-order record.
func (p *PostgresStore) DeletePreOrder(ctx context.Context, id int64) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM preorders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete preorder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPreOrderNotFound
	}
	return nil
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPurchase(row scannable) (*Purchase, error) {
	var p Purchase
	var total string
	var createdAt sql.NullTime

	if err := row.Scan(&p.ID, &p.StudentID, &total, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if p.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if createdAt.Valid {
		p.CreatedAt = createdAt.Time
	}
	return &p, nil
}

func scanPreOrder(row scannable) (*PreOrder, error) {
	var po PreOrder
	var total, surcharge string
	var deliveredAt, createdAt, updatedAt sql.NullTime

	err := row.Scan(&po.ID, &po.PurchaseID, &po.StudentID, &total, &surcharge,
		&po.Delivered, &po.Active, &deliveredAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if po.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if po.Surcharge, err = decimal.NewFromString(surcharge); err != nil {
		return nil, fmt.Errorf("parse surcharge: %w", err)
	}
	if deliveredAt.Valid {
		po.DeliveredAt = &deliveredAt.Time
	}
	if createdAt.Valid {
		po.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		po.UpdatedAt = updatedAt.Time
	}
	return &po, nil
}

func scanPreOrders(rows *sql.Rows) ([]*PreOrder, error) {
	var result []*PreOrder
	for rows.Next() {
		po, err := scanPreOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, po)
	}
	return result, rows.Err()
}
