package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/dcastano/lotledger/internal/core/domain"
	"github.com/dcastano/lotledger/internal/port"
)

const mysqlDupEntry = 1062

// MySQLAdapter owns the primary store: products, batches, movements
// and the outbox table. It implements port.LedgerRepository; the
// outbox queries live in mysql_outbox.go.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			sku VARCHAR(50) NOT NULL UNIQUE,
			name VARCHAR(200) NOT NULL,
			base_price DECIMAL(10,2) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS product_batches (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			product_id BIGINT NOT NULL,
			batch_code VARCHAR(100) NOT NULL,
			quantity INT NOT NULL,
			cost_per_unit DECIMAL(10,2) NOT NULL,
			expiration_date DATE NULL,
			received_date DATE NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_product_batch (product_id, batch_code),
			CONSTRAINT chk_batch_quantity CHECK (quantity >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_movements (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			batch_id BIGINT NOT NULL,
			movement_type VARCHAR(20) NOT NULL,
			quantity INT NOT NULL,
			user_id VARCHAR(100) NOT NULL,
			reference_id VARCHAR(100) NULL,
			note TEXT NULL,
			created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			KEY idx_movements_batch (batch_id),
			KEY idx_movements_reference (reference_id)
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			aggregate_id VARCHAR(100) NOT NULL,
			payload JSON NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			retry_count INT NOT NULL DEFAULT 0,
			error_message TEXT NULL,
			created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			processed_at TIMESTAMP(6) NULL,
			KEY idx_outbox_aggregate (aggregate_id),
			KEY idx_outbox_status_created (status, created_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// WithinTx runs fn inside one transaction; fn returning an error rolls
// back every ledger and outbox write made through the tx.
func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListMovements(ctx context.Context, batchID int64, limit int) ([]domain.Movement, error) {
	query := `
		SELECT id, batch_id, movement_type, quantity, user_id,
		       COALESCE(reference_id, ''), COALESCE(note, ''), created_at
		FROM inventory_movements`
	args := []any{}
	if batchID > 0 {
		query += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var movements []domain.Movement
	for rows.Next() {
		var mv domain.Movement
		if err := rows.Scan(&mv.ID, &mv.BatchID, &mv.Type, &mv.Quantity,
			&mv.UserID, &mv.ReferenceID, &mv.Note, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func (m *MySQLAdapter) ProductStock(ctx context.Context, productID int64) (int, error) {
	var total int
	err := m.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM product_batches WHERE product_id = ?`,
		productID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query product stock: %w", err)
	}
	return total, nil
}

// mysqlTx implements port.LedgerTx over one *sql.Tx.
type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) ProductForSale(ctx context.Context, productID int64) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, sku, name, base_price, active
		FROM products WHERE id = ? AND active = TRUE`, productID,
	).Scan(&p.ID, &p.SKU, &p.Name, &p.BasePrice, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

// BatchesForAllocation locks the product's non-empty batch rows for
// the rest of the transaction, serializing concurrent allocation for
// the same product. The ORDER BY matches the allocator's FIFO order;
// a stable lock order also keeps concurrent transactions from
// deadlocking against each other.
func (t *mysqlTx) BatchesForAllocation(ctx context.Context, productID int64) ([]domain.Batch, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, product_id, batch_code, quantity, cost_per_unit, expiration_date, received_date
		FROM product_batches
		WHERE product_id = ? AND quantity > 0
		ORDER BY expiration_date IS NULL, expiration_date ASC, received_date ASC, id ASC
		FOR UPDATE`, productID)
	if err != nil {
		return nil, fmt.Errorf("query batches for allocation: %w", err)
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (t *mysqlTx) BatchForUpdate(ctx context.Context, batchID int64) (*domain.Batch, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, product_id, batch_code, quantity, cost_per_unit, expiration_date, received_date
		FROM product_batches WHERE id = ? FOR UPDATE`, batchID)

	var b domain.Batch
	var expiration sql.NullTime
	err := row.Scan(&b.ID, &b.ProductID, &b.BatchCode, &b.Quantity, &b.CostPerUnit, &expiration, &b.ReceivedDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}
	if expiration.Valid {
		b.ExpirationDate = &expiration.Time
	}
	return &b, nil
}

func (t *mysqlTx) ExpiredBatches(ctx context.Context) ([]domain.Batch, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, product_id, batch_code, quantity, cost_per_unit, expiration_date, received_date
		FROM product_batches
		WHERE quantity > 0 AND expiration_date IS NOT NULL AND expiration_date < CURDATE()
		ORDER BY id ASC
		FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("query expired batches: %w", err)
	}
	defer rows.Close()
	return scanBatches(rows)
}

// DecrementBatch keeps the quantity >= 0 guard in the statement even
// though the row is already locked; 0 rows affected means the
// invariant would break.
func (t *mysqlTx) DecrementBatch(ctx context.Context, batchID int64, quantity int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE product_batches SET quantity = quantity - ?
		WHERE id = ? AND quantity >= ?`,
		quantity, batchID, quantity)
	if err != nil {
		return fmt.Errorf("decrement batch: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: batch %d has fewer than %d units",
			domain.ErrInsufficientStock, batchID, quantity)
	}
	return nil
}

func (t *mysqlTx) AdjustBatch(ctx context.Context, batchID int64, delta int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE product_batches SET quantity = quantity + ?
		WHERE id = ? AND quantity + ? >= 0`,
		delta, batchID, delta)
	if err != nil {
		return fmt.Errorf("adjust batch: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: adjustment would leave batch %d negative",
			domain.ErrValidation, batchID)
	}
	return nil
}

func (t *mysqlTx) InsertBatch(ctx context.Context, batch *domain.Batch) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO product_batches (product_id, batch_code, quantity, cost_per_unit, expiration_date, received_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ProductID, batch.BatchCode, batch.Quantity, batch.CostPerUnit,
		batch.ExpirationDate, batch.ReceivedDate)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDupEntry {
			return fmt.Errorf("%w: product %d already has batch %q",
				domain.ErrDuplicateBatch, batch.ProductID, batch.BatchCode)
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("batch insert id: %w", err)
	}
	batch.ID = id
	return nil
}

func (t *mysqlTx) AppendMovement(ctx context.Context, movement *domain.Movement) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (batch_id, movement_type, quantity, user_id, reference_id, note)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`,
		movement.BatchID, movement.Type, movement.Quantity,
		movement.UserID, movement.ReferenceID, movement.Note)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("movement insert id: %w", err)
	}
	movement.ID = id
	return nil
}

func (t *mysqlTx) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events (event_type, aggregate_id, payload, status)
		VALUES (?, ?, ?, ?)`,
		event.EventType, event.AggregateID, []byte(event.Payload), event.Status)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("outbox insert id: %w", err)
	}
	event.ID = id
	return nil
}

func scanBatches(rows *sql.Rows) ([]domain.Batch, error) {
	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		var expiration sql.NullTime
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BatchCode, &b.Quantity,
			&b.CostPerUnit, &expiration, &b.ReceivedDate); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if expiration.Valid {
			b.ExpirationDate = &expiration.Time
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
