package port

import (
	"context"

	"github.com/dcastano/lotledger/internal/core/domain"
)

// LedgerTx is the set of ledger operations available inside one
// transaction. Batch rows returned by BatchesForAllocation are locked
// until the transaction ends, serializing concurrent allocation
// against the same product.
type LedgerTx interface {
	// ProductForSale returns the product if it exists and is active,
	// nil otherwise.
	ProductForSale(ctx context.Context, productID int64) (*domain.Product, error)

	// BatchesForAllocation returns batches with quantity > 0 for the
	// product, locked, in FIFO order: expiration ascending with
	// unbounded batches last, then received date, then id.
	BatchesForAllocation(ctx context.Context, productID int64) ([]domain.Batch, error)

	// BatchForUpdate returns a single batch locked for the transaction,
	// nil if it does not exist.
	BatchForUpdate(ctx context.Context, batchID int64) (*domain.Batch, error)

	// ExpiredBatches returns batches with quantity > 0 whose expiration
	// date is strictly in the past, locked.
	ExpiredBatches(ctx context.Context) ([]domain.Batch, error)

	// DecrementBatch subtracts quantity from a batch, failing if the
	// result would go negative.
	DecrementBatch(ctx context.Context, batchID int64, quantity int) error

	// AdjustBatch applies a signed delta to a batch, failing if the
	// result would go negative.
	AdjustBatch(ctx context.Context, batchID int64, delta int) error

	// InsertBatch creates a new batch and fills in its id. A duplicate
	// (product, batch code) pair fails with domain.ErrDuplicateBatch.
	InsertBatch(ctx context.Context, batch *domain.Batch) error

	// AppendMovement records an audit movement.
	AppendMovement(ctx context.Context, movement *domain.Movement) error

	// InsertOutboxEvent creates an outbox event in the same transaction
	// and fills in its id.
	InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error
}

// LedgerRepository owns the primary store. WithinTx runs fn inside one
// transaction: fn returning an error rolls everything back, otherwise
// the transaction commits.
type LedgerRepository interface {
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// ListMovements returns movements newest first, optionally filtered
	// by batch id (0 means all batches).
	ListMovements(ctx context.Context, batchID int64, limit int) ([]domain.Movement, error)

	// ProductStock returns the summed quantity across a product's batches.
	ProductStock(ctx context.Context, productID int64) (int, error)
}
