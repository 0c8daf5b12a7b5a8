package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dcastano/lotledger/internal/core/domain"
	"github.com/dcastano/lotledger/internal/port"
)

// fakeLedger is an in-memory port.LedgerRepository with real
// transaction semantics: each WithinTx works on a copy of the state
// and commits it only when fn succeeds, so rollback behavior is
// observable. A single mutex serializes transactions, modeling the
// row locks of the real store.
type fakeLedger struct {
	mu             sync.Mutex
	products       map[int64]domain.Product
	batches        map[int64]domain.Batch
	movements      []domain.Movement
	events         []domain.OutboxEvent
	nextBatchID    int64
	nextMovementID int64
	nextEventID    int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		products:       make(map[int64]domain.Product),
		batches:        make(map[int64]domain.Batch),
		nextBatchID:    1,
		nextMovementID: 1,
		nextEventID:    1,
	}
}

func (f *fakeLedger) addProduct(p domain.Product) {
	f.products[p.ID] = p
}

func (f *fakeLedger) addBatch(b domain.Batch) {
	if b.ID >= f.nextBatchID {
		f.nextBatchID = b.ID + 1
	}
	f.batches[b.ID] = b
}

func (f *fakeLedger) WithinTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := &fakeTx{
		products:       f.products,
		batches:        make(map[int64]domain.Batch, len(f.batches)),
		movements:      append([]domain.Movement(nil), f.movements...),
		events:         append([]domain.OutboxEvent(nil), f.events...),
		nextBatchID:    f.nextBatchID,
		nextMovementID: f.nextMovementID,
		nextEventID:    f.nextEventID,
	}
	for id, b := range f.batches {
		tx.batches[id] = b
	}

	if err := fn(tx); err != nil {
		return err
	}

	f.batches = tx.batches
	f.movements = tx.movements
	f.events = tx.events
	f.nextBatchID = tx.nextBatchID
	f.nextMovementID = tx.nextMovementID
	f.nextEventID = tx.nextEventID
	return nil
}

func (f *fakeLedger) ListMovements(ctx context.Context, batchID int64, limit int) ([]domain.Movement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Movement
	for i := len(f.movements) - 1; i >= 0 && len(out) < limit; i-- {
		mv := f.movements[i]
		if batchID > 0 && mv.BatchID != batchID {
			continue
		}
		out = append(out, mv)
	}
	return out, nil
}

func (f *fakeLedger) ProductStock(ctx context.Context, productID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, b := range f.batches {
		if b.ProductID == productID {
			total += b.Quantity
		}
	}
	return total, nil
}

func (f *fakeLedger) batchQuantity(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[id].Quantity
}

func (f *fakeLedger) allMovements() []domain.Movement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Movement(nil), f.movements...)
}

func (f *fakeLedger) allEvents() []domain.OutboxEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OutboxEvent(nil), f.events...)
}

type fakeTx struct {
	products       map[int64]domain.Product
	batches        map[int64]domain.Batch
	movements      []domain.Movement
	events         []domain.OutboxEvent
	nextBatchID    int64
	nextMovementID int64
	nextEventID    int64
}

func (t *fakeTx) ProductForSale(ctx context.Context, productID int64) (*domain.Product, error) {
	p, ok := t.products[productID]
	if !ok || !p.Active {
		return nil, nil
	}
	return &p, nil
}

func (t *fakeTx) BatchesForAllocation(ctx context.Context, productID int64) ([]domain.Batch, error) {
	var out []domain.Batch
	for _, b := range t.batches {
		if b.ProductID == productID && b.Quantity > 0 {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *fakeTx) BatchForUpdate(ctx context.Context, batchID int64) (*domain.Batch, error) {
	b, ok := t.batches[batchID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (t *fakeTx) ExpiredBatches(ctx context.Context) ([]domain.Batch, error) {
	now := time.Now()
	var out []domain.Batch
	for _, b := range t.batches {
		if b.Quantity > 0 && b.Expired(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *fakeTx) DecrementBatch(ctx context.Context, batchID int64, quantity int) error {
	b, ok := t.batches[batchID]
	if !ok || b.Quantity < quantity {
		return fmt.Errorf("%w: batch %d has fewer than %d units",
			domain.ErrInsufficientStock, batchID, quantity)
	}
	b.Quantity -= quantity
	t.batches[batchID] = b
	return nil
}

func (t *fakeTx) AdjustBatch(ctx context.Context, batchID int64, delta int) error {
	b, ok := t.batches[batchID]
	if !ok || b.Quantity+delta < 0 {
		return fmt.Errorf("%w: adjustment would leave batch %d negative",
			domain.ErrValidation, batchID)
	}
	b.Quantity += delta
	t.batches[batchID] = b
	return nil
}

func (t *fakeTx) InsertBatch(ctx context.Context, batch *domain.Batch) error {
	for _, b := range t.batches {
		if b.ProductID == batch.ProductID && b.BatchCode == batch.BatchCode {
			return fmt.Errorf("%w: product %d already has batch %q",
				domain.ErrDuplicateBatch, batch.ProductID, batch.BatchCode)
		}
	}
	batch.ID = t.nextBatchID
	t.nextBatchID++
	t.batches[batch.ID] = *batch
	return nil
}

func (t *fakeTx) AppendMovement(ctx context.Context, movement *domain.Movement) error {
	movement.ID = t.nextMovementID
	t.nextMovementID++
	movement.CreatedAt = time.Now()
	t.movements = append(t.movements, *movement)
	return nil
}

func (t *fakeTx) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	event.ID = t.nextEventID
	t.nextEventID++
	event.CreatedAt = time.Now()
	t.events = append(t.events, *event)
	return nil
}
