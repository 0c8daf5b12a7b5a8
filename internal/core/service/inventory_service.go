package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dcastano/lotledger/internal/core/domain"
	"github.com/dcastano/lotledger/internal/port"
)

// EntryRequest describes a received lot.
type EntryRequest struct {
	ProductID      int64      `json:"product_id"`
	BatchCode      string     `json:"batch_code"`
	Quantity       int        `json:"quantity"`
	CostPerUnit    float64    `json:"cost_per_unit"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	ReceivedDate   *time.Time `json:"received_date,omitempty"`
	Note           string     `json:"note,omitempty"`
}

// AdjustmentRequest is a signed correction against one batch.
type AdjustmentRequest struct {
	BatchID int64  `json:"batch_id"`
	Delta   int    `json:"delta"`
	Note    string `json:"note,omitempty"`
}

// InventoryService handles the non-sale ledger operations: stock
// entries, adjustments and the expiration sweep. Each writes its audit
// movement in the same transaction as the quantity change.
type InventoryService struct {
	ledger port.LedgerRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewInventoryService(ledger port.LedgerRepository, logger *zap.Logger) *InventoryService {
	return &InventoryService{ledger: ledger, logger: logger, now: time.Now}
}

// CreateEntry registers a received batch plus its ENTRY movement.
func (s *InventoryService) CreateEntry(ctx context.Context, user domain.Identity, req EntryRequest) (*domain.Batch, error) {
	if req.ProductID <= 0 {
		return nil, fmt.Errorf("%w: entry missing product_id", domain.ErrValidation)
	}
	if req.BatchCode == "" {
		return nil, fmt.Errorf("%w: entry missing batch_code", domain.ErrValidation)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: entry quantity must be greater than zero", domain.ErrValidation)
	}
	if req.CostPerUnit <= 0 {
		return nil, fmt.Errorf("%w: entry cost_per_unit must be greater than zero", domain.ErrValidation)
	}

	received := s.now()
	if req.ReceivedDate != nil {
		received = *req.ReceivedDate
	}

	batch := &domain.Batch{
		ProductID:      req.ProductID,
		BatchCode:      req.BatchCode,
		Quantity:       req.Quantity,
		CostPerUnit:    req.CostPerUnit,
		ExpirationDate: req.ExpirationDate,
		ReceivedDate:   received,
	}

	err := s.ledger.WithinTx(ctx, func(tx port.LedgerTx) error {
		product, err := tx.ProductForSale(ctx, req.ProductID)
		if err != nil {
			return fmt.Errorf("resolve product %d: %w", req.ProductID, err)
		}
		if product == nil {
			return fmt.Errorf("%w: product %d does not exist or is inactive",
				domain.ErrNotFound, req.ProductID)
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		movement := &domain.Movement{
			BatchID:  batch.ID,
			Type:     domain.MovementEntry,
			Quantity: req.Quantity,
			UserID:   user.UserID,
			Note:     req.Note,
		}
		if err := tx.AppendMovement(ctx, movement); err != nil {
			return fmt.Errorf("append entry movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock entry registered",
		zap.Int64("batch_id", batch.ID),
		zap.String("batch_code", batch.BatchCode),
		zap.Int("quantity", batch.Quantity),
		zap.String("user", user.Username),
	)
	return batch, nil
}

// CreateAdjustment applies a signed delta to a batch; the resulting
// quantity must stay non-negative.
func (s *InventoryService) CreateAdjustment(ctx context.Context, user domain.Identity, req AdjustmentRequest) error {
	if req.BatchID <= 0 {
		return fmt.Errorf("%w: adjustment missing batch_id", domain.ErrValidation)
	}
	if req.Delta == 0 {
		return fmt.Errorf("%w: adjustment delta cannot be zero", domain.ErrValidation)
	}

	err := s.ledger.WithinTx(ctx, func(tx port.LedgerTx) error {
		batch, err := tx.BatchForUpdate(ctx, req.BatchID)
		if err != nil {
			return fmt.Errorf("lock batch %d: %w", req.BatchID, err)
		}
		if batch == nil {
			return fmt.Errorf("%w: batch %d does not exist", domain.ErrNotFound, req.BatchID)
		}
		if batch.Quantity+req.Delta < 0 {
			return fmt.Errorf("%w: adjustment would leave batch %d at %d",
				domain.ErrValidation, req.BatchID, batch.Quantity+req.Delta)
		}
		if err := tx.AdjustBatch(ctx, req.BatchID, req.Delta); err != nil {
			return fmt.Errorf("adjust batch %d: %w", req.BatchID, err)
		}
		movement := &domain.Movement{
			BatchID:  req.BatchID,
			Type:     domain.MovementAdjustment,
			Quantity: req.Delta,
			UserID:   user.UserID,
			Note:     req.Note,
		}
		if err := tx.AppendMovement(ctx, movement); err != nil {
			return fmt.Errorf("append adjustment movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("stock adjusted",
		zap.Int64("batch_id", req.BatchID),
		zap.Int("delta", req.Delta),
		zap.String("user", user.Username),
	)
	return nil
}

// SweepExpired zeroes every expired batch that still has stock,
// writing an EXPIRATION movement per batch. Returns the number of
// batches swept.
func (s *InventoryService) SweepExpired(ctx context.Context, user domain.Identity) (int, error) {
	swept := 0
	err := s.ledger.WithinTx(ctx, func(tx port.LedgerTx) error {
		batches, err := tx.ExpiredBatches(ctx)
		if err != nil {
			return fmt.Errorf("fetch expired batches: %w", err)
		}
		for _, batch := range batches {
			if err := tx.DecrementBatch(ctx, batch.ID, batch.Quantity); err != nil {
				return fmt.Errorf("zero expired batch %d: %w", batch.ID, err)
			}
			movement := &domain.Movement{
				BatchID:  batch.ID,
				Type:     domain.MovementExpiration,
				Quantity: -batch.Quantity,
				UserID:   user.UserID,
				Note:     fmt.Sprintf("expired %s", batch.BatchCode),
			}
			if err := tx.AppendMovement(ctx, movement); err != nil {
				return fmt.Errorf("append expiration movement for batch %d: %w", batch.ID, err)
			}
			swept++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if swept > 0 {
		s.logger.Info("expired batches swept", zap.Int("count", swept), zap.String("user", user.Username))
	}
	return swept, nil
}

// ListMovements returns the audit trail, newest first.
func (s *InventoryService) ListMovements(ctx context.Context, batchID int64, limit int) ([]domain.Movement, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.ledger.ListMovements(ctx, batchID, limit)
}

// ProductStock returns the total available quantity for a product.
func (s *InventoryService) ProductStock(ctx context.Context, productID int64) (int, error) {
	return s.ledger.ProductStock(ctx, productID)
}
