package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcastano/lotledger/internal/core/domain"
	"github.com/dcastano/lotledger/internal/port"
)

const DefaultTaxRate = 0.16

// SaleService coordinates a sale: validation, FIFO allocation, batch
// decrement, movement audit and outbox enqueue, all inside one ledger
// transaction. It never touches the secondary store.
type SaleService struct {
	ledger  port.LedgerRepository
	logger  *zap.Logger
	taxRate float64

	now       func() time.Time
	newSaleID func(time.Time) string
}

func NewSaleService(ledger port.LedgerRepository, logger *zap.Logger, taxRate float64) *SaleService {
	if taxRate <= 0 {
		taxRate = DefaultTaxRate
	}
	return &SaleService{
		ledger:    ledger,
		logger:    logger,
		taxRate:   taxRate,
		now:       time.Now,
		newSaleID: newSaleID,
	}
}

// newSaleID builds an id unique enough to key the secondary store:
// a time component plus a random suffix.
func newSaleID(ts time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("SALE-%s-%s", ts.UTC().Format("20060102-150405"), suffix)
}

type saleLine struct {
	product     *domain.Product
	quantity    int
	unitPrice   float64
	subtotal    float64
	allocations []domain.Allocation
}

// CreateSale commits a sale or leaves no trace. On success the returned
// receipt reflects ledger truth immediately; the ticket document shows
// up in the secondary store once the relay runs.
func (s *SaleService) CreateSale(ctx context.Context, user domain.Identity, req domain.CreateSaleRequest) (*domain.SaleReceipt, error) {
	if err := validateSaleRequest(req); err != nil {
		return nil, err
	}

	taxRate := s.taxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "cash"
	}

	var receipt *domain.SaleReceipt

	err := s.ledger.WithinTx(ctx, func(tx port.LedgerTx) error {
		lines := make([]saleLine, 0, len(req.Items))
		total := 0.0

		for _, item := range req.Items {
			product, err := tx.ProductForSale(ctx, item.ProductID)
			if err != nil {
				return fmt.Errorf("resolve product %d: %w", item.ProductID, err)
			}
			if product == nil {
				return fmt.Errorf("%w: product %d does not exist or is inactive",
					domain.ErrNotFound, item.ProductID)
			}

			batches, err := tx.BatchesForAllocation(ctx, item.ProductID)
			if err != nil {
				return fmt.Errorf("fetch batches for product %d: %w", item.ProductID, err)
			}
			allocations, err := Allocate(batches, item.Quantity)
			if err != nil {
				return fmt.Errorf("allocate product %d: %w", item.ProductID, err)
			}

			unitPrice := product.BasePrice
			if item.UnitPrice > 0 {
				unitPrice = item.UnitPrice
			}
			subtotal := unitPrice * float64(item.Quantity)
			total += subtotal

			lines = append(lines, saleLine{
				product:     product,
				quantity:    item.Quantity,
				unitPrice:   unitPrice,
				subtotal:    subtotal,
				allocations: allocations,
			})
		}

		tax := total * taxRate
		grandTotal := total + tax

		now := s.now()
		saleID := s.newSaleID(now)

		for _, line := range lines {
			for _, alloc := range line.allocations {
				if err := tx.DecrementBatch(ctx, alloc.BatchID, alloc.Quantity); err != nil {
					return fmt.Errorf("decrement batch %d: %w", alloc.BatchID, err)
				}
				movement := &domain.Movement{
					BatchID:     alloc.BatchID,
					Type:        domain.MovementSale,
					Quantity:    -alloc.Quantity,
					UserID:      user.UserID,
					ReferenceID: saleID,
					Note:        fmt.Sprintf("sale %s", saleID),
				}
				if err := tx.AppendMovement(ctx, movement); err != nil {
					return fmt.Errorf("append movement for batch %d: %w", alloc.BatchID, err)
				}
			}
		}

		// Rounding happens only here, at payload construction.
		payload := domain.TicketPayload{
			SaleID:         saleID,
			CashierID:      user.UserID,
			CashierName:    user.Username,
			Items:          make([]domain.TicketLine, 0, len(lines)),
			Total:          round2(total),
			Tax:            round2(tax),
			GrandTotal:     round2(grandTotal),
			PaymentMethod:  paymentMethod,
			PaymentDetails: req.PaymentDetails,
			Status:         "completed",
			Timestamp:      now.UTC(),
		}
		for _, line := range lines {
			payload.Items = append(payload.Items, domain.TicketLine{
				ProductID:   line.product.ID,
				ProductName: line.product.Name,
				SKU:         line.product.SKU,
				Quantity:    line.quantity,
				UnitPrice:   line.unitPrice,
				Subtotal:    round2(line.subtotal),
			})
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal ticket payload: %w", err)
		}

		event := &domain.OutboxEvent{
			EventType:   domain.EventTypeSaleCreated,
			AggregateID: saleID,
			Payload:     raw,
			Status:      domain.EventPending,
		}
		if err := tx.InsertOutboxEvent(ctx, event); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		receipt = &domain.SaleReceipt{
			SaleID:        saleID,
			ItemsCount:    len(lines),
			Total:         payload.Total,
			Tax:           payload.Tax,
			GrandTotal:    payload.GrandTotal,
			PaymentMethod: paymentMethod,
			OutboxEventID: event.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale committed",
		zap.String("sale_id", receipt.SaleID),
		zap.Int("items", receipt.ItemsCount),
		zap.Float64("grand_total", receipt.GrandTotal),
		zap.String("cashier", user.Username),
		zap.Int64("outbox_event_id", receipt.OutboxEventID),
	)
	return receipt, nil
}

func validateSaleRequest(req domain.CreateSaleRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: sale needs at least one item", domain.ErrValidation)
	}
	for i, item := range req.Items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item %d missing product_id", domain.ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be greater than zero", domain.ErrValidation, i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d unit_price cannot be negative", domain.ErrValidation, i)
		}
	}
	if req.PaymentMethod != "" && !domain.PaymentMethods[req.PaymentMethod] {
		return fmt.Errorf("%w: unsupported payment method %q", domain.ErrValidation, req.PaymentMethod)
	}
	if req.TaxRate != nil && (*req.TaxRate < 0 || *req.TaxRate > 1) {
		return fmt.Errorf("%w: tax_rate must be between 0 and 1", domain.ErrValidation)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
