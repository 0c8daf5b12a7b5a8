package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dcastano/lotledger/internal/core/domain"
	"github.com/dcastano/lotledger/internal/port"
)

// TicketHandler projects SALE_CREATED events into the secondary ticket
// store. Idempotence is keyed on the aggregate id: if a ticket already
// exists the event counts as applied.
type TicketHandler struct {
	tickets port.TicketRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewTicketHandler(tickets port.TicketRepository, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, logger: logger, now: time.Now}
}

func (h *TicketHandler) Apply(ctx context.Context, event domain.OutboxEvent) error {
	exists, err := h.tickets.Exists(ctx, event.AggregateID)
	if err != nil {
		return fmt.Errorf("ticket lookup: %w", err)
	}
	if exists {
		h.logger.Info("ticket already present, skipping",
			zap.String("sale_id", event.AggregateID),
			zap.Int64("event_id", event.ID),
		)
		return nil
	}

	payload, err := domain.DecodeTicketPayload(event.Payload)
	if err != nil {
		return err
	}

	ticket := &domain.Ticket{
		TicketPayload:    *payload,
		SyncedFromOutbox: true,
		OutboxEventID:    event.ID,
		SyncedAt:         h.now().UTC(),
	}
	if err := h.tickets.Insert(ctx, ticket); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}

	h.logger.Info("ticket created",
		zap.String("sale_id", payload.SaleID),
		zap.Int64("event_id", event.ID),
	)
	return nil
}
