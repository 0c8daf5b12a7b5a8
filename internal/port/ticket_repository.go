package port

import (
	"context"

	"github.com/dcastano/lotledger/internal/core/domain"
)

// TicketRepository is the secondary read store: one denormalized
// document per sale, keyed by sale id.
type TicketRepository interface {
	// Exists reports whether a ticket for the sale id is already stored.
	Exists(ctx context.Context, saleID string) (bool, error)

	// Insert stores a ticket. Inserting an already-present sale id is a
	// no-op, so redelivery is safe.
	Insert(ctx context.Context, ticket *domain.Ticket) error

	// Get returns a ticket, or domain.ErrNotFound if absent (possibly
	// because the relay has not caught up yet).
	Get(ctx context.Context, saleID string) (*domain.Ticket, error)

	// List returns tickets newest first plus the total count.
	List(ctx context.Context, limit, offset int) ([]domain.Ticket, int64, error)
}
