package port

import (
	"context"
	"time"

	"github.com/dcastano/lotledger/internal/core/domain"
)

// OutboxRepository is the relay-side view of the outbox table. Status
// transitions past creation go through these methods only.
type OutboxRepository interface {
	// FetchEligible returns up to limit events that are PENDING, or
	// FAILED with retry_count < maxRetries, oldest first.
	FetchEligible(ctx context.Context, limit, maxRetries int) ([]domain.OutboxEvent, error)

	// GetEvent returns an event by id, nil if it does not exist.
	GetEvent(ctx context.Context, id int64) (*domain.OutboxEvent, error)

	MarkProcessing(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, processedAt time.Time) error

	// MarkFailed sets FAILED, increments retry_count and records the
	// (truncated) error message.
	MarkFailed(ctx context.Context, id int64, errMsg string) error

	// Reset returns a FAILED or COMPLETED event to PENDING, clearing
	// its error and processed_at. Any other status fails with
	// domain.ErrEventNotResettable.
	Reset(ctx context.Context, id int64) error

	Stats(ctx context.Context) (*domain.OutboxStats, error)
}
