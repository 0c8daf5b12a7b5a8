package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dcastano/lotledger/internal/core/domain"
	"github.com/dcastano/lotledger/internal/port"
)

// EventHandler applies one outbox event's effect to its destination.
// Handlers must be idempotent: redelivery of an already-applied event
// returns nil without a second effect.
type EventHandler func(ctx context.Context, event domain.OutboxEvent) error

// Worker is the outbox relay: a single polling loop that drains
// eligible events into their destination store. It is an explicit
// lifecycle handle owned by the composition root; it is also the only
// writer of event status transitions after creation.
type Worker struct {
	outbox   port.OutboxRepository
	handlers map[string]EventHandler
	logger   *zap.Logger

	pollInterval time.Duration
	batchSize    int
	maxRetries   int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewWorker(outbox port.OutboxRepository, logger *zap.Logger, pollInterval time.Duration, batchSize, maxRetries int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Worker{
		outbox:       outbox,
		handlers:     make(map[string]EventHandler),
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxRetries:   maxRetries,
	}
}

// Register binds an event type to its handler. Call before Start.
func (w *Worker) Register(eventType string, handler EventHandler) {
	w.handlers[eventType] = handler
}

// Start launches the polling loop. Calling Start on a running worker
// is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.logger.Warn("relay worker already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.run(ctx)
	w.logger.Info("relay worker started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int("batch_size", w.batchSize),
		zap.Int("max_retries", w.maxRetries),
	)
}

// Stop signals the loop, lets an in-flight cycle finish and joins with
// a bounded timeout.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		w.logger.Info("relay worker stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("relay worker did not stop within %s", timeout)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := w.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("relay cycle failed", zap.Error(err))
			}
		}
	}
}

// RunCycle processes one batch of eligible events and reports how many
// were applied and how many failed. Manual "process now" operations
// call this directly, so manual and scheduled processing share one
// code path.
func (w *Worker) RunCycle(ctx context.Context) (processed, failed int, err error) {
	events, err := w.outbox.FetchEligible(ctx, w.batchSize, w.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch eligible events: %w", err)
	}
	if len(events) == 0 {
		return 0, 0, nil
	}

	w.logger.Debug("processing outbox batch", zap.Int("events", len(events)))

	for _, event := range events {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		if err := w.processEvent(ctx, event); err != nil {
			failed++
			w.logger.Warn("event apply failed",
				zap.Int64("event_id", event.ID),
				zap.String("aggregate_id", event.AggregateID),
				zap.Int("retry_count", event.RetryCount+1),
				zap.Error(err),
			)
		} else {
			processed++
		}
	}
	return processed, failed, nil
}

func (w *Worker) processEvent(ctx context.Context, event domain.OutboxEvent) error {
	if err := w.outbox.MarkProcessing(ctx, event.ID); err != nil {
		return err
	}

	handler, ok := w.handlers[event.EventType]
	if !ok {
		applyErr := fmt.Errorf("%w: %s", domain.ErrUnknownEventType, event.EventType)
		if err := w.outbox.MarkFailed(ctx, event.ID, applyErr.Error()); err != nil {
			return err
		}
		return applyErr
	}

	if applyErr := handler(ctx, event); applyErr != nil {
		if err := w.outbox.MarkFailed(ctx, event.ID, applyErr.Error()); err != nil {
			return err
		}
		return applyErr
	}

	if err := w.outbox.MarkCompleted(ctx, event.ID, time.Now().UTC()); err != nil {
		return err
	}
	w.logger.Info("event applied",
		zap.Int64("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
	)
	return nil
}

// Stats exposes queue depth and failure info for monitoring.
func (w *Worker) Stats(ctx context.Context) (*domain.OutboxStats, error) {
	return w.outbox.Stats(ctx)
}
