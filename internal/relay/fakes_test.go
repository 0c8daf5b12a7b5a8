package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dcastano/lotledger/internal/core/domain"
)

// fakeOutbox is an in-memory port.OutboxRepository.
type fakeOutbox struct {
	mu     sync.Mutex
	events map[int64]*domain.OutboxEvent
	nextID int64
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{events: make(map[int64]*domain.OutboxEvent), nextID: 1}
}

func (f *fakeOutbox) add(eventType, aggregateID string, payload []byte) *domain.OutboxEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := &domain.OutboxEvent{
		ID:          f.nextID,
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Status:      domain.EventPending,
		CreatedAt:   time.Now().Add(time.Duration(f.nextID) * time.Millisecond),
	}
	f.events[ev.ID] = ev
	f.nextID++
	return ev
}

func (f *fakeOutbox) get(id int64) domain.OutboxEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.events[id]
}

func (f *fakeOutbox) FetchEligible(ctx context.Context, limit, maxRetries int) ([]domain.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.OutboxEvent
	for _, ev := range f.events {
		if ev.Status == domain.EventPending ||
			(ev.Status == domain.EventFailed && ev.RetryCount < maxRetries) {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOutbox) GetEvent(ctx context.Context, id int64) (*domain.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	copied := *ev
	return &copied, nil
}

func (f *fakeOutbox) MarkProcessing(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[id].Status = domain.EventProcessing
	return nil
}

func (f *fakeOutbox) MarkCompleted(ctx context.Context, id int64, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := f.events[id]
	ev.Status = domain.EventCompleted
	ev.ProcessedAt = &processedAt
	ev.ErrorMessage = ""
	return nil
}

func (f *fakeOutbox) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := f.events[id]
	ev.Status = domain.EventFailed
	ev.RetryCount++
	ev.ErrorMessage = errMsg
	return nil
}

func (f *fakeOutbox) Reset(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return fmt.Errorf("%w: outbox event %d", domain.ErrNotFound, id)
	}
	if ev.Status != domain.EventFailed && ev.Status != domain.EventCompleted {
		return fmt.Errorf("%w: event %d is %s", domain.ErrEventNotResettable, id, ev.Status)
	}
	ev.Status = domain.EventPending
	ev.ErrorMessage = ""
	ev.ProcessedAt = nil
	return nil
}

func (f *fakeOutbox) Stats(ctx context.Context) (*domain.OutboxStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := &domain.OutboxStats{RecentFailures: []domain.EventSummary{}}
	for _, ev := range f.events {
		switch ev.Status {
		case domain.EventPending:
			stats.Pending++
			if stats.OldestPending == nil || ev.CreatedAt.Before(*stats.OldestPending) {
				created := ev.CreatedAt
				stats.OldestPending = &created
			}
		case domain.EventProcessing:
			stats.Processing++
		case domain.EventCompleted:
			stats.Completed++
		case domain.EventFailed:
			stats.Failed++
			stats.RecentFailures = append(stats.RecentFailures, domain.EventSummary{
				ID:           ev.ID,
				EventType:    ev.EventType,
				AggregateID:  ev.AggregateID,
				ErrorMessage: ev.ErrorMessage,
				RetryCount:   ev.RetryCount,
				CreatedAt:    ev.CreatedAt,
			})
		}
		stats.Total++
	}
	if stats.OldestPending != nil {
		stats.OldestPendingAge = time.Since(*stats.OldestPending)
	}
	return stats, nil
}

// fakeTicketStore is an in-memory port.TicketRepository that can be
// told to fail the next N inserts.
type fakeTicketStore struct {
	mu       sync.Mutex
	docs     map[string]domain.Ticket
	failNext int
	inserts  int
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{docs: make(map[string]domain.Ticket)}
}

var errStoreDown = errors.New("secondary store unavailable")

func (f *fakeTicketStore) Exists(ctx context.Context, saleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[saleID]
	return ok, nil
}

func (f *fakeTicketStore) Insert(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errStoreDown
	}
	if _, ok := f.docs[ticket.SaleID]; ok {
		return nil
	}
	f.docs[ticket.SaleID] = *ticket
	f.inserts++
	return nil
}

func (f *fakeTicketStore) Get(ctx context.Context, saleID string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[saleID]
	if !ok {
		return nil, fmt.Errorf("%w: ticket %s", domain.ErrNotFound, saleID)
	}
	return &doc, nil
}

func (f *fakeTicketStore) List(ctx context.Context, limit, offset int) ([]domain.Ticket, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for _, doc := range f.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, int64(len(out)), nil
}

func (f *fakeTicketStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}
