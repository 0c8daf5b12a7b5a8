package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventStatus string

const (
	EventPending    EventStatus = "PENDING"
	EventProcessing EventStatus = "PROCESSING"
	EventCompleted  EventStatus = "COMPLETED"
	EventFailed     EventStatus = "FAILED"
)

const EventTypeSaleCreated = "SALE_CREATED"

// OutboxEvent is a row in the outbox table, created atomically with the
// ledger mutation it describes. After creation, only the relay worker
// (or an explicit operator reset) changes its status.
type OutboxEvent struct {
	ID           int64
	EventType    string
	AggregateID  string
	Payload      json.RawMessage
	Status       EventStatus
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// TicketLine is one sold line item inside a ticket payload.
type TicketLine struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	SKU         string  `json:"sku"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

// TicketPayload is the SALE_CREATED event payload: everything the
// secondary store needs to materialize a sale ticket. Monetary fields
// are rounded to 2 decimals at construction time.
type TicketPayload struct {
	SaleID         string         `json:"sale_id"`
	CashierID      string         `json:"cashier_id"`
	CashierName    string         `json:"cashier_name"`
	Items          []TicketLine   `json:"items"`
	Total          float64        `json:"total"`
	Tax            float64        `json:"tax"`
	GrandTotal     float64        `json:"grand_total"`
	PaymentMethod  string         `json:"payment_method"`
	PaymentDetails map[string]any `json:"payment_details,omitempty"`
	Status         string         `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Validate checks the payload before the relay applies it, so a
// malformed event fails loudly instead of producing a broken document.
func (p *TicketPayload) Validate() error {
	if p.SaleID == "" {
		return fmt.Errorf("%w: ticket payload missing sale_id", ErrValidation)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: ticket payload has no items", ErrValidation)
	}
	for i, line := range p.Items {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: ticket line %d has non-positive quantity", ErrValidation, i)
		}
	}
	return nil
}

// DecodeTicketPayload parses and validates a SALE_CREATED payload.
func DecodeTicketPayload(raw json.RawMessage) (*TicketPayload, error) {
	var p TicketPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode ticket payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ticket is the denormalized document stored in the secondary store,
// keyed by sale id: the payload plus relay metadata.
type Ticket struct {
	TicketPayload
	SyncedFromOutbox bool      `json:"synced_from_outbox"`
	OutboxEventID    int64     `json:"outbox_event_id"`
	SyncedAt         time.Time `json:"synced_at"`
}

// EventSummary is a compact view of a failed event for stats reporting.
type EventSummary struct {
	ID           int64     `json:"id"`
	EventType    string    `json:"event_type"`
	AggregateID  string    `json:"aggregate_id"`
	ErrorMessage string    `json:"error_message"`
	RetryCount   int       `json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// OutboxStats is the operational view of the outbox queue.
type OutboxStats struct {
	Pending          int            `json:"pending"`
	Processing       int            `json:"processing"`
	Completed        int            `json:"completed"`
	Failed           int            `json:"failed"`
	Total            int            `json:"total"`
	OldestPending    *time.Time     `json:"oldest_pending,omitempty"`
	OldestPendingAge time.Duration  `json:"oldest_pending_age,omitempty"`
	RecentFailures   []EventSummary `json:"recent_failures"`
}
