package domain

import "time"

type MovementType string

const (
	MovementEntry      MovementType = "ENTRY"
	MovementSale       MovementType = "SALE"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementExpiration MovementType = "EXPIRATION"
)

// Movement is an immutable audit record of a batch quantity change.
// Quantity is a signed delta: negative for outflows (SALE, EXPIRATION),
// positive or negative for ADJUSTMENT.
type Movement struct {
	ID          int64
	BatchID     int64
	Type        MovementType
	Quantity    int
	UserID      string
	ReferenceID string
	Note        string
	CreatedAt   time.Time
}

// Identity is the acting user attributed to movements and tickets.
// Authentication lives outside the core; callers supply it.
type Identity struct {
	UserID   string
	Username string
}
