package domain

import "time"

// Product is a catalog entry. The catalog itself is managed elsewhere;
// the ledger only needs the fields that drive pricing and eligibility.
type Product struct {
	ID        int64
	SKU       string
	Name      string
	BasePrice float64
	Active    bool
}

// Batch is a received lot of a product. Quantity never goes below zero;
// it is mutated only inside a ledger transaction holding the row lock.
type Batch struct {
	ID             int64
	ProductID      int64
	BatchCode      string
	Quantity       int
	CostPerUnit    float64
	ExpirationDate *time.Time
	ReceivedDate   time.Time
	CreatedAt      time.Time
}

// Expired reports whether the batch is past its expiration date.
// Batches without an expiration date never expire.
func (b *Batch) Expired(asOf time.Time) bool {
	if b.ExpirationDate == nil {
		return false
	}
	return b.ExpirationDate.Before(asOf)
}

// Allocation is one line of a FIFO allocation: take Quantity units
// from the given batch.
type Allocation struct {
	BatchID     int64
	BatchCode   string
	Quantity    int
	CostPerUnit float64
}
