package service

import (
	"fmt"
	"sort"

	"github.com/dcastano/lotledger/internal/core/domain"
)

// Allocate picks lots to satisfy quantity using FIFO: earliest
// expiration first (batches without one last), then earliest received
// date, then lowest id. It consumes greedily from the head, so the
// allocation has the minimal number of lines.
//
// The caller must pass only eligible batches (quantity > 0) and a
// positive quantity; locking is the caller's concern.
func Allocate(batches []domain.Batch, quantity int) ([]domain.Allocation, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("%w: no eligible batches", domain.ErrInsufficientStock)
	}

	available := 0
	for _, b := range batches {
		available += b.Quantity
	}
	if available < quantity {
		return nil, fmt.Errorf("%w: available %d, requested %d",
			domain.ErrInsufficientStock, available, quantity)
	}

	ordered := make([]domain.Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		switch {
		case a.ExpirationDate == nil && b.ExpirationDate == nil:
			// fall through to received date
		case a.ExpirationDate == nil:
			return false
		case b.ExpirationDate == nil:
			return true
		case !a.ExpirationDate.Equal(*b.ExpirationDate):
			return a.ExpirationDate.Before(*b.ExpirationDate)
		}
		if !a.ReceivedDate.Equal(b.ReceivedDate) {
			return a.ReceivedDate.Before(b.ReceivedDate)
		}
		return a.ID < b.ID
	})

	var allocations []domain.Allocation
	remaining := quantity
	for _, b := range ordered {
		if remaining <= 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, domain.Allocation{
			BatchID:     b.ID,
			BatchCode:   b.BatchCode,
			Quantity:    take,
			CostPerUnit: b.CostPerUnit,
		})
		remaining -= take
	}

	return allocations, nil
}
