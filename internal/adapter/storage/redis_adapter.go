package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dcastano/lotledger/internal/core/domain"
)

const (
	ticketKeyPrefix = "ticket:"
	ticketIndexKey  = "tickets:by_time"
)

// RedisAdapter is the secondary read store: one JSON document per sale
// keyed by sale id, plus a sorted-set index by sale timestamp for
// listing. It implements port.TicketRepository.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Exists(ctx context.Context, saleID string) (bool, error) {
	n, err := r.client.Exists(ctx, ticketKeyPrefix+saleID).Result()
	if err != nil {
		return false, fmt.Errorf("ticket exists check: %w", err)
	}
	return n > 0, nil
}

// Insert stores the ticket with SETNX so a redelivered event never
// overwrites or duplicates the first successful write.
func (r *RedisAdapter) Insert(ctx context.Context, ticket *domain.Ticket) error {
	doc, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("marshal ticket: %w", err)
	}

	key := ticketKeyPrefix + ticket.SaleID
	set, err := r.client.SetNX(ctx, key, doc, 0).Result()
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if !set {
		return nil
	}

	err = r.client.ZAdd(ctx, ticketIndexKey, redis.Z{
		Score:  float64(ticket.Timestamp.Unix()),
		Member: ticket.SaleID,
	}).Err()
	if err != nil {
		return fmt.Errorf("index ticket: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Get(ctx context.Context, saleID string) (*domain.Ticket, error) {
	doc, err := r.client.Get(ctx, ticketKeyPrefix+saleID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: ticket %s", domain.ErrNotFound, saleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}

	var ticket domain.Ticket
	if err := json.Unmarshal(doc, &ticket); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", saleID, err)
	}
	return &ticket, nil
}

// List returns tickets newest first plus the total count.
func (r *RedisAdapter) List(ctx context.Context, limit, offset int) ([]domain.Ticket, int64, error) {
	total, err := r.client.ZCard(ctx, ticketIndexKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}

	ids, err := r.client.ZRevRange(ctx, ticketIndexKey,
		int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("range ticket index: %w", err)
	}

	tickets := make([]domain.Ticket, 0, len(ids))
	for _, id := range ids {
		ticket, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, 0, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, total, nil
}
