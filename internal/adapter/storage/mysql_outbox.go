package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dcastano/lotledger/internal/core/domain"
)

const maxErrorMessageLen = 500

const outboxColumns = `id, event_type, aggregate_id, payload, status, retry_count,
	COALESCE(error_message, ''), created_at, processed_at`

// FetchEligible returns up to limit events the relay should process:
// PENDING, or FAILED while still under the retry limit, oldest first.
func (m *MySQLAdapter) FetchEligible(ctx context.Context, limit, maxRetries int) ([]domain.OutboxEvent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_events
		WHERE status = 'PENDING' OR (status = 'FAILED' AND retry_count < ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("query eligible events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		ev, err := scanOutboxEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (m *MySQLAdapter) GetEvent(ctx context.Context, id int64) (*domain.OutboxEvent, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_events WHERE id = ?`, id)

	ev, err := scanOutboxEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (m *MySQLAdapter) MarkProcessing(ctx context.Context, id int64) error {
	_, err := m.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = 'PROCESSING' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark event %d processing: %w", id, err)
	}
	return nil
}

func (m *MySQLAdapter) MarkCompleted(ctx context.Context, id int64, processedAt time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'COMPLETED', processed_at = ?, error_message = NULL
		WHERE id = ?`, processedAt, id)
	if err != nil {
		return fmt.Errorf("mark event %d completed: %w", id, err)
	}
	return nil
}

func (m *MySQLAdapter) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > maxErrorMessageLen {
		errMsg = errMsg[:maxErrorMessageLen]
	}
	_, err := m.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'FAILED', retry_count = retry_count + 1, error_message = ?
		WHERE id = ?`, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark event %d failed: %w", id, err)
	}
	return nil
}

// Reset returns a FAILED or COMPLETED event to PENDING so the next
// cycle picks it up again. The retry counter is kept: a PENDING event
// is eligible regardless of how many times it failed before.
func (m *MySQLAdapter) Reset(ctx context.Context, id int64) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'PENDING', error_message = NULL, processed_at = NULL
		WHERE id = ? AND status IN ('FAILED', 'COMPLETED')`, id)
	if err != nil {
		return fmt.Errorf("reset event %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		ev, err := m.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if ev == nil {
			return fmt.Errorf("%w: outbox event %d", domain.ErrNotFound, id)
		}
		return fmt.Errorf("%w: event %d is %s", domain.ErrEventNotResettable, id, ev.Status)
	}
	return nil
}

func (m *MySQLAdapter) Stats(ctx context.Context) (*domain.OutboxStats, error) {
	stats := &domain.OutboxStats{RecentFailures: []domain.EventSummary{}}

	rows, err := m.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM outbox_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		switch domain.EventStatus(status) {
		case domain.EventPending:
			stats.Pending = count
		case domain.EventProcessing:
			stats.Processing = count
		case domain.EventCompleted:
			stats.Completed = count
		case domain.EventFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var oldest sql.NullTime
	err = m.db.QueryRowContext(ctx, `
		SELECT MIN(created_at) FROM outbox_events WHERE status = 'PENDING'`,
	).Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("query oldest pending: %w", err)
	}
	if oldest.Valid {
		stats.OldestPending = &oldest.Time
		stats.OldestPendingAge = time.Since(oldest.Time)
	}

	failRows, err := m.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, COALESCE(error_message, ''), retry_count, created_at
		FROM outbox_events
		WHERE status = 'FAILED' AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 10`, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer failRows.Close()
	for failRows.Next() {
		var s domain.EventSummary
		if err := failRows.Scan(&s.ID, &s.EventType, &s.AggregateID,
			&s.ErrorMessage, &s.RetryCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failure summary: %w", err)
		}
		stats.RecentFailures = append(stats.RecentFailures, s)
	}
	return stats, failRows.Err()
}

func scanOutboxEvent(scan func(...any) error) (*domain.OutboxEvent, error) {
	var ev domain.OutboxEvent
	var payload []byte
	var processed sql.NullTime
	err := scan(&ev.ID, &ev.EventType, &ev.AggregateID, &payload, &ev.Status,
		&ev.RetryCount, &ev.ErrorMessage, &ev.CreatedAt, &processed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan outbox event: %w", err)
	}
	ev.Payload = payload
	if processed.Valid {
		ev.ProcessedAt = &processed.Time
	}
	return &ev, nil
}
