package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
)

const outboxColumns = `
	id, business_id, aggregate_type, aggregate_id, event_type, payload, status,
	error_message, retry_count, retry_at, created_at, processed_at, updated_at`

type outboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	return insertOutboxEvent(ctx, r.db, event)
}

func insertOutboxEvent(ctx context.Context, q sqlx.ExtContext, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}

	query := `
		INSERT INTO outbox_events (
			id, business_id, aggregate_type, aggregate_id, event_type, payload,
			status, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW(), NOW())`
	_, err := q.ExecContext(ctx, query,
		event.ID,
		event.BusinessID,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
	)
	return mapError("create outbox event", err)
}

// ClaimPending locks due rows with SKIP LOCKED so concurrent relays never
// deliver the same event, and keeps them locked until fn returns.
func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, fn func([]*model.OutboxEvent, repository.OutboxMarker) error) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `SELECT ` + outboxColumns + `
			FROM outbox_events
			WHERE status IN ('pending', 'retry')
			AND (retry_at IS NULL OR retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED`
		var events []*model.OutboxEvent
		if err := tx.SelectContext(ctx, &events, query, limit); err != nil {
			return mapError("claim outbox events", err)
		}
		if len(events) == 0 {
			return nil
		}
		return fn(events, &outboxMarker{tx: tx})
	})
}

func (r *outboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM outbox_events WHERE status IN ('pending', 'retry')`)
	if err != nil {
		return 0, mapError("count pending events", err)
	}
	return n, nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return result.RowsAffected()
}

type outboxMarker struct {
	tx *sqlx.Tx
}

func (m *outboxMarker) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'processed', error_message = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id)
	return mapError("mark event processed", err)
}

func (m *outboxMarker) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'retry', error_message = $2, retry_at = $3,
			retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1`, id, errMsg, retryAt)
	return mapError("mark event retry", err)
}

func (m *outboxMarker) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'failed', error_message = $2,
			retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1`, id, errMsg)
	return mapError("mark event failed", err)
}
