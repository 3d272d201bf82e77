package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
)

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *event
	r.s.events = append(r.s.events, &cp)
	return nil
}

// ClaimPending serializes claimers on the outbox mutex, which stands in for
// row locks skipped by concurrent relays.
func (r outboxRepo) ClaimPending(ctx context.Context, limit int, fn func([]*model.OutboxEvent, repository.OutboxMarker) error) error {
	r.s.outboxMu.Lock()
	defer r.s.outboxMu.Unlock()

	now := r.s.now()
	r.s.mu.RLock()
	var due []*model.OutboxEvent
	for _, e := range r.s.events {
		if e.Status == model.OutboxStatusPending || (e.Status == model.OutboxStatusRetry && (e.RetryAt == nil || !e.RetryAt.After(now))) {
			cp := *e
			due = append(due, &cp)
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	if len(due) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(due, outboxMarker{r.s})
}

func (r outboxRepo) CountPending(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, e := range r.s.events {
		if e.Status == model.OutboxStatusPending || e.Status == model.OutboxStatusRetry {
			n++
		}
	}
	return n, nil
}

func (r outboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.events[:0]
	var removed int64
	for _, e := range r.s.events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.s.events = kept
	return removed, nil
}

type outboxMarker struct{ s *Store }

func (m outboxMarker) update(id uuid.UUID, fn func(e *model.OutboxEvent)) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, e := range m.s.events {
		if e.ID == id {
			fn(e)
			e.UpdatedAt = m.s.now()
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m outboxMarker) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(e *model.OutboxEvent) {
		now := m.s.now()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		e.ErrorMessage = nil
	})
}

func (m outboxMarker) MarkRetry(_ context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return m.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusRetry
		e.RetryCount++
		e.RetryAt = &retryAt
		e.ErrorMessage = &errMsg
	})
}

func (m outboxMarker) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	return m.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.RetryCount++
		e.ErrorMessage = &errMsg
	})
}
