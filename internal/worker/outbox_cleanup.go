package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-scheduler/internal/repository"
)

// OutboxCleanupWorker deletes published events once they are older than
// the retention period.
type OutboxCleanupWorker struct {
	repo      repository.OutboxRepository
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retention, interval time.Duration, logger zerolog.Logger) *OutboxCleanupWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &OutboxCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    logger.With().Str("component", "outbox_cleanup").Logger(),
		now:       time.Now,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	if w.retention <= 0 {
		w.logger.Info().Msg("outbox retention disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("outbox cleanup failed")
			}
		}
	}
}

func (w *OutboxCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.retention)

	rows, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up outbox events: %w", err)
	}
	if rows > 0 {
		w.logger.Info().Int64("rows", rows).Time("cutoff", cutoff).Msg("cleaned up published outbox events")
	}
	return rows, nil
}
