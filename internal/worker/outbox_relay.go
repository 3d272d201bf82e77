package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
	"github.com/jwalitptl/clinic-scheduler/pkg/messaging"
	"github.com/jwalitptl/clinic-scheduler/pkg/metrics"
)

const maxRetryDelay = time.Hour

type RelayConfig struct {
	Channel      string
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is how often one poll tries to publish an event before
	// scheduling a later retry.
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxAttempts is how many polls may fail before the event is marked
	// failed for good.
	MaxAttempts int
}

// OutboxRelay publishes committed outbox events to the broker. Events are
// claimed with row locks, so several relays can run side by side.
type OutboxRelay struct {
	repo      repository.OutboxRepository
	publisher messaging.Publisher
	config    RelayConfig
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewOutboxRelay(
	repo repository.OutboxRepository,
	publisher messaging.Publisher,
	config RelayConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *OutboxRelay {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 10
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &OutboxRelay{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
		metrics:   m,
		now:       time.Now,
	}
}

// Start polls until ctx is cancelled.
func (r *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.logger.Info().
		Str("channel", r.config.Channel).
		Dur("poll_interval", r.config.PollInterval).
		Msg("starting outbox relay")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("shutting down outbox relay")
			return
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("failed to process outbox batch")
			}
		}
	}
}

// ProcessBatch delivers one batch of due events and reports how many were
// published.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(r.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	published := 0
	err := r.repo.ClaimPending(ctx, r.config.BatchSize, func(events []*model.OutboxEvent, mark repository.OutboxMarker) error {
		for _, event := range events {
			ok, err := r.deliver(ctx, event, mark)
			if err != nil {
				return err
			}
			if ok {
				published++
			}
		}
		return nil
	})
	if err != nil {
		return published, fmt.Errorf("failed to claim outbox events: %w", err)
	}

	if pending, err := r.repo.CountPending(ctx); err == nil {
		r.metrics.OutboxQueueSize.Set(float64(pending))
	}
	return published, nil
}

// deliver publishes one event and records the outcome. The returned error
// is only set when the outcome could not be stored.
func (r *OutboxRelay) deliver(ctx context.Context, event *model.OutboxEvent, mark repository.OutboxMarker) (bool, error) {
	msg := messaging.Message{
		ID:          event.ID,
		Type:        event.EventType,
		BusinessID:  event.BusinessID,
		AggregateID: event.AggregateID,
		OccurredAt:  event.CreatedAt,
		Payload:     event.Payload,
	}
	pubErr := retry(ctx, r.config.RetryAttempts, r.config.RetryDelay, func() error {
		return r.publisher.Publish(ctx, r.config.Channel, msg)
	})

	log := r.logger.With().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Logger()

	if pubErr == nil {
		if err := mark.MarkProcessed(ctx, event.ID); err != nil {
			return false, fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
		}
		r.metrics.OutboxEventsProcessed.Inc()
		log.Debug().Dur("lag", r.now().Sub(event.CreatedAt)).Msg("event published")
		return true, nil
	}

	attempts := event.RetryCount + 1
	if attempts >= r.config.MaxAttempts {
		if err := mark.MarkFailed(ctx, event.ID, pubErr.Error()); err != nil {
			return false, fmt.Errorf("failed to mark event %s failed: %w", event.ID, err)
		}
		r.metrics.OutboxEventsFailed.Inc()
		log.Error().Err(pubErr).Int("attempts", attempts).Msg("giving up on event")
		return false, nil
	}

	retryAt := r.now().Add(backoff(r.config.RetryDelay, event.RetryCount))
	if err := mark.MarkRetry(ctx, event.ID, pubErr.Error(), retryAt); err != nil {
		return false, fmt.Errorf("failed to schedule retry of event %s: %w", event.ID, err)
	}
	r.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	log.Warn().Err(pubErr).Int("attempts", attempts).Time("retry_at", retryAt).Msg("event publish failed")
	return false, nil
}

// backoff doubles base for every earlier failure, capped at an hour.
func backoff(base time.Duration, failures int) time.Duration {
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
