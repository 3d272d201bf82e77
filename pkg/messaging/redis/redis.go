package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-scheduler/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-scheduler/pkg/messaging"
)

type RedisBroker struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	logger zerolog.Logger
}

type Config struct {
	URL             string
	MaxRetries      int
	RetryBackoff    time.Duration
	PoolSize        int
	MinIdleConns    int
	BreakerFailures int
	BreakerTimeout  time.Duration
}

func NewRedisBroker(ctx context.Context, config Config, logger zerolog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, config, logger), nil
}

// NewWithClient wraps an existing client, sharing it with other Redis users
// such as the rate limiter.
func NewWithClient(client *redis.Client, config Config, logger zerolog.Logger) *RedisBroker {
	logger = logger.With().Str("component", "redis_broker").Logger()
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "redis-broker",
		MaxFailures: config.BreakerFailures,
		Timeout:     config.BreakerTimeout,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", string(from)).
				Str("to", string(to)).
				Msg("circuit breaker state changed")
		},
	})
	return &RedisBroker{client: client, cb: cb, logger: logger}
}

func (b *RedisBroker) Client() *redis.Client {
	return b.client
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, msg messaging.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.cb.Execute(func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan messaging.Message, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan messaging.Message, 100)
	go func() {
		defer func() {
			_ = pubsub.Close()
			close(out)
		}()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg messaging.Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn().Err(err).Str("channel", channel).Msg("dropping malformed message")
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
