package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository/memory"
	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
	"github.com/jwalitptl/clinic-scheduler/pkg/messaging"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakePublisher struct {
	mu       sync.Mutex
	fail     bool
	channels []string
	messages []messaging.Message
	calls    int
}

func (p *fakePublisher) Publish(_ context.Context, channel string, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, msg)
	return nil
}

func setup(t *testing.T, maxAttempts int) (*memory.Store, *fakePublisher, *OutboxRelay, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	store.SetClock(c.now)

	pub := &fakePublisher{}
	relay := NewOutboxRelay(store.Outbox(), pub, RelayConfig{
		Channel:       "appointments.events",
		BatchSize:     10,
		RetryAttempts: 1,
		RetryDelay:    time.Minute,
		MaxAttempts:   maxAttempts,
	}, zerolog.Nop(), nil)
	relay.now = c.now
	return store, pub, relay, c
}

func enqueue(t *testing.T, store *memory.Store, eventType string, at time.Time) *model.OutboxEvent {
	t.Helper()
	apt := &model.Appointment{
		BusinessID: uuid.New(),
		StaffID:    uuid.New(),
		PatientID:  uuid.New(),
		Status:     scheduling.StatusScheduled,
	}
	apt.ID = uuid.New()
	evt, err := model.NewAppointmentEvent(eventType, apt, uuid.New(), at)
	require.NoError(t, err)
	require.NoError(t, store.Outbox().Create(context.Background(), evt))
	return evt
}

func statusOf(store *memory.Store, id uuid.UUID) *model.OutboxEvent {
	for _, e := range store.Events() {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func TestRelayPublishesInOrder(t *testing.T) {
	store, pub, relay, c := setup(t, 3)
	first := enqueue(t, store, model.EventAppointmentCreated, c.now())
	second := enqueue(t, store, model.EventAppointmentUpdated, c.now().Add(time.Second))

	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.messages, 2)
	assert.Equal(t, first.ID, pub.messages[0].ID)
	assert.Equal(t, "appointment.created", pub.messages[0].Type)
	assert.Equal(t, first.AggregateID, pub.messages[0].AggregateID)
	assert.JSONEq(t, string(first.Payload), string(pub.messages[0].Payload))
	assert.Equal(t, second.ID, pub.messages[1].ID)
	assert.Equal(t, []string{"appointments.events", "appointments.events"}, pub.channels)

	assert.Equal(t, model.OutboxStatusProcessed, statusOf(store, first.ID).Status)
	assert.NotNil(t, statusOf(store, first.ID).ProcessedAt)

	n, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "processed events are not published twice")
}

func TestRelayRetriesWithBackoffThenFails(t *testing.T) {
	store, pub, relay, c := setup(t, 2)
	evt := enqueue(t, store, model.EventAppointmentCreated, c.now())
	pub.fail = true

	_, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	got := statusOf(store, evt.ID)
	assert.Equal(t, model.OutboxStatusRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.RetryAt)
	assert.Equal(t, c.now().Add(time.Minute), *got.RetryAt)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "broker unavailable", *got.ErrorMessage)

	_, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls, "not retried before retry_at")

	c.advance(time.Minute)
	_, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pub.calls)
	assert.Equal(t, model.OutboxStatusFailed, statusOf(store, evt.ID).Status)

	c.advance(time.Hour)
	_, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pub.calls, "failed events stay failed")
}

func TestRelayRecoversAfterRetry(t *testing.T) {
	store, pub, relay, c := setup(t, 5)
	evt := enqueue(t, store, model.EventAppointmentCreated, c.now())

	pub.fail = true
	_, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)

	pub.fail = false
	c.advance(2 * time.Minute)
	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got := statusOf(store, evt.ID)
	assert.Equal(t, model.OutboxStatusProcessed, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{3, 8 * time.Minute},
		{10, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(time.Minute, tt.failures), "failures=%d", tt.failures)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, 3, time.Hour, func() error {
		calls++
		cancel()
		return errors.New("nope")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestOutboxCleanup(t *testing.T) {
	store, _, relay, c := setup(t, 3)
	old := enqueue(t, store, model.EventAppointmentCreated, c.now())
	_, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)

	c.advance(48 * time.Hour)
	pending := enqueue(t, store, model.EventAppointmentUpdated, c.now())

	cleanup := NewOutboxCleanupWorker(store.Outbox(), 24*time.Hour, time.Hour, zerolog.Nop())
	cleanup.now = c.now
	rows, err := cleanup.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Nil(t, statusOf(store, old.ID))
	assert.NotNil(t, statusOf(store, pending.ID))
}
