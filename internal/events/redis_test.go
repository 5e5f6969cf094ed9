package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/lifeledger/internal/cache"
	"github.com/kiranshivaraju/lifeledger/internal/events"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisBus spins up a Redis container and returns a bus on it.
func setupRedisBus(t *testing.T) *events.RedisBus {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	bus := events.NewRedisBus(rc.Client(), events.WithBlock(100*time.Millisecond))
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bus := setupRedisBus(t)
	ctx := context.Background()

	// Published before subscribing: must not be delivered.
	require.NoError(t, bus.Publish(ctx, newEvent(models.EventCommitmentDetected)))

	got := make(chan models.Event, 4)
	unsub, err := bus.Subscribe(models.EventCommitmentDetected, func(_ context.Context, evt models.Event) {
		got <- evt
	})
	require.NoError(t, err)
	defer unsub()

	want := newEvent(models.EventCommitmentDetected)
	corr := "job-123"
	want.CorrelationID = &corr
	require.NoError(t, bus.Publish(ctx, want))
	require.NoError(t, bus.Publish(ctx, newEvent(models.EventJournalEntryCreated)))

	evt := receive(t, got)
	assert.Equal(t, want.ID, evt.ID)
	assert.Equal(t, want.Source, evt.Source)
	require.NotNil(t, evt.CorrelationID)
	assert.Equal(t, corr, *evt.CorrelationID)
	assert.JSONEq(t, string(want.Payload), string(evt.Payload))

	select {
	case extra := <-got:
		t.Fatalf("unexpected event %s", extra.ID)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRedisBus_IndependentSubscribers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bus := setupRedisBus(t)

	a := make(chan models.Event, 1)
	b := make(chan models.Event, 1)
	_, err := bus.Subscribe(models.EventJournalEntryCreated, func(_ context.Context, evt models.Event) { a <- evt })
	require.NoError(t, err)
	_, err = bus.Subscribe(models.EventJournalEntryCreated, func(_ context.Context, evt models.Event) { b <- evt })
	require.NoError(t, err)

	evt := newEvent(models.EventJournalEntryCreated)
	require.NoError(t, bus.Publish(context.Background(), evt))

	assert.Equal(t, evt.ID, receive(t, a).ID)
	assert.Equal(t, evt.ID, receive(t, b).ID)
}

func TestRedisBus_Closed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bus := setupRedisBus(t)
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), newEvent(models.EventCommitmentDetected)), events.ErrClosed)
	_, err := bus.Subscribe(models.EventCommitmentDetected, func(context.Context, models.Event) {})
	assert.ErrorIs(t, err, events.ErrClosed)
}
