package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/lifeledger/internal/cache"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	eventField       = "event"
	defaultBlock     = time.Second
	defaultMaxLen    = 10000
	readErrorBackoff = 500 * time.Millisecond
)

// RedisBus carries events over Redis Streams, one stream per event type.
// Every subscriber reads the stream independently, so each process sees
// each event.
type RedisBus struct {
	client *redis.Client
	block  time.Duration
	maxLen int64

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisOption configures a RedisBus.
type RedisOption func(*RedisBus)

// WithBlock sets how long a subscriber's XREAD waits for new entries.
func WithBlock(d time.Duration) RedisOption {
	return func(b *RedisBus) {
		if d > 0 {
			b.block = d
		}
	}
}

// WithMaxLen caps each stream at roughly n entries.
func WithMaxLen(n int64) RedisOption {
	return func(b *RedisBus) {
		if n > 0 {
			b.maxLen = n
		}
	}
}

// NewRedisBus builds a bus on client. The caller keeps ownership of client.
func NewRedisBus(client *redis.Client, opts ...RedisOption) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		client: client,
		block:  defaultBlock,
		maxLen: defaultMaxLen,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBus) Publish(ctx context.Context, evt *models.Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: cache.EventStreamKey(evt.Type),
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{eventField: data},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", evt.Type, err)
	}
	return nil
}

// Subscribe records the stream's current tail before returning, so any
// event published afterwards is delivered.
func (b *RedisBus) Subscribe(eventType string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	stream := cache.EventStreamKey(eventType)
	lastID, err := b.tailID(b.ctx, stream)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(b.ctx)
	done := make(chan struct{})
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(done)
		b.consume(ctx, stream, lastID, h)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (b *RedisBus) tailID(ctx context.Context, stream string) (string, error) {
	msgs, err := b.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read tail of %s: %w", stream, err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func (b *RedisBus) consume(ctx context.Context, stream, lastID string, h Handler) {
	for ctx.Err() == nil {
		res, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   100,
			Block:   b.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("event stream read failed", "error", err, "stream", stream)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				lastID = msg.ID
				evt, err := decodeMessage(msg)
				if err != nil {
					slog.Warn("skipping undecodable event", "error", err, "stream", stream, "id", msg.ID)
					continue
				}
				deliver(ctx, h, evt)
			}
		}
	}
}

func decodeMessage(msg redis.XMessage) (models.Event, error) {
	var evt models.Event
	raw, ok := msg.Values[eventField].(string)
	if !ok {
		return evt, fmt.Errorf("missing %q field", eventField)
	}
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return evt, err
	}
	return evt, nil
}

func deliver(ctx context.Context, h Handler, evt models.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in event handler", "error", r, "event_type", evt.Type, "event_id", evt.ID)
		}
	}()
	h(ctx, evt)
}

// Close stops every subscriber. The Redis client is left open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}

var _ Bus = (*RedisBus)(nil)
