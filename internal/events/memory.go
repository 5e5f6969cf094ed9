package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// MemoryBus fans events out to subscribers of the same process.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]*memSub
	nextID int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

type memSub struct {
	handler Handler
	wg      sync.WaitGroup
}

func NewMemoryBus() *MemoryBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryBus{
		subs:   make(map[string]map[int]*memSub),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish hands evt to every current subscriber of evt.Type and returns
// without waiting for the handlers.
func (b *MemoryBus) Publish(_ context.Context, evt *models.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	for _, s := range b.subs[evt.Type] {
		s.wg.Add(1)
		go func(s *memSub, evt models.Event) {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in event handler", "error", r, "event_type", evt.Type, "event_id", evt.ID)
				}
			}()
			s.handler(b.ctx, evt)
		}(s, *evt)
	}
	return nil
}

func (b *MemoryBus) Subscribe(eventType string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	id := b.nextID
	b.nextID++
	s := &memSub{handler: h}
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[int]*memSub)
	}
	b.subs[eventType][id] = s

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[eventType], id)
			b.mu.Unlock()
			s.wg.Wait()
		})
	}, nil
}

// Close rejects further publishes and waits for running handlers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]map[int]*memSub)
	b.mu.Unlock()

	b.cancel()
	for _, byID := range subs {
		for _, s := range byID {
			s.wg.Wait()
		}
	}
	return nil
}

var _ Bus = (*MemoryBus)(nil)
