// Package events delivers published events to in-process and remote
// subscribers. Delivery is at-least-once with no ordering guarantee across
// distinct events, so handlers must tolerate duplicates.
package events

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

// Handler is invoked once per delivered event. It runs on a bus-owned
// goroutine, never on the publisher's.
type Handler func(ctx context.Context, evt models.Event)

// Bus is the publish/subscribe transport behind the orchestrator's Emit and Subscribe.
type Bus interface {
	Publish(ctx context.Context, evt *models.Event) error
	// Subscribe attaches h to events of eventType published after the call
	// returns. The returned func detaches it and waits for in-flight calls.
	Subscribe(eventType string, h Handler) (unsubscribe func(), err error)
	Close() error
}
