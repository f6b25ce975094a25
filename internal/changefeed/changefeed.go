// Package changefeed delivers row-level change notifications for the
// bookmarks table, filtered to one owning user. Three transports exist:
// the managed backend's realtime websocket, postgres LISTEN/NOTIFY for
// direct-postgres deployments, and an in-process broker for tests and
// dev mode.
package changefeed

import (
	"context"
	"sync"

	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

// Feed hands out change subscriptions scoped to one user's rows.
type Feed interface {
	Subscribe(ctx context.Context, userID string) (*Subscription, error)
}

// Subscription is one open change-feed channel. It is closed exactly
// once, either explicitly via Close or when the transport ends; events
// arriving afterwards are dropped, never delivered.
type Subscription struct {
	events    chan models.ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func newSubscription(buffer int, onClose func()) *Subscription {
	return &Subscription{
		events:  make(chan models.ChangeEvent, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Events returns the channel of change notifications.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

// Done is closed when the subscription ends, whichever side ends it.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close tears the subscription down. It is safe to call multiple times
// and from any goroutine.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})

	return nil
}

// publish offers an event to the subscriber. Events are dropped when
// the subscription is closed or the buffer is full; a dropped event is
// harmless because every event triggers the same full reload.
func (s *Subscription) publish(event models.ChangeEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- event:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}
