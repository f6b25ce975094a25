package changefeed

import (
	"context"
	"sync"

	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

// Memory is an in-process change-feed broker. The in-memory store
// publishes into it after every mutation, which gives dev mode and
// tests the same converge-via-feed behavior as the remote transports.
type Memory struct {
	mu   sync.RWMutex
	subs map[*Subscription]string
}

// NewMemory creates an empty broker.
func NewMemory() *Memory {
	return &Memory{
		subs: map[*Subscription]string{},
	}
}

// Subscribe registers a subscription for the given user's rows. The
// subscription ends when ctx is cancelled or Close is called.
func (m *Memory) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(16, func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	})

	m.mu.Lock()
	m.subs[sub] = userID
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.Done():
		}
	}()

	return sub, nil
}

// Publish fans the event out to every subscription watching the
// event's owning user.
func (m *Memory) Publish(event models.ChangeEvent) {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.subs))
	for sub, userID := range m.subs {
		if userID == event.Bookmark.UserID {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		sub.publish(event)
	}
}
