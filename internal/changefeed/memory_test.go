package changefeed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func insertEvent(userID string) models.ChangeEvent {
	return models.ChangeEvent{
		Action:   models.ActionInsert,
		Bookmark: models.Bookmark{ID: "b1", UserID: userID},
	}
}

func TestMemoryPublishesOnlyToMatchingUser(t *testing.T) {
	broker := NewMemory()

	sub, err := broker.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)
	defer sub.Close()

	broker.Publish(insertEvent("user-2"))

	select {
	case event := <-sub.Events():
		t.Fatalf("received another user's event: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}

	broker.Publish(insertEvent("user-1"))

	select {
	case event := <-sub.Events():
		require.Equal(t, models.ActionInsert, event.Action)
		require.Equal(t, "user-1", event.Bookmark.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected an event for the subscribed user")
	}
}

func TestMemoryDropsEventsAfterClose(t *testing.T) {
	broker := NewMemory()

	sub, err := broker.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	broker.Publish(insertEvent("user-1"))

	select {
	case event := <-sub.Events():
		t.Fatalf("received an event after close: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemorySubscriptionEndsWithContext(t *testing.T) {
	broker := NewMemory()

	ctx, cancel := context.WithCancel(context.Background())

	sub, err := broker.Subscribe(ctx, "user-1")
	require.NoError(t, err)

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("expected the subscription to end with its context")
	}
}
