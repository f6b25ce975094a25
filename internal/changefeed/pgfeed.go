package changefeed

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

// NotifyChannel is the postgres channel the direct-postgres store
// notifies after every mutation and this feed listens on.
const NotifyChannel = "bookmarks_changes"

// PGFeed delivers change events over postgres LISTEN/NOTIFY. Each
// subscription holds its own dedicated connection, which is cheap at
// the write frequency of a personal bookmark tool.
type PGFeed struct {
	databaseDSN string
}

// NewPGFeed creates a feed connecting with the given DSN.
func NewPGFeed(databaseDSN string) *PGFeed {
	return &PGFeed{databaseDSN: databaseDSN}
}

// Subscribe opens a listening connection and filters notifications down
// to rows owned by userID.
func (f *PGFeed) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	conn, err := pgx.Connect(ctx, f.databaseDSN)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	sub := newSubscription(16, func() {
		_ = conn.Close(context.Background())
	})

	go func() {
		defer func() {
			_ = sub.Close()
		}()

		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				select {
				case <-sub.Done():
				case <-ctx.Done():
				default:
					logger.Log.Debugln("Error calling the `conn.WaitForNotification()`: ", zap.Error(err))
				}
				return
			}

			event := models.ChangeEvent{}
			if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
				logger.Log.Debugln("Error unmarshalling a notification payload: ", zap.Error(err))
				continue
			}

			if event.Bookmark.UserID != userID {
				continue
			}

			sub.publish(event)
		}
	}()

	return sub, nil
}
