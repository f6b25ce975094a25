package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

const heartbeatInterval = 30 * time.Second

// Realtime subscribes to the managed backend's realtime websocket. One
// websocket connection is opened per subscription; reconnection after
// network loss is the transport's own concern, so when the socket ends
// the subscription simply closes.
type Realtime struct {
	wsURL string
}

// NewRealtime builds a feed dialing the backend at backendAddr with the
// given public API key.
func NewRealtime(backendAddr, apiKey string) *Realtime {
	wsAddr := strings.Replace(backendAddr, "http", "ws", 1)

	return &Realtime{
		wsURL: wsAddr + "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0",
	}
}

type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

type changePayload struct {
	Data struct {
		Type   string          `json:"type"`
		Record json.RawMessage `json:"record"`
	} `json:"data"`
}

// Subscribe dials the realtime endpoint and joins the bookmarks-changes
// channel filtered server-side to rows owned by userID, for all event
// types.
func (r *Realtime) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	conn, _, err := websocket.Dial(ctx, r.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}

	sub := newSubscription(16, func() {
		_ = conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	})

	joinPayload, err := json.Marshal(map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{
				{
					"event":  "*",
					"schema": "public",
					"table":  "bookmarks",
					"filter": "user_id=eq." + userID,
				},
			},
		},
	})
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	join, err := json.Marshal(phoenixMessage{
		Topic:   "realtime:public:bookmarks",
		Event:   "phx_join",
		Payload: joinPayload,
		Ref:     "1",
	})
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	if err := conn.Write(ctx, websocket.MessageText, join); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("realtime join failed: %w", err)
	}

	go r.readLoop(ctx, conn, sub)
	go r.heartbeatLoop(ctx, conn, sub)

	return sub, nil
}

func (r *Realtime) readLoop(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	defer func() {
		_ = sub.Close()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-sub.Done():
			case <-ctx.Done():
			default:
				logger.Log.Debugln("Error calling the `conn.Read()`: ", zap.Error(err))
			}
			return
		}

		message := phoenixMessage{}
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Log.Debugln("Error unmarshalling a realtime frame: ", zap.Error(err))
			continue
		}

		if message.Event != "postgres_changes" {
			continue
		}

		payload := changePayload{}
		if err := json.Unmarshal(message.Payload, &payload); err != nil {
			logger.Log.Debugln("Error unmarshalling a change payload: ", zap.Error(err))
			continue
		}

		event := models.ChangeEvent{Action: models.ChangeAction(payload.Data.Type)}
		// The record payload is best effort: the controller reloads the
		// whole list on any event, so a row that fails to decode still
		// produces a usable notification.
		_ = json.Unmarshal(payload.Data.Record, &event.Bookmark)

		sub.publish(event)
	}
}

func (r *Realtime) heartbeatLoop(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ref := 2
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			heartbeat, err := json.Marshal(phoenixMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
				Ref:     strconv.Itoa(ref),
			})
			if err != nil {
				continue
			}
			ref++
			if err := conn.Write(ctx, websocket.MessageText, heartbeat); err != nil {
				_ = sub.Close()
				return
			}
		}
	}
}
