// Package bookmarks implements the bookmark list controller: it owns
// the in-memory list of one user's bookmarks, performs the initial
// load, reloads the full list on every change-feed event, and exposes
// the create and delete actions. The displayed list is always a fully
// replaceable snapshot; the controller never patches it incrementally.
package bookmarks

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkd/internal/changefeed"
	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
	"github.com/patric-chuzhbe/bookmarkd/internal/session"
)

type storage interface {
	SelectByUser(ctx context.Context, userID string) ([]models.Bookmark, error)
	Insert(ctx context.Context, bookmark models.Bookmark) error
	Delete(ctx context.Context, id string) error
}

type feed interface {
	Subscribe(ctx context.Context, userID string) (*changefeed.Subscription, error)
}

// Controller synchronizes one user's bookmark list with the store.
// It is constructed with the explicit session object produced by the
// gate; it never reaches for ambient auth state.
type Controller struct {
	db   storage
	feed feed
	sess *session.Session

	mu        sync.Mutex
	bookmarks []models.Bookmark
	loading   bool
	closed    bool

	// issuedSeq tags every Load at issue time; appliedSeq is the
	// highest sequence whose snapshot was applied. A response with a
	// lower sequence than appliedSeq lost the race to a newer load and
	// is discarded instead of transiently showing stale data.
	issuedSeq  int64
	appliedSeq int64

	updates chan struct{}
	cancel  context.CancelFunc
	sub     *changefeed.Subscription
}

// New creates a controller for the session's user. The feed may be nil
// when only Create and Delete will be used.
func New(db storage, feed feed, sess *session.Session) *Controller {
	return &Controller{
		db:      db,
		feed:    feed,
		sess:    sess,
		loading: true,
		updates: make(chan struct{}, 1),
	}
}

// Load replaces the list with a fresh full snapshot. A failed load is
// logged and leaves the list untouched; the loading flag clears
// regardless of outcome so the view never hangs.
func (c *Controller) Load(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.issuedSeq++
	seq := c.issuedSeq
	c.mu.Unlock()

	rows, err := c.db.SelectByUser(ctx, c.sess.UserID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.loading = false

	if err != nil {
		logger.Log.Debugln("Error calling the `c.db.SelectByUser()`: ", zap.Error(err))
		return
	}

	if seq <= c.appliedSeq {
		return
	}
	c.appliedSeq = seq
	c.bookmarks = rows

	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Run performs the initial load and then keeps the list converged: any
// insert, update, or delete event triggers a full reload. It returns
// after starting the watch goroutine, which ends when ctx is cancelled,
// the subscription closes, or Close is called.
func (c *Controller) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.Load(runCtx)

	sub, err := c.feed.Subscribe(runCtx, c.sess.UserID)
	if err != nil {
		cancel()
		logger.Log.Debugln("Error calling the `c.feed.Subscribe()`: ", zap.Error(err))
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sub.Close()
		cancel()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	go func() {
		defer cancel()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-sub.Done():
				return
			case <-sub.Events():
				c.Load(runCtx)
			}
		}
	}()

	return nil
}

// Create inserts a bookmark with the given draft fields. Empty or
// whitespace-only drafts make the call a no-op without touching the
// store. The list itself converges via the change feed, not here; the
// returned error is for user-facing surfacing.
func (c *Controller) Create(ctx context.Context, url, title string) error {
	url = strings.TrimSpace(url)
	title = strings.TrimSpace(title)
	if url == "" || title == "" {
		return nil
	}

	err := c.db.Insert(ctx, models.Bookmark{
		UserID: c.sess.UserID,
		URL:    url,
		Title:  title,
	})
	if err != nil {
		logger.Log.Debugln("Error calling the `c.db.Insert()`: ", zap.Error(err))
		return err
	}

	return nil
}

// Delete removes the bookmark by id. Confirmation is the view's
// concern; a declined confirmation never reaches the controller.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.db.Delete(ctx, id); err != nil {
		logger.Log.Debugln("Error calling the `c.db.Delete()`: ", zap.Error(err))
		return err
	}

	return nil
}

// Updates signals (coalescing) whenever a new snapshot was applied.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Snapshot returns a copy of the current list, newest first.
func (c *Controller) Snapshot() []models.Bookmark {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]models.Bookmark(nil), c.bookmarks...)
}

// Loading reports whether the initial load is still in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loading
}

// Close tears the controller down: the subscription is closed exactly
// once and no state mutation can happen afterwards, even from a late
// load or a late change notification.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	sub := c.sub
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		_ = sub.Close()
	}
}
