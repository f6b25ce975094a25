// Package memorystorage is a map-backed bookmark store used by tests
// and dev mode. Mutations publish into an in-process change-feed
// broker, so the converge-via-feed flow works without any backend.
package memorystorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/bookmarkd/internal/changefeed"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

type storedBookmark struct {
	models.Bookmark
	seq int64
}

// MemoryStorage is an in-memory bookmark store.
type MemoryStorage struct {
	mu        sync.RWMutex
	bookmarks map[string]storedBookmark
	nextSeq   int64
	feed      *changefeed.Memory
}

// New creates an empty store publishing changes into feed. A nil feed
// disables publication.
func New(feed *changefeed.Memory) (*MemoryStorage, error) {
	return &MemoryStorage{
		bookmarks: map[string]storedBookmark{},
		feed:      feed,
	}, nil
}

// SelectByUser returns the user's bookmarks newest first. Insertion
// order breaks creation-time ties.
func (theStorage *MemoryStorage) SelectByUser(ctx context.Context, userID string) ([]models.Bookmark, error) {
	theStorage.mu.RLock()

	all := make([]storedBookmark, 0, len(theStorage.bookmarks))
	for _, bookmark := range theStorage.bookmarks {
		all = append(all, bookmark)
	}

	theStorage.mu.RUnlock()

	owned := funk.Filter(all, func(bookmark storedBookmark) bool {
		return bookmark.UserID == userID
	}).([]storedBookmark)

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].seq > owned[j].seq
	})

	result := make([]models.Bookmark, 0, len(owned))
	for _, bookmark := range owned {
		result = append(result, bookmark.Bookmark)
	}

	return result, nil
}

// Insert stores a new bookmark, assigning id and creation timestamp.
func (theStorage *MemoryStorage) Insert(ctx context.Context, bookmark models.Bookmark) error {
	bookmark.ID = uuid.New().String()
	bookmark.CreatedAt = time.Now()

	theStorage.mu.Lock()
	theStorage.nextSeq++
	theStorage.bookmarks[bookmark.ID] = storedBookmark{
		Bookmark: bookmark,
		seq:      theStorage.nextSeq,
	}
	theStorage.mu.Unlock()

	theStorage.publish(models.ChangeEvent{
		Action:   models.ActionInsert,
		Bookmark: bookmark,
	})

	return nil
}

// Delete removes the bookmark with the given id; a miss is silent.
func (theStorage *MemoryStorage) Delete(ctx context.Context, id string) error {
	theStorage.mu.Lock()
	bookmark, found := theStorage.bookmarks[id]
	if found {
		delete(theStorage.bookmarks, id)
	}
	theStorage.mu.Unlock()

	if found {
		theStorage.publish(models.ChangeEvent{
			Action:   models.ActionDelete,
			Bookmark: bookmark.Bookmark,
		})
	}

	return nil
}

func (theStorage *MemoryStorage) publish(event models.ChangeEvent) {
	if theStorage.feed != nil {
		theStorage.feed.Publish(event)
	}
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}
