package bookmarks

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookmarkd/internal/changefeed"
	"github.com/patric-chuzhbe/bookmarkd/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/mockstore"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
	"github.com/patric-chuzhbe/bookmarkd/internal/session"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testSession() *session.Session {
	return &session.Session{UserID: "user-1", Email: "user-1@example.com"}
}

type selectResult struct {
	rows []models.Bookmark
	err  error
}

// gatedStorage blocks every SelectByUser call until the test releases
// it, which makes overlapping-load races deterministic.
type gatedStorage struct {
	mu      sync.Mutex
	pending []chan selectResult
	started chan struct{}
}

func newGatedStorage() *gatedStorage {
	return &gatedStorage{started: make(chan struct{}, 16)}
}

func (g *gatedStorage) SelectByUser(ctx context.Context, userID string) ([]models.Bookmark, error) {
	ch := make(chan selectResult)

	g.mu.Lock()
	g.pending = append(g.pending, ch)
	g.mu.Unlock()

	g.started <- struct{}{}

	result := <-ch
	return result.rows, result.err
}

func (g *gatedStorage) Insert(ctx context.Context, bookmark models.Bookmark) error {
	return nil
}

func (g *gatedStorage) Delete(ctx context.Context, id string) error {
	return nil
}

func (g *gatedStorage) release(i int, rows []models.Bookmark, err error) {
	g.mu.Lock()
	ch := g.pending[i]
	g.mu.Unlock()

	ch <- selectResult{rows: rows, err: err}
}

func titles(bookmarks []models.Bookmark) []string {
	result := make([]string, 0, len(bookmarks))
	for _, bookmark := range bookmarks {
		result = append(result, bookmark.Title)
	}
	return result
}

func TestStaleLoadResponseIsDiscarded(t *testing.T) {
	db := newGatedStorage()
	controller := New(db, nil, testSession())

	older := []models.Bookmark{{ID: "b1", Title: "Old"}}
	newer := []models.Bookmark{{ID: "b1", Title: "Old"}, {ID: "b2", Title: "New"}}

	go controller.Load(context.Background())
	<-db.started

	go controller.Load(context.Background())
	<-db.started

	// The second (newer) load resolves first.
	db.release(1, newer, nil)
	require.Eventually(t, func() bool {
		return len(controller.Snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	// The first (older) load resolves late and must be dropped.
	db.release(0, older, nil)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"Old", "New"}, titles(controller.Snapshot()))
}

func TestFailedLoadClearsLoadingAndKeepsList(t *testing.T) {
	db := newGatedStorage()
	controller := New(db, nil, testSession())

	require.True(t, controller.Loading())

	go controller.Load(context.Background())
	<-db.started
	db.release(0, []models.Bookmark{{ID: "b1", Title: "Kept"}}, nil)

	require.Eventually(t, func() bool {
		return len(controller.Snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	require.False(t, controller.Loading())

	go controller.Load(context.Background())
	<-db.started
	db.release(1, nil, errors.New("backend unavailable"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"Kept"}, titles(controller.Snapshot()))
	assert.False(t, controller.Loading())
}

func TestNoMutationAfterClose(t *testing.T) {
	db := newGatedStorage()
	controller := New(db, nil, testSession())

	go controller.Load(context.Background())
	<-db.started

	controller.Close()

	db.release(0, []models.Bookmark{{ID: "b1", Title: "Late"}}, nil)
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, controller.Snapshot())

	select {
	case <-controller.Updates():
		t.Fatal("an update was signalled after Close")
	default:
	}
}

func TestCreateWithEmptyDraftIsNoOp(t *testing.T) {
	db := &mockstore.StorageMock{}
	controller := New(db, nil, testSession())

	require.NoError(t, controller.Create(context.Background(), "", "Example"))
	require.NoError(t, controller.Create(context.Background(), "https://example.com", "   "))
	require.NoError(t, controller.Create(context.Background(), " \t ", ""))

	db.AssertNotCalled(t, "Insert")
}

func TestCreateTrimsDraftsAndSetsOwner(t *testing.T) {
	db := &mockstore.StorageMock{}
	db.On("Insert", mock.Anything, models.Bookmark{
		UserID: "user-1",
		URL:    "https://example.com",
		Title:  "Example",
	}).Return(nil)

	controller := New(db, nil, testSession())

	require.NoError(t, controller.Create(context.Background(), "  https://example.com ", " Example  "))

	db.AssertExpectations(t)
}

func TestCreateFailureIsReturnedForSurfacing(t *testing.T) {
	insertErr := errors.New("insert rejected")

	db := &mockstore.StorageMock{}
	db.On("Insert", mock.Anything, mock.Anything).Return(insertErr)

	controller := New(db, nil, testSession())

	err := controller.Create(context.Background(), "https://example.com", "Example")
	require.ErrorIs(t, err, insertErr)
}

func TestDeleteFailureIsReturnedForSurfacing(t *testing.T) {
	deleteErr := errors.New("delete rejected")

	db := &mockstore.StorageMock{}
	db.On("Delete", mock.Anything, "b1").Return(deleteErr)

	controller := New(db, nil, testSession())

	err := controller.Delete(context.Background(), "b1")
	require.ErrorIs(t, err, deleteErr)

	db.AssertExpectations(t)
}

type failingFeed struct{}

func (f *failingFeed) Subscribe(ctx context.Context, userID string) (*changefeed.Subscription, error) {
	return nil, errors.New("feed unavailable")
}

func TestRunReturnsSubscribeError(t *testing.T) {
	feed := changefeed.NewMemory()
	db, err := memorystorage.New(feed)
	require.NoError(t, err)

	controller := New(db, &failingFeed{}, testSession())
	defer controller.Close()

	require.Error(t, controller.Run(context.Background()))
}

func TestListConvergesViaChangeFeed(t *testing.T) {
	feed := changefeed.NewMemory()
	db, err := memorystorage.New(feed)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := New(db, feed, testSession())
	defer controller.Close()

	require.NoError(t, controller.Run(ctx))
	require.False(t, controller.Loading())
	require.Empty(t, controller.Snapshot())

	require.NoError(t, controller.Create(ctx, "https://example.com", "Example"))
	require.Eventually(t, func() bool {
		snapshot := controller.Snapshot()
		return len(snapshot) == 1 && snapshot[0].Title == "Example"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, controller.Create(ctx, "https://docs.example.com", "Docs"))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Docs", "Example"}, titles(controller.Snapshot()))
	}, time.Second, 5*time.Millisecond)

	var exampleID string
	for _, bookmark := range controller.Snapshot() {
		if bookmark.Title == "Example" {
			exampleID = bookmark.ID
		}
	}
	require.NotEmpty(t, exampleID)

	require.NoError(t, controller.Delete(ctx, exampleID))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Docs"}, titles(controller.Snapshot()))
	}, time.Second, 5*time.Millisecond)
}

func TestLateFeedEventDoesNotMutateClosedController(t *testing.T) {
	feed := changefeed.NewMemory()
	db, err := memorystorage.New(feed)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := New(db, feed, testSession())
	require.NoError(t, controller.Run(ctx))

	require.NoError(t, controller.Create(ctx, "https://example.com", "Example"))
	require.Eventually(t, func() bool {
		return len(controller.Snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	controller.Close()

	// A mutation from another session arrives after teardown.
	require.NoError(t, db.Insert(ctx, models.Bookmark{
		UserID: "user-1",
		URL:    "https://late.example.com",
		Title:  "Late",
	}))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"Example"}, titles(controller.Snapshot()))
}
