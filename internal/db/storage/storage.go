// Package storage declares the row-store contract the rest of the
// application depends on. Implementations talk to the managed backend's
// REST row API, to postgres directly, or to an in-memory map.
package storage

import (
	"context"

	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

// Storage is the row-oriented view of the "bookmarks" table. Every
// read is scoped by an owner equality filter; the id and creation
// timestamp of inserted rows are assigned by the store.
type Storage interface {
	// SelectByUser returns all bookmarks owned by userID ordered by
	// creation time descending.
	SelectByUser(ctx context.Context, userID string) ([]models.Bookmark, error)

	// Insert stores a new bookmark. Only URL, Title and UserID of the
	// argument are used.
	Insert(ctx context.Context, bookmark models.Bookmark) error

	// Delete removes the bookmark with the given id. Deleting an id
	// that matches no row is not an error.
	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error

	Close() error
}
