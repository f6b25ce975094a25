// Package models defines the bookmark row shape and the change-feed
// event types shared between the store, the feed, and the controller.
package models

import "time"

// Bookmark mirrors one row of the backend's "bookmarks" table.
// ID and CreatedAt are assigned by the store on insert.
type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeAction is the kind of row-level change reported by the feed.
type ChangeAction string

const (
	ActionInsert ChangeAction = "INSERT"
	ActionUpdate ChangeAction = "UPDATE"
	ActionDelete ChangeAction = "DELETE"
)

// ChangeEvent is one row-level notification from the change feed.
// Bookmark carries whatever row data the transport included; the list
// controller reacts to the event itself, not to its payload.
type ChangeEvent struct {
	Action   ChangeAction `json:"action"`
	Bookmark Bookmark     `json:"bookmark"`
}

// CreateRequest is the create-form payload.
type CreateRequest struct {
	URL   string `json:"url" validate:"required"`
	Title string `json:"title" validate:"required"`
}

const (
	StoreTypeUnknown = iota
	StoreTypeRest
	StoreTypePostgresql
	StoreTypeMemory
)
