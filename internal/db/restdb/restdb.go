// Package restdb implements the storage interface against the managed
// backend's row-oriented REST API. The backend enforces the row-level
// access policy; this client authenticates every call with the public
// API key plus the session's access token taken from the request
// context.
package restdb

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/bookmarkd/internal/models"
	"github.com/patric-chuzhbe/bookmarkd/internal/session"
)

const bookmarksPath = "/rest/v1/bookmarks"

// RestDB is a storage implementation backed by the remote row API.
type RestDB struct {
	http *resty.Client
}

// New creates a row API client for the backend at backendAddr.
func New(backendAddr, apiKey string) *RestDB {
	return &RestDB{
		http: resty.New().
			SetBaseURL(backendAddr).
			SetHeader("apikey", apiKey).
			SetTimeout(10 * time.Second),
	}
}

// request builds a request carrying the caller's access token when the
// context holds a session. Without it the backend still answers, but
// the row policy only matches anonymous-visible rows.
func (db *RestDB) request(ctx context.Context) *resty.Request {
	request := db.http.R().SetContext(ctx)
	if s, ok := session.FromContext(ctx); ok {
		request.SetAuthToken(s.AccessToken)
	}
	return request
}

// SelectByUser returns the user's bookmarks ordered newest first.
func (db *RestDB) SelectByUser(ctx context.Context, userID string) ([]models.Bookmark, error) {
	var result []models.Bookmark

	resp, err := db.request(ctx).
		SetQueryParams(map[string]string{
			"select":  "*",
			"user_id": "eq." + userID,
			"order":   "created_at.desc",
		}).
		SetResult(&result).
		Get(bookmarksPath)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("select bookmarks failed: %s", resp.Status())
	}

	return result, nil
}

// Insert creates a row; the backend assigns id and created_at.
func (db *RestDB) Insert(ctx context.Context, bookmark models.Bookmark) error {
	resp, err := db.request(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(map[string]string{
			"url":     bookmark.URL,
			"title":   bookmark.Title,
			"user_id": bookmark.UserID,
		}).
		Post(bookmarksPath)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("insert bookmark failed: %s", resp.Status())
	}

	return nil
}

// Delete removes the row with the given id. The backend answers
// successfully for a no-row-matched delete, and so does this method.
func (db *RestDB) Delete(ctx context.Context, id string) error {
	resp, err := db.request(ctx).
		SetQueryParam("id", "eq."+id).
		Delete(bookmarksPath)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("delete bookmark failed: %s", resp.Status())
	}

	return nil
}

// Ping checks that the row API is reachable.
func (db *RestDB) Ping(ctx context.Context) error {
	resp, err := db.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"select": "id", "limit": "1"}).
		Get(bookmarksPath)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("backend ping failed: %s", resp.Status())
	}

	return nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (db *RestDB) Close() error {
	return nil
}
