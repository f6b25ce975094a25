package restdb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookmarkd/internal/models"
	"github.com/patric-chuzhbe/bookmarkd/internal/session"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	header http.Header
	body   []byte
}

func startBackend(t *testing.T, status int, responseBody string, recorded *recordedRequest) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		*recorded = recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  map[string]string{},
			header: r.Header.Clone(),
			body:   body,
		}
		for key := range r.URL.Query() {
			recorded.query[key] = r.URL.Query().Get(key)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(responseBody))
	}))
	t.Cleanup(server.Close)

	return server
}

func sessionContext() context.Context {
	return session.NewContext(context.Background(), &session.Session{
		UserID:      "user-1",
		AccessToken: "access-token",
	})
}

func TestSelectByUserBuildsRowQuery(t *testing.T) {
	recorded := recordedRequest{}
	server := startBackend(t, http.StatusOK, `[
		{"id": "b2", "user_id": "user-1", "url": "https://docs.example.com", "title": "Docs"},
		{"id": "b1", "user_id": "user-1", "url": "https://example.com", "title": "Example"}
	]`, &recorded)

	db := New(server.URL, "test-key")

	bookmarks, err := db.SelectByUser(sessionContext(), "user-1")
	require.NoError(t, err)

	require.Len(t, bookmarks, 2)
	assert.Equal(t, "Docs", bookmarks[0].Title)
	assert.Equal(t, "Example", bookmarks[1].Title)

	assert.Equal(t, http.MethodGet, recorded.method)
	assert.Equal(t, "/rest/v1/bookmarks", recorded.path)
	assert.Equal(t, "*", recorded.query["select"])
	assert.Equal(t, "eq.user-1", recorded.query["user_id"])
	assert.Equal(t, "created_at.desc", recorded.query["order"])
	assert.Equal(t, "test-key", recorded.header.Get("apikey"))
	assert.Equal(t, "Bearer access-token", recorded.header.Get("Authorization"))
}

func TestInsertSendsOwnedRow(t *testing.T) {
	recorded := recordedRequest{}
	server := startBackend(t, http.StatusCreated, ``, &recorded)

	db := New(server.URL, "test-key")

	err := db.Insert(sessionContext(), models.Bookmark{
		UserID: "user-1",
		URL:    "https://example.com",
		Title:  "Example",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, recorded.method)
	assert.Equal(t, "/rest/v1/bookmarks", recorded.path)
	assert.Equal(t, "return=minimal", recorded.header.Get("Prefer"))
	assert.Equal(t, "Bearer access-token", recorded.header.Get("Authorization"))

	row := map[string]string{}
	require.NoError(t, json.Unmarshal(recorded.body, &row))
	assert.Equal(t, map[string]string{
		"url":     "https://example.com",
		"title":   "Example",
		"user_id": "user-1",
	}, row)
}

func TestDeleteFiltersByID(t *testing.T) {
	recorded := recordedRequest{}
	server := startBackend(t, http.StatusNoContent, ``, &recorded)

	db := New(server.URL, "test-key")

	require.NoError(t, db.Delete(sessionContext(), "b1"))

	assert.Equal(t, http.MethodDelete, recorded.method)
	assert.Equal(t, "/rest/v1/bookmarks", recorded.path)
	assert.Equal(t, "eq.b1", recorded.query["id"])
}

func TestErrorStatusIsSurfaced(t *testing.T) {
	recorded := recordedRequest{}
	server := startBackend(t, http.StatusUnauthorized, `{"message": "JWT expired"}`, &recorded)

	db := New(server.URL, "test-key")

	_, err := db.SelectByUser(sessionContext(), "user-1")
	require.Error(t, err)

	require.Error(t, db.Insert(sessionContext(), models.Bookmark{UserID: "user-1"}))
	require.Error(t, db.Delete(sessionContext(), "b1"))
}

func TestRequestWithoutSessionOmitsBearer(t *testing.T) {
	recorded := recordedRequest{}
	server := startBackend(t, http.StatusOK, `[]`, &recorded)

	db := New(server.URL, "test-key")

	_, err := db.SelectByUser(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Empty(t, recorded.header.Get("Authorization"))
	assert.Equal(t, "test-key", recorded.header.Get("apikey"))
}

func TestPing(t *testing.T) {
	recorded := recordedRequest{}
	server := startBackend(t, http.StatusOK, `[]`, &recorded)

	db := New(server.URL, "test-key")

	require.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "1", recorded.query["limit"])
}
