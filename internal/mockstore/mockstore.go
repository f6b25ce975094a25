// Package mockstore provides testify-based mock implementations
// of the storage and identity interfaces used by the router and
// controller packages. It is used for unit testing HTTP handlers by
// simulating backend behavior.
package mockstore

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/bookmarkd/internal/models"
	"github.com/patric-chuzhbe/bookmarkd/internal/session"
	"github.com/patric-chuzhbe/bookmarkd/internal/user"
)

// StorageMock is a testify mock that implements the storage interface
// used by the router and the list controller.
//
// Use it in tests to simulate row-store behavior.
type StorageMock struct {
	mock.Mock
}

// SelectByUser mocks fetching the user's bookmarks.
func (m *StorageMock) SelectByUser(ctx context.Context, userID string) ([]models.Bookmark, error) {
	args := m.Called(ctx, userID)
	bookmarks, _ := args.Get(0).([]models.Bookmark)
	return bookmarks, args.Error(1)
}

// Insert mocks storing a new bookmark.
func (m *StorageMock) Insert(ctx context.Context, bookmark models.Bookmark) error {
	args := m.Called(ctx, bookmark)
	return args.Error(0)
}

// Delete mocks removing a bookmark by id.
func (m *StorageMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the store.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// IdentityMock is a testify mock of the backend auth-session client.
type IdentityMock struct {
	mock.Mock
}

// AuthorizeURL mocks building the OAuth entry point.
func (m *IdentityMock) AuthorizeURL(redirectTo string) string {
	args := m.Called(redirectTo)
	return args.String(0)
}

// ExchangeCode mocks trading the callback code for a session.
func (m *IdentityMock) ExchangeCode(ctx context.Context, code string) (*session.Session, error) {
	args := m.Called(ctx, code)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

// Refresh mocks refreshing the backend session.
func (m *IdentityMock) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	args := m.Called(ctx, refreshToken)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

// CurrentUser mocks resolving the access token's owner.
func (m *IdentityMock) CurrentUser(ctx context.Context, accessToken string) (*user.User, error) {
	args := m.Called(ctx, accessToken)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

// SignOut mocks revoking the session.
func (m *IdentityMock) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}
