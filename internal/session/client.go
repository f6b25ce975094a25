package session

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/bookmarkd/internal/user"
)

// Client talks to the managed backend's auth-session API. The backend
// is a black box here: it owns the identity provider integration and
// the session lifetime; this client only exchanges, refreshes, and
// revokes tokens.
type Client struct {
	http        *resty.Client
	backendAddr string
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// NewClient creates an auth API client for the backend at backendAddr
// authorized by the public API key.
func NewClient(backendAddr, apiKey string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(backendAddr).
			SetHeader("apikey", apiKey).
			SetTimeout(10 * time.Second),
		backendAddr: backendAddr,
	}
}

// AuthorizeURL returns the backend's OAuth entry point. The browser is
// sent there to sign in; the backend calls redirectTo back with a code.
func (c *Client) AuthorizeURL(redirectTo string) string {
	return c.backendAddr + "/auth/v1/authorize?provider=google&redirect_to=" + url.QueryEscape(redirectTo)
}

func (c *Client) session(resp tokenResponse) *Session {
	return &Session{
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
}

// ExchangeCode trades the OAuth callback code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	var result tokenResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "authorization_code").
		SetBody(map[string]string{"code": code}).
		SetResult(&result).
		Post("/auth/v1/token")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("code exchange failed: %s", resp.Status())
	}

	return c.session(result), nil
}

// Refresh trades the refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var result tokenResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&result).
		Post("/auth/v1/token")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("session refresh failed: %s", resp.Status())
	}

	return c.session(result), nil
}

// CurrentUser asks the backend who the access token belongs to.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*user.User, error) {
	var result struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&result).
		Get("/auth/v1/user")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("user fetch failed: %s", resp.Status())
	}

	return &user.User{ID: result.ID, Email: result.Email}, nil
}

// SignOut revokes the session server-side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		Post("/auth/v1/logout")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("sign out failed: %s", resp.Status())
	}

	return nil
}
