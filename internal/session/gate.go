package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
)

type identityClient interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// refreshLeeway is how close to expiry the access token may get before
// the middleware refreshes it.
const refreshLeeway = time.Minute

// Claims is the signed cookie payload carrying the backend session.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Gate checks and refreshes the session cookie and keeps
// unauthenticated visitors away from protected views.
type Gate struct {
	client identityClient

	// authCookieName is the name of the cookie used to store the session.
	authCookieName string

	// authCookieSigningSecretKey is the key used to sign the cookie JWT.
	authCookieSigningSecretKey []byte
}

// New creates a session gate around the given identity client.
func New(client identityClient, authCookieName string, authCookieSigningSecretKey []byte) *Gate {
	return &Gate{
		client:                     client,
		authCookieName:             authCookieName,
		authCookieSigningSecretKey: authCookieSigningSecretKey,
	}
}

func (g *Gate) buildJWTString(s *Session) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt.Add(24 * time.Hour)),
		},
		UserID:       s.UserID,
		Email:        s.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(g.authCookieSigningSecretKey)
}

func (g *Gate) sessionFromCookie(request *http.Request) *Session {
	cookie, err := request.Cookie(g.authCookieName)
	if err != nil {
		return nil
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		cookie.Value,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return g.authCookieSigningSecretKey, nil
		},
	)
	if err != nil || !token.Valid {
		return nil
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time.Add(-24 * time.Hour)
	}

	return &Session{
		UserID:       claims.UserID,
		Email:        claims.Email,
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// SetCookie writes the session into the signed cookie.
func (g *Gate) SetCookie(response http.ResponseWriter, s *Session) error {
	JWTString, err := g.buildJWTString(s)
	if err != nil {
		return err
	}

	http.SetCookie(
		response,
		&http.Cookie{
			Name:     g.authCookieName,
			Value:    JWTString,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	)

	return nil
}

// ClearCookie removes the session cookie.
func (g *Gate) ClearCookie(response http.ResponseWriter) {
	http.SetCookie(
		response,
		&http.Cookie{
			Name:     g.authCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	)
}

// RefreshSession is an HTTP middleware that decodes the session cookie,
// refreshes the backend session when the access token is about to
// expire, re-issues the cookie, and places the session in the request
// context. Decode and refresh failures never fail the request; the
// request simply proceeds unauthenticated.
func (g *Gate) RefreshSession(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		s := g.sessionFromCookie(request)
		if s == nil {
			h.ServeHTTP(response, request)
			return
		}

		if time.Until(s.ExpiresAt) < refreshLeeway && s.RefreshToken != "" {
			refreshed, err := g.client.Refresh(request.Context(), s.RefreshToken)
			if err != nil {
				logger.Log.Debugln("Error calling the `g.client.Refresh()`: ", zap.Error(err))
				h.ServeHTTP(response, request)
				return
			}
			s = refreshed
			if err := g.SetCookie(response, s); err != nil {
				logger.Log.Debugln("Error calling the `g.SetCookie()`: ", zap.Error(err))
			}
		}

		h.ServeHTTP(response, request.WithContext(NewContext(request.Context(), s)))
	}

	return http.HandlerFunc(middleware)
}

// RequireUser redirects unauthenticated visitors to the sign-in view
// before any protected content is written.
func (g *Gate) RequireUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if _, ok := FromContext(request.Context()); !ok {
			http.Redirect(response, request, "/auth", http.StatusSeeOther)
			return
		}
		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

// RedirectAuthenticated sends already-authenticated visitors of the
// sign-in view back to the protected view.
func (g *Gate) RedirectAuthenticated(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if _, ok := FromContext(request.Context()); ok {
			http.Redirect(response, request, "/", http.StatusSeeOther)
			return
		}
		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

// SignOut revokes the backend session.
func (g *Gate) SignOut(ctx context.Context, s *Session) error {
	return g.client.SignOut(ctx, s.AccessToken)
}
