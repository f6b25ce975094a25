// Package router wires the HTTP surface of the bookmark manager: the
// protected bookmark view, the sign-in view, the create and delete
// actions, the sign-out endpoint, and the change-event stream.
package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkd/internal/bookmarks"
	"github.com/patric-chuzhbe/bookmarkd/internal/changefeed"
	"github.com/patric-chuzhbe/bookmarkd/internal/gzippedhttp"
	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
	"github.com/patric-chuzhbe/bookmarkd/internal/session"
)

const (
	alertCreateFailed = "Failed to add bookmark. Please try again."
	alertDeleteFailed = "Failed to delete bookmark. Please try again."
)

type storage interface {
	SelectByUser(ctx context.Context, userID string) ([]models.Bookmark, error)
	Insert(ctx context.Context, bookmark models.Bookmark) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type feed interface {
	Subscribe(ctx context.Context, userID string) (*changefeed.Subscription, error)
}

type sessionGate interface {
	RefreshSession(h http.Handler) http.Handler
	RequireUser(h http.Handler) http.Handler
	RedirectAuthenticated(h http.Handler) http.Handler
	SetCookie(response http.ResponseWriter, s *session.Session) error
	ClearCookie(response http.ResponseWriter)
	SignOut(ctx context.Context, s *session.Session) error
}

type identityClient interface {
	AuthorizeURL(redirectTo string) string
	ExchangeCode(ctx context.Context, code string) (*session.Session, error)
}

type handler struct {
	db       storage
	feed     feed
	gate     sessionGate
	identity identityClient
	validate *validator.Validate
}

type indexPageData struct {
	Bookmarks  []models.Bookmark
	Alert      string
	DraftURL   string
	DraftTitle string
}

type authPageData struct {
	SignInURL string
}

// New builds the application router with logging, gzip, and session
// refresh middleware applied to every route, and the session gate
// guarding the protected ones.
func New(db storage, feed feed, gate sessionGate, identity identityClient) http.Handler {
	h := &handler{
		db:       db,
		feed:     feed,
		gate:     gate,
		identity: identity,
		validate: validator.New(),
	}

	router := chi.NewRouter()
	router.Use(logger.WithLoggingHTTPMiddleware)
	router.Use(gzippedhttp.UngzipRequest)
	router.Use(gzippedhttp.GzipResponse)
	router.Use(gate.RefreshSession)

	router.Group(func(protected chi.Router) {
		protected.Use(gate.RequireUser)
		protected.Get(`/`, h.getIndex)
		protected.Post(`/bookmarks`, h.postBookmarks)
		protected.Post(`/bookmarks/{id}/delete`, h.postDeleteBookmark)
		protected.Get(`/events`, h.getEvents)
	})

	router.With(gate.RedirectAuthenticated).Get(`/auth`, h.getAuth)
	router.Get(`/auth/callback`, h.getAuthCallback)
	router.Post(`/auth/signout`, h.postSignout)
	router.Get(`/ping`, h.getPing)

	return router
}

func (h *handler) renderIndex(response http.ResponseWriter, request *http.Request, data indexPageData) {
	response.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(response, "index", data); err != nil {
		logger.Log.Debugln("Error rendering the index page: ", zap.Error(err))
	}
}

func (h *handler) getIndex(response http.ResponseWriter, request *http.Request) {
	sess, _ := session.FromContext(request.Context())

	controller := bookmarks.New(h.db, nil, sess)
	controller.Load(request.Context())

	h.renderIndex(response, request, indexPageData{
		Bookmarks: controller.Snapshot(),
	})
}

func (h *handler) postBookmarks(response http.ResponseWriter, request *http.Request) {
	sess, _ := session.FromContext(request.Context())

	if err := request.ParseForm(); err != nil {
		http.Error(response, err.Error(), http.StatusBadRequest)
		return
	}

	draftURL := request.PostFormValue("url")
	draftTitle := request.PostFormValue("title")

	// Empty or whitespace-only drafts are a no-op: no store call, the
	// existing list stays as is.
	draft := models.CreateRequest{
		URL:   strings.TrimSpace(draftURL),
		Title: strings.TrimSpace(draftTitle),
	}
	if err := h.validate.Struct(draft); err != nil {
		http.Redirect(response, request, "/", http.StatusSeeOther)
		return
	}

	controller := bookmarks.New(h.db, nil, sess)

	if err := controller.Create(request.Context(), draftURL, draftTitle); err != nil {
		controller.Load(request.Context())
		h.renderIndex(response, request, indexPageData{
			Bookmarks:  controller.Snapshot(),
			Alert:      alertCreateFailed,
			DraftURL:   draftURL,
			DraftTitle: draftTitle,
		})
		return
	}

	http.Redirect(response, request, "/", http.StatusSeeOther)
}

func (h *handler) postDeleteBookmark(response http.ResponseWriter, request *http.Request) {
	sess, _ := session.FromContext(request.Context())

	id := chi.URLParam(request, "id")

	controller := bookmarks.New(h.db, nil, sess)

	if err := controller.Delete(request.Context(), id); err != nil {
		controller.Load(request.Context())
		h.renderIndex(response, request, indexPageData{
			Bookmarks: controller.Snapshot(),
			Alert:     alertDeleteFailed,
		})
		return
	}

	http.Redirect(response, request, "/", http.StatusSeeOther)
}

func requestBaseURL(request *http.Request) string {
	scheme := "http"
	if request.TLS != nil || request.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	return scheme + "://" + request.Host
}

func (h *handler) getAuth(response http.ResponseWriter, request *http.Request) {
	response.Header().Set("Content-Type", "text/html; charset=utf-8")

	data := authPageData{
		SignInURL: h.identity.AuthorizeURL(requestBaseURL(request) + "/auth/callback"),
	}
	if err := pages.ExecuteTemplate(response, "auth", data); err != nil {
		logger.Log.Debugln("Error rendering the auth page: ", zap.Error(err))
	}
}

func (h *handler) getAuthCallback(response http.ResponseWriter, request *http.Request) {
	code := request.URL.Query().Get("code")
	if code == "" {
		http.Redirect(response, request, "/auth", http.StatusSeeOther)
		return
	}

	sess, err := h.identity.ExchangeCode(request.Context(), code)
	if err != nil {
		logger.Log.Debugln("Error calling the `h.identity.ExchangeCode()`: ", zap.Error(err))
		http.Redirect(response, request, "/auth", http.StatusSeeOther)
		return
	}

	if err := h.gate.SetCookie(response, sess); err != nil {
		logger.Log.Debugln("Error calling the `h.gate.SetCookie()`: ", zap.Error(err))
		http.Redirect(response, request, "/auth", http.StatusSeeOther)
		return
	}

	http.Redirect(response, request, "/", http.StatusSeeOther)
}

func (h *handler) postSignout(response http.ResponseWriter, request *http.Request) {
	sess, ok := session.FromContext(request.Context())
	if !ok {
		http.Redirect(response, request, "/auth", http.StatusSeeOther)
		return
	}

	if err := h.gate.SignOut(request.Context(), sess); err != nil {
		logger.Log.Debugln("Error calling the `h.gate.SignOut()`: ", zap.Error(err))
		response.Header().Set("Content-Type", "application/json")
		response.WriteHeader(http.StatusInternalServerError)
		_, _ = response.Write([]byte(`{"error":"Sign out failed"}`))
		return
	}

	h.gate.ClearCookie(response)
	http.Redirect(response, request, "/auth", http.StatusSeeOther)
}

func (h *handler) getPing(response http.ResponseWriter, request *http.Request) {
	if err := h.db.Ping(request.Context()); err != nil {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}
