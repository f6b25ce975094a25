// Package app initializes and runs the main application service.
// It configures logging, storage, the change feed, the session gate,
// and routing, and handles graceful shutdown.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patric-chuzhbe/bookmarkd/internal/changefeed"
	"github.com/patric-chuzhbe/bookmarkd/internal/config"
	"github.com/patric-chuzhbe/bookmarkd/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookmarkd/internal/db/postgresdb"
	"github.com/patric-chuzhbe/bookmarkd/internal/db/restdb"
	"github.com/patric-chuzhbe/bookmarkd/internal/db/storage"
	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
	"github.com/patric-chuzhbe/bookmarkd/internal/router"
	"github.com/patric-chuzhbe/bookmarkd/internal/session"
)

// memoryDSN selects the in-memory store, for running without any
// database at hand.
const memoryDSN = "memory"

// App encapsulates the configuration, HTTP handler, storage backend,
// and change feed needed to run the bookmark manager.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage and the matching change feed
// - setting up the session gate
// - setting up the router and middleware
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var feed changefeed.Feed
	app.db, feed, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	sessionSigningSecretKey, err := base64.URLEncoding.DecodeString(app.cfg.SessionSecret)
	if err != nil {
		return nil, err
	}

	identity := session.NewClient(app.cfg.BackendAddr, app.cfg.BackendKey)

	app.httpHandler = router.New(
		app.db,
		feed,
		session.New(
			identity,
			app.cfg.AuthCookieName,
			sessionSigningSecretKey,
		),
		identity,
	)

	return app, nil
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	switch cfg.DatabaseDSN {
	case "":
		return models.StoreTypeRest
	case memoryDSN:
		return models.StoreTypeMemory
	default:
		return models.StoreTypePostgresql
	}
}

// getStorageByType selects the row store and the change-feed transport
// that observes it: the backend's row API pairs with its realtime
// websocket, a direct postgres connection pairs with LISTEN/NOTIFY,
// and the in-memory store pairs with the in-process broker.
func getStorageByType(cfg *config.Config) (storage.Storage, changefeed.Feed, error) {
	switch getAvailableStorageType(cfg) {
	case models.StoreTypeRest:
		return restdb.New(cfg.BackendAddr, cfg.BackendKey),
			changefeed.NewRealtime(cfg.BackendAddr, cfg.BackendKey),
			nil

	case models.StoreTypePostgresql:
		db, err := postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
		)
		if err != nil {
			return nil, nil, err
		}
		return db, changefeed.NewPGFeed(cfg.DatabaseDSN), nil

	case models.StoreTypeMemory:
		feed := changefeed.NewMemory()
		db, err := memorystorage.New(feed)
		if err != nil {
			return nil, nil, err
		}
		return db, feed, nil
	}

	return nil, nil, errors.New("unknown storage type")
}
