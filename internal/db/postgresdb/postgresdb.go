// Package postgresdb provides a PostgreSQL-backed implementation of the
// storage interface for deployments that talk to the database directly
// instead of through the managed backend's row API. Every mutation
// emits a NOTIFY on the bookmarks channel so the postgres change feed
// observes local writes. The bookmarks table is expected to exist.
package postgresdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkd/internal/changefeed"
	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

// PostgresDB is a PostgreSQL-backed bookmark store.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

// New establishes a connection to the PostgreSQL database and verifies
// it is reachable within connectionTimeout.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
) (*PostgresDB, error) {
	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		return nil, err
	}

	return result, nil
}

// SelectByUser returns the user's bookmarks ordered by creation time
// descending.
func (db *PostgresDB) SelectByUser(ctx context.Context, userID string) ([]models.Bookmark, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT id, user_id, url, title, created_at
				FROM bookmarks
				WHERE user_id = $1
				ORDER BY created_at DESC
		`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Bookmark{}
	for rows.Next() {
		var bookmark models.Bookmark
		err = rows.Scan(
			&bookmark.ID,
			&bookmark.UserID,
			&bookmark.URL,
			&bookmark.Title,
			&bookmark.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		result = append(result, bookmark)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Insert stores a new bookmark; id and created_at are assigned by the
// database.
func (db *PostgresDB) Insert(ctx context.Context, bookmark models.Bookmark) error {
	row := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO bookmarks (user_id, url, title)
				VALUES ($1, $2, $3)
				RETURNING id, created_at
		`,
		bookmark.UserID,
		bookmark.URL,
		bookmark.Title,
	)
	if err := row.Scan(&bookmark.ID, &bookmark.CreatedAt); err != nil {
		return err
	}

	db.notify(ctx, models.ChangeEvent{
		Action:   models.ActionInsert,
		Bookmark: bookmark,
	})

	return nil
}

// Delete removes the bookmark with the given id. A no-row-matched
// delete is silent, per the store's own semantics.
func (db *PostgresDB) Delete(ctx context.Context, id string) error {
	row := db.database.QueryRowContext(
		ctx,
		`
			DELETE FROM bookmarks
				WHERE id = $1
				RETURNING id, user_id, url, title, created_at
		`,
		id,
	)

	var bookmark models.Bookmark
	err := row.Scan(
		&bookmark.ID,
		&bookmark.UserID,
		&bookmark.URL,
		&bookmark.Title,
		&bookmark.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	db.notify(ctx, models.ChangeEvent{
		Action:   models.ActionDelete,
		Bookmark: bookmark,
	})

	return nil
}

// notify publishes the change on the bookmarks channel. A failed
// notification is logged but does not fail the mutation: subscribers
// fall back to their next full reload.
func (db *PostgresDB) notify(ctx context.Context, event models.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Debugln("Error marshalling a change event: ", zap.Error(err))
		return
	}

	_, err = db.database.ExecContext(
		ctx,
		`SELECT pg_notify($1, $2)`,
		changefeed.NotifyChannel,
		string(payload),
	)
	if err != nil {
		logger.Log.Debugln("Error calling the `pg_notify()`: ", zap.Error(err))
	}
}

// Ping checks the database connection.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}
