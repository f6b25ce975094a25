package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookmarkd/internal/changefeed"
	"github.com/patric-chuzhbe/bookmarkd/internal/config"
	"github.com/patric-chuzhbe/bookmarkd/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookmarkd/internal/db/restdb"
	"github.com/patric-chuzhbe/bookmarkd/internal/models"
)

func TestStorageTypeSelection(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		expected int
	}{
		{name: "no DSN selects the backend row API", dsn: "", expected: models.StoreTypeRest},
		{name: "memory DSN selects the in-memory store", dsn: "memory", expected: models.StoreTypeMemory},
		{
			name:     "anything else is a postgres DSN",
			dsn:      "postgres://localhost:5432/bookmarkd",
			expected: models.StoreTypePostgresql,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, getAvailableStorageType(&config.Config{DatabaseDSN: test.dsn}))
		})
	}
}

func TestRestStoragePairsWithRealtimeFeed(t *testing.T) {
	db, feed, err := getStorageByType(&config.Config{
		BackendAddr: "https://backend.example.com",
		BackendKey:  "test-key",
	})
	require.NoError(t, err)

	assert.IsType(t, &restdb.RestDB{}, db)
	assert.IsType(t, &changefeed.Realtime{}, feed)
}

func TestMemoryStoragePairsWithInProcessBroker(t *testing.T) {
	db, feed, err := getStorageByType(&config.Config{DatabaseDSN: "memory"})
	require.NoError(t, err)

	assert.IsType(t, &memorystorage.MemoryStorage{}, db)
	assert.IsType(t, &changefeed.Memory{}, feed)
}
