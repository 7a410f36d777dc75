// Package storetest provides isolated in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/config"
	"trading-journal/internal/database"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
)

// New opens a fresh migrated in-memory database for one test.
// Each call gets its own named shared-cache database so tests stay isolated.
func New(t *testing.T) *store.Store {
	t.Helper()

	db, err := database.NewDatabase(config.Database{
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return store.New(db)
}

// CreateUser inserts a trader with the given API key.
func CreateUser(t *testing.T, s *store.Store, email, apiKey string) *models.User {
	t.Helper()

	user := &models.User{
		Name:         "Test Trader",
		Email:        email,
		PasswordHash: "not-a-real-hash",
		Role:         models.RoleTrader,
		APIKey:       apiKey,
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}
