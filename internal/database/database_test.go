package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/config"
	"trading-journal/internal/models"
)

func TestNewDatabase_MigratesSchema(t *testing.T) {
	db, err := NewDatabase(config.Database{
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.True(t, db.Migrator().HasIndex(&models.JournalMetric{}, "idx_metrics_user_date"))
	assert.True(t, db.Migrator().HasIndex(&models.Trade{}, "idx_trades_lookup"))

	// Migrating twice keeps the schema intact.
	assert.NoError(t, AutoMigrate(db))
	assert.NoError(t, Ping(context.Background(), db))
}
