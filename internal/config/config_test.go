package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 10000.0, cfg.Journal.StartingBalance)
	assert.True(t, cfg.Journal.AllowMultipleOpenPerSymbol)
	assert.Equal(t, 0.01, cfg.Journal.DefaultLotSize)
	assert.Equal(t, time.Hour, cfg.Journal.SnapshotInterval)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Quotes.Enabled)
	assert.Equal(t, "journal.trades", cfg.Events.Topic)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yml := `
server:
  port: 8081
journal:
  starting_balance: 25000
  allow_multiple_open_per_symbol: false
  timezone: Europe/Madrid
logger:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o600))
	t.Setenv("LOGGER_FORMAT", "json")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 25000.0, cfg.Journal.StartingBalance)
	assert.False(t, cfg.Journal.AllowMultipleOpenPerSymbol)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)

	loc, err := cfg.Journal.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", loc.String())
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "Negative starting balance",
			mutate: func(c *Config) { c.Journal.StartingBalance = -1 },
			errMsg: "starting_balance",
		},
		{
			name:   "Zero default lot size",
			mutate: func(c *Config) { c.Journal.DefaultLotSize = 0 },
			errMsg: "default_lot_size",
		},
		{
			name:   "Negative snapshot interval",
			mutate: func(c *Config) { c.Journal.SnapshotInterval = -time.Second },
			errMsg: "snapshot_interval",
		},
		{
			name:   "Unknown timezone",
			mutate: func(c *Config) { c.Journal.Timezone = "Mars/Olympus" },
			errMsg: "timezone",
		},
		{
			name:   "Quotes without URL",
			mutate: func(c *Config) { c.Quotes.Enabled = true },
			errMsg: "base_url",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Journal: Journal{StartingBalance: 10000, DefaultLotSize: 0.01, Timezone: "UTC"}}
			tc.mutate(&cfg)

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
