package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Logger   Logger   `mapstructure:"logger"`
	Auth     Auth     `mapstructure:"auth"`
	Journal  Journal  `mapstructure:"journal"`
	Webhook  Webhook  `mapstructure:"webhook"`
	Quotes   Quotes   `mapstructure:"quotes"`
	Events   Events   `mapstructure:"events"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Version        string        `mapstructure:"version"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Auth holds the dashboard session settings.
type Auth struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

// Journal holds the trade lifecycle and metrics settings.
type Journal struct {
	StartingBalance            float64 `mapstructure:"starting_balance"`
	AllowMultipleOpenPerSymbol bool    `mapstructure:"allow_multiple_open_per_symbol"`
	Timezone                   string  `mapstructure:"timezone"`
	DefaultLotSize             float64 `mapstructure:"default_lot_size"`
	// SnapshotInterval is how often the server refreshes every user's daily
	// snapshot. Zero disables the background refresh.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// Webhook holds the per API key throttling of the trading terminal webhook.
type Webhook struct {
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Quotes holds the configuration of the price feed used to mark open trades to market.
type Quotes struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	ApiKey         string        `mapstructure:"apiKey"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// Events holds the configuration of the trade lifecycle event stream.
type Events struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Location returns the time zone used to cut calendar days for snapshots.
func (j Journal) Location() (*time.Location, error) {
	if j.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(j.Timezone)
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	err = config.Validate()
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.version", "1.0.0")

	v.SetDefault("database.dsn", "file:journal.db?_busy_timeout=5000&_foreign_keys=on")
	v.SetDefault("database.max_open_conns", 1)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("journal.starting_balance", 10000)
	v.SetDefault("journal.allow_multiple_open_per_symbol", true)
	v.SetDefault("journal.timezone", "UTC")
	v.SetDefault("journal.default_lot_size", 0.01)
	v.SetDefault("journal.snapshot_interval", time.Hour)

	v.SetDefault("webhook.rate_limit", 5)       // requests per second per API key
	v.SetDefault("webhook.rate_limit_burst", 10) // burst size

	v.SetDefault("quotes.enabled", false)
	v.SetDefault("quotes.timeout", 5*time.Second)
	v.SetDefault("quotes.rate_limit", 10)
	v.SetDefault("quotes.rate_limit_burst", 5)

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "journal.trades")
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Journal.StartingBalance < 0 {
		return errors.New("journal.starting_balance must not be negative")
	}
	if c.Journal.DefaultLotSize <= 0 {
		return errors.New("journal.default_lot_size must be positive")
	}
	if c.Journal.SnapshotInterval < 0 {
		return errors.New("journal.snapshot_interval must not be negative")
	}
	if _, err := c.Journal.Location(); err != nil {
		return fmt.Errorf("journal.timezone: %w", err)
	}
	if c.Quotes.Enabled && c.Quotes.BaseURL == "" {
		return errors.New("quotes.base_url is required when quotes are enabled")
	}
	return nil
}
