package cli

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"trading-journal/internal/auth"
	"trading-journal/internal/config"
	"trading-journal/internal/database"
	"trading-journal/internal/events"
	"trading-journal/internal/journal"
	"trading-journal/internal/logger"
	"trading-journal/internal/metrics"
	"trading-journal/internal/quotes"
	"trading-journal/internal/store"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	db        *gorm.DB
	store     *store.Store
	publisher events.Publisher
	metrics   *metrics.Aggregator
	journal   *journal.Manager
	auth      *auth.Service
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return nil, fmt.Errorf("could not create logger: %w", err)
	}

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Debug("Database connection successful and schema migrated.")

	loc, err := cfg.Journal.Location()
	if err != nil {
		return nil, err
	}

	s := store.New(db)
	aggOpts := metrics.Options{
		StartingBalance: cfg.Journal.StartingBalance,
		Location:        loc,
	}
	if cfg.Quotes.Enabled {
		aggOpts.MarkToMarket = quotes.NewMarker(quotes.NewClient(cfg.Quotes, log))
		aggOpts.MarkTimeout = cfg.Quotes.Timeout
		log.Info("Open trades are marked to market", zap.String("quotes", cfg.Quotes.BaseURL))
	}
	agg := metrics.NewAggregator(s, log, aggOpts)

	publisher := events.NewPublisher(cfg.Events, log)
	manager := journal.NewManager(s, agg, publisher, log, journal.Options{
		AllowMultipleOpenPerSymbol: cfg.Journal.AllowMultipleOpenPerSymbol,
		DefaultLotSize:             cfg.Journal.DefaultLotSize,
		RevalueOpenTrades:          cfg.Quotes.Enabled,
	})

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		store:     s,
		publisher: publisher,
		metrics:   agg,
		journal:   manager,
		auth:      auth.NewService(s, log, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.BcryptCost),
	}, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("Failed to close event publisher", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
