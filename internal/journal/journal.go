// Package journal applies trade lifecycle events to a user's journal.
package journal

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"trading-journal/internal/apperr"
	"trading-journal/internal/events"
	"trading-journal/internal/id"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
	"trading-journal/internal/validation"
)

// DefaultLotSize is used when an event omits the lot size.
const DefaultLotSize = 0.01

// MaxRecentTrades caps RecentTrades.
const MaxRecentTrades = 50

// Store is the persistence the manager needs.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	UserByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
	CreateTrade(ctx context.Context, trade *models.Trade) error
	TradeByID(ctx context.Context, userID, tradeID string) (*models.Trade, error)
	LatestOpenTrade(ctx context.Context, userID, symbol string) (*models.Trade, error)
	CloseTrade(ctx context.Context, tradeID string, exitPrice, profit float64, at time.Time) (bool, error)
	ListTrades(ctx context.Context, userID string, f store.TradeFilter) ([]models.Trade, error)
}

// SnapshotRefresher rewrites a user's daily balance snapshot. RefreshBalance
// runs inside the close transaction and must not leave the database;
// RefreshDailySnapshot may price open trades and runs after commit.
type SnapshotRefresher interface {
	RefreshBalance(ctx context.Context, userID string, asOf time.Time) (*models.JournalMetric, error)
	RefreshDailySnapshot(ctx context.Context, userID string, asOf time.Time) (*models.JournalMetric, error)
}

// Options configures a Manager.
type Options struct {
	AllowMultipleOpenPerSymbol bool
	DefaultLotSize             float64
	// RevalueOpenTrades re-prices the owner's open trades after each committed
	// close. Only useful when the refresher has a price feed.
	RevalueOpenTrades bool
	Now               func() time.Time
}

// Manager moves trades from OPEN to CLOSED.
type Manager struct {
	store     Store
	snapshots SnapshotRefresher
	publisher events.Publisher
	logger    *zap.Logger
	opts      Options
}

// NewManager creates a Manager. A nil publisher drops events.
func NewManager(s Store, snapshots SnapshotRefresher, publisher events.Publisher, logger *zap.Logger, opts Options) *Manager {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.DefaultLotSize <= 0 {
		opts.DefaultLotSize = DefaultLotSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:     s,
		snapshots: snapshots,
		publisher: publisher,
		logger:    logger.Named("journal"),
		opts:      opts,
	}
}

// OpenEvent asks to open a position. Side defaults to BUY and LotSize to the
// configured default when omitted.
type OpenEvent struct {
	Symbol     string      `json:"symbol" validate:"required"`
	Side       models.Side `json:"type" validate:"omitempty,oneof=BUY SELL"`
	Price      float64     `json:"price" validate:"gt=0"`
	StopLoss   float64     `json:"sl" validate:"gt=0"`
	TakeProfit float64     `json:"tp" validate:"gt=0"`
	LotSize    *float64    `json:"lotSize" validate:"omitnil,gt=0"`
	Setup      string      `json:"setup"`
}

// CloseEvent asks to close the newest open position on Symbol. A nil Profit is
// computed from the entry and exit prices; any supplied value, zero included,
// is stored as is.
type CloseEvent struct {
	Symbol string   `json:"symbol" validate:"required"`
	Price  float64  `json:"price" validate:"gt=0"`
	Profit *float64 `json:"profit"`
}

// ManualTrade is a trade entered through the dashboard. A CLOSED trade needs
// ExitPrice; its Profit is computed when omitted.
type ManualTrade struct {
	Symbol        string        `json:"symbol" validate:"required"`
	Side          models.Side   `json:"type" validate:"required,oneof=BUY SELL"`
	EntryPrice    float64       `json:"entryPrice" validate:"gt=0"`
	ExitPrice     *float64      `json:"exitPrice" validate:"omitnil,gt=0"`
	StopLoss      float64       `json:"sl" validate:"gt=0"`
	TakeProfit    float64       `json:"tp" validate:"gt=0"`
	LotSize       float64       `json:"lotSize" validate:"gt=0"`
	Profit        *float64      `json:"profit"`
	Status        models.Status `json:"status" validate:"omitempty,oneof=OPEN CLOSED"`
	Setup         string        `json:"setup"`
	ScreenshotURL string        `json:"screenshotUrl" validate:"omitempty,url"`
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Authenticate resolves a webhook API key to its owner.
func (m *Manager) Authenticate(ctx context.Context, apiKey string) (*models.User, error) {
	return m.userByAPIKey(ctx, apiKey)
}

func (m *Manager) userByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	if apiKey == "" {
		return nil, apperr.Unauthorized("API key is required in x-api-key header")
	}
	user, err := m.store.UserByAPIKey(ctx, apiKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid API key")
	}
	if err != nil {
		return nil, apperr.Internal("failed to resolve API key", err)
	}
	return user, nil
}

// ApplyOpenEvent records a new OPEN trade for the owner of apiKey.
func (m *Manager) ApplyOpenEvent(ctx context.Context, apiKey string, e OpenEvent) (*models.Trade, error) {
	user, err := m.userByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	e.Symbol = normalizeSymbol(e.Symbol)
	if err := validation.Struct(e); err != nil {
		return nil, err
	}

	trade := &models.Trade{
		UserID:     user.ID,
		Symbol:     e.Symbol,
		Side:       e.Side,
		EntryPrice: e.Price,
		StopLoss:   &e.StopLoss,
		TakeProfit: &e.TakeProfit,
		LotSize:    m.opts.DefaultLotSize,
		Status:     models.StatusOpen,
		Setup:      e.Setup,
		Source:     models.SourceWebhook,
	}
	if trade.Side == "" {
		trade.Side = models.SideBuy
	}
	if e.LotSize != nil {
		trade.LotSize = *e.LotSize
	}

	err = m.store.WithTx(ctx, func(ctx context.Context) error {
		if !m.opts.AllowMultipleOpenPerSymbol {
			_, err := m.store.LatestOpenTrade(ctx, user.ID, trade.Symbol)
			switch {
			case err == nil:
				return apperr.Conflict("An open trade already exists for this symbol")
			case !errors.Is(err, store.ErrNotFound):
				return apperr.Internal("failed to look up open trade", err)
			}
		}
		if err := m.store.CreateTrade(ctx, trade); err != nil {
			return apperr.Internal("failed to open trade", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Trade opened",
		zap.String("user_id", user.ID),
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.Float64("entry_price", trade.EntryPrice),
		zap.Float64("lot_size", trade.LotSize))
	m.publish(ctx, events.TradeOpened, trade)
	return trade, nil
}

// ApplyCloseEvent closes the most recently opened OPEN trade on the event's
// symbol and refreshes the owner's daily snapshot in the same transaction.
func (m *Manager) ApplyCloseEvent(ctx context.Context, apiKey string, e CloseEvent) (*models.Trade, error) {
	user, err := m.userByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	e.Symbol = normalizeSymbol(e.Symbol)
	if err := validation.Struct(e); err != nil {
		return nil, err
	}

	var closed *models.Trade
	err = m.store.WithTx(ctx, func(ctx context.Context) error {
		trade, err := m.store.LatestOpenTrade(ctx, user.ID, e.Symbol)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("No open trade found for this symbol")
		}
		if err != nil {
			return apperr.Internal("failed to look up open trade", err)
		}

		closed, err = m.close(ctx, trade, e.Price, e.Profit)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.closedLog(closed)
	m.revalue(ctx, closed.UserID, *closed.ClosedAt)
	m.publish(ctx, events.TradeClosed, closed)
	return closed, nil
}

// CloseTradeByID closes one of userID's trades from the dashboard.
func (m *Manager) CloseTradeByID(ctx context.Context, userID, tradeID string, price float64, profit *float64) (*models.Trade, error) {
	if price <= 0 {
		return nil, apperr.Validation("Invalid request data", apperr.FieldError{Field: "price", Message: "must be greater than 0"})
	}

	if _, err := id.Parse(tradeID); err != nil {
		return nil, apperr.NotFound("Trade not found")
	}

	var closed *models.Trade
	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		trade, err := m.store.TradeByID(ctx, userID, tradeID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Trade not found")
		}
		if err != nil {
			return apperr.Internal("failed to load trade", err)
		}
		if trade.IsClosed() {
			return apperr.Conflict("Trade is already closed")
		}

		closed, err = m.close(ctx, trade, price, profit)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.closedLog(closed)
	m.revalue(ctx, closed.UserID, *closed.ClosedAt)
	m.publish(ctx, events.TradeClosed, closed)
	return closed, nil
}

// close runs inside a transaction. The conditional update is the only guard
// against a concurrent close of the same trade.
func (m *Manager) close(ctx context.Context, trade *models.Trade, price float64, profit *float64) (*models.Trade, error) {
	realized := trade.ProfitAt(price)
	if profit != nil {
		realized = *profit
	}
	at := m.opts.Now().UTC()

	ok, err := m.store.CloseTrade(ctx, trade.ID, price, realized, at)
	if err != nil {
		return nil, apperr.Internal("failed to close trade", err)
	}
	if !ok {
		return nil, apperr.Conflict("Trade is already closed")
	}
	trade.Close(price, realized, at)

	if _, err := m.snapshots.RefreshBalance(ctx, trade.UserID, at); err != nil {
		return nil, err
	}
	return trade, nil
}

// RecordManualTrade stores a trade entered by hand. Already closed trades
// refresh the daily snapshot.
func (m *Manager) RecordManualTrade(ctx context.Context, userID string, in ManualTrade) (*models.Trade, error) {
	in.Symbol = normalizeSymbol(in.Symbol)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Status == models.StatusClosed && in.ExitPrice == nil {
		return nil, apperr.Validation("Invalid request data",
			apperr.FieldError{Field: "exitPrice", Message: "is required for a closed trade"})
	}

	trade := &models.Trade{
		UserID:        userID,
		Symbol:        in.Symbol,
		Side:          in.Side,
		EntryPrice:    in.EntryPrice,
		StopLoss:      &in.StopLoss,
		TakeProfit:    &in.TakeProfit,
		LotSize:       in.LotSize,
		Status:        models.StatusOpen,
		Setup:         in.Setup,
		ScreenshotURL: in.ScreenshotURL,
		Source:        models.SourceManual,
	}
	if in.Status == models.StatusClosed {
		profit := trade.ProfitAt(*in.ExitPrice)
		if in.Profit != nil {
			profit = *in.Profit
		}
		trade.Close(*in.ExitPrice, profit, m.opts.Now().UTC())
	}

	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := m.store.UserByID(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("User not found")
			}
			return apperr.Internal("failed to load user", err)
		}
		if err := m.store.CreateTrade(ctx, trade); err != nil {
			return apperr.Internal("failed to record trade", err)
		}
		if trade.IsClosed() {
			if _, err := m.snapshots.RefreshBalance(ctx, userID, *trade.ClosedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Manual trade recorded",
		zap.String("user_id", userID),
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("status", string(trade.Status)))
	if trade.IsClosed() {
		m.revalue(ctx, userID, *trade.ClosedAt)
		m.publish(ctx, events.TradeClosed, trade)
	} else {
		m.publish(ctx, events.TradeOpened, trade)
	}
	return trade, nil
}

// RecentTrades returns the newest trades of the owner of apiKey. limit is
// clamped to [1, MaxRecentTrades].
func (m *Manager) RecentTrades(ctx context.Context, apiKey string, limit int) ([]models.Trade, error) {
	user, err := m.userByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	limit = max(1, min(limit, MaxRecentTrades))
	trades, err := m.store.ListTrades(ctx, user.ID, store.TradeFilter{Limit: limit})
	if err != nil {
		return nil, apperr.Internal("failed to list trades", err)
	}
	return trades, nil
}

func (m *Manager) closedLog(trade *models.Trade) {
	m.logger.Info("Trade closed",
		zap.String("user_id", trade.UserID),
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.Float64("exit_price", *trade.ExitPrice),
		zap.Float64("profit", *trade.Profit))
}

// revalue prices the remaining open trades into today's snapshot. The close
// is already committed, so a failure only leaves equity equal to balance
// until the next refresh.
func (m *Manager) revalue(ctx context.Context, userID string, at time.Time) {
	if !m.opts.RevalueOpenTrades {
		return
	}
	if _, err := m.snapshots.RefreshDailySnapshot(ctx, userID, at); err != nil {
		m.logger.Warn("Failed to revalue open trades",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// publish never fails the caller; the transition is already committed.
func (m *Manager) publish(ctx context.Context, t events.Type, trade *models.Trade) {
	if err := m.publisher.Publish(ctx, events.NewTradeEvent(t, trade, m.opts.Now())); err != nil {
		m.logger.Warn("Failed to publish trade event",
			zap.String("type", string(t)),
			zap.String("trade_id", trade.ID),
			zap.Error(err))
	}
}
