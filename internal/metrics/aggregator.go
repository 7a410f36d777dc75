package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-journal/internal/apperr"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
)

// DefaultStartingBalance is the account size assumed when nothing else is configured.
const DefaultStartingBalance = 10000

// RecentTradesLimit is the number of trades shown on the dashboard.
const RecentTradesLimit = 10

// Store is the persistence the aggregator reads and writes.
type Store interface {
	UserByID(ctx context.Context, userID string) (*models.User, error)
	TradesByStatus(ctx context.Context, userID string, status models.Status) ([]models.Trade, error)
	ListTrades(ctx context.Context, userID string, f store.TradeFilter) ([]models.Trade, error)
	UpsertDailyMetric(ctx context.Context, m *models.JournalMetric) (*models.JournalMetric, error)
	DailyMetrics(ctx context.Context, userID string, from, to time.Time) ([]models.JournalMetric, error)
	LatestMetricBefore(ctx context.Context, userID string, t time.Time) (*models.JournalMetric, error)
}

// MarkToMarket values the floating profit of a user's open trades.
type MarkToMarket interface {
	MarkToMarket(ctx context.Context, open []models.Trade) (float64, error)
}

// MarkToMarketFunc adapts a function to MarkToMarket.
type MarkToMarketFunc func(ctx context.Context, open []models.Trade) (float64, error)

func (f MarkToMarketFunc) MarkToMarket(ctx context.Context, open []models.Trade) (float64, error) {
	return f(ctx, open)
}

// NoMarkToMarket ignores open positions, so equity equals balance.
var NoMarkToMarket = MarkToMarketFunc(func(context.Context, []models.Trade) (float64, error) {
	return 0, nil
})

// Options configures an Aggregator.
type Options struct {
	StartingBalance float64
	Location        *time.Location
	MarkToMarket    MarkToMarket
	// MarkTimeout bounds one MarkToMarket call. Zero leaves it to the caller's context.
	MarkTimeout time.Duration
	Now         func() time.Time
}

// Aggregator computes balances and dashboards for one user at a time.
type Aggregator struct {
	store  Store
	logger *zap.Logger
	opts   Options
}

// NewAggregator creates an Aggregator; unset options fall back to defaults.
func NewAggregator(s Store, logger *zap.Logger, opts Options) *Aggregator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MarkToMarket == nil {
		opts.MarkToMarket = NoMarkToMarket
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{store: s, logger: logger.Named("metrics"), opts: opts}
}

// StartingBalance returns the user's own starting balance or the configured one.
func (a *Aggregator) StartingBalance(user *models.User) float64 {
	if user.StartingBalance != nil {
		return *user.StartingBalance
	}
	return a.opts.StartingBalance
}

// equity adds the floating profit of open trades to balance. A failing or slow
// price source degrades to balance.
func (a *Aggregator) equity(ctx context.Context, userID string, balance float64, open []models.Trade) float64 {
	if len(open) == 0 {
		return balance
	}
	if a.opts.MarkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.MarkTimeout)
		defer cancel()
	}
	floating, err := a.opts.MarkToMarket.MarkToMarket(ctx, open)
	if err != nil {
		a.logger.Warn("Mark to market failed, using balance as equity",
			zap.String("user_id", userID), zap.Int("open_trades", len(open)), zap.Error(err))
		return balance
	}
	return decimal.NewFromFloat(balance).Add(decimal.NewFromFloat(floating)).InexactFloat64()
}

func (a *Aggregator) user(ctx context.Context, userID string) (*models.User, error) {
	user, err := a.store.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	return user, nil
}

// RefreshDailySnapshot recomputes the user's balance from all closed trades,
// prices the open ones and upserts the result as the snapshot for asOf's
// calendar day. It may call the price feed, so it must not run inside a
// transaction.
func (a *Aggregator) RefreshDailySnapshot(ctx context.Context, userID string, asOf time.Time) (*models.JournalMetric, error) {
	return a.refresh(ctx, userID, asOf, true)
}

// RefreshBalance is RefreshDailySnapshot without pricing open trades: equity
// is written equal to balance. It never leaves the database and is safe
// inside a transaction.
func (a *Aggregator) RefreshBalance(ctx context.Context, userID string, asOf time.Time) (*models.JournalMetric, error) {
	return a.refresh(ctx, userID, asOf, false)
}

func (a *Aggregator) refresh(ctx context.Context, userID string, asOf time.Time, markToMarket bool) (*models.JournalMetric, error) {
	user, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	closed, err := a.store.TradesByStatus(ctx, userID, models.StatusClosed)
	if err != nil {
		return nil, apperr.Internal("failed to load closed trades", err)
	}

	balance := decimal.NewFromFloat(a.StartingBalance(user)).
		Add(decimal.NewFromFloat(TotalProfit(closed))).
		InexactFloat64()

	equity := balance
	if markToMarket {
		open, err := a.store.TradesByStatus(ctx, userID, models.StatusOpen)
		if err != nil {
			return nil, apperr.Internal("failed to load open trades", err)
		}
		equity = a.equity(ctx, userID, balance, open)
	}

	snapshot, err := a.store.UpsertDailyMetric(ctx, &models.JournalMetric{
		UserID:  userID,
		Date:    models.Day(asOf, a.opts.Location),
		Balance: balance,
		Equity:  equity,
	})
	if err != nil {
		return nil, apperr.Internal("failed to save daily snapshot", err)
	}

	a.logger.Debug("Daily snapshot refreshed",
		zap.String("user_id", userID),
		zap.Time("date", snapshot.Date),
		zap.Float64("balance", snapshot.Balance),
		zap.Float64("equity", snapshot.Equity))
	return snapshot, nil
}

// EquityCurve returns rangeDays points ending today, carrying forward the last
// snapshot taken before the range when the range starts without one.
func (a *Aggregator) EquityCurve(ctx context.Context, userID string, rangeDays int) ([]EquityPoint, error) {
	user, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.equityCurve(ctx, user, rangeDays)
}

func (a *Aggregator) equityCurve(ctx context.Context, user *models.User, rangeDays int) ([]EquityPoint, error) {
	if rangeDays <= 0 {
		return nil, apperr.Validation("range must be a positive number of days")
	}

	end := a.opts.Now().In(a.opts.Location)
	to := models.Day(end, a.opts.Location)
	from := models.Day(end.AddDate(0, 0, -(rangeDays - 1)), a.opts.Location)

	snapshots, err := a.store.DailyMetrics(ctx, user.ID, from, to)
	if err != nil {
		return nil, apperr.Internal("failed to load daily snapshots", err)
	}

	prior, err := a.store.LatestMetricBefore(ctx, user.ID, from)
	switch {
	case err == nil:
		snapshots = append([]models.JournalMetric{*prior}, snapshots...)
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperr.Internal("failed to load prior snapshot", err)
	}

	return BuildEquityCurve(snapshots, rangeDays, end, a.StartingBalance(user)), nil
}

// Summary holds the headline dashboard figures.
type Summary struct {
	TotalBalance     float64      `json:"totalBalance"`
	Equity           float64      `json:"equity"`
	TotalPnL         float64      `json:"totalPnL"`
	DailyPnL         float64      `json:"dailyPnL"`
	WinRate          float64      `json:"winRate"`
	ProfitFactor     ProfitFactor `json:"profitFactor"`
	RiskRewardRatio  float64      `json:"riskRewardRatio"`
	RelativeDrawdown float64      `json:"relativeDrawdown"`
	MaxDrawdown      float64      `json:"maxDrawdown"`
	AverageWin       float64      `json:"averageWin"`
	AverageLoss      float64      `json:"averageLoss"`
	TotalTrades      int          `json:"totalTrades"`
	OpenTrades       int          `json:"openTrades"`
	WinningTrades    int          `json:"winningTrades"`
	LosingTrades     int          `json:"losingTrades"`
}

// Dashboard is everything the journal's home page shows.
type Dashboard struct {
	Metrics      Summary        `json:"metrics"`
	EquityCurve  []EquityPoint  `json:"equityCurve"`
	RecentTrades []models.Trade `json:"recentTrades"`
}

// Dashboard computes the summary, equity curve and recent trades for a user.
func (a *Aggregator) Dashboard(ctx context.Context, userID string, rangeDays int) (*Dashboard, error) {
	user, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	trades, err := a.store.ListTrades(ctx, userID, store.TradeFilter{})
	if err != nil {
		return nil, apperr.Internal("failed to load trades", err)
	}

	curve, err := a.equityCurve(ctx, user, rangeDays)
	if err != nil {
		return nil, err
	}

	var open []models.Trade
	summary := Summary{TotalTrades: len(trades)}
	for _, t := range trades {
		switch {
		case t.Status == models.StatusOpen:
			open = append(open, t)
		case t.Profit != nil && *t.Profit > 0:
			summary.WinningTrades++
		case t.Profit != nil && *t.Profit < 0:
			summary.LosingTrades++
		}
	}
	summary.OpenTrades = len(open)

	summary.TotalPnL = TotalProfit(trades)
	summary.TotalBalance = decimal.NewFromFloat(a.StartingBalance(user)).
		Add(decimal.NewFromFloat(summary.TotalPnL)).
		InexactFloat64()
	summary.Equity = a.equity(ctx, userID, summary.TotalBalance, open)
	summary.DailyPnL = DailyPnL(trades, a.opts.Now(), a.opts.Location)
	summary.WinRate = WinRate(trades)
	summary.ProfitFactor = ComputeProfitFactor(trades)
	summary.RiskRewardRatio = RiskReward(trades)
	summary.AverageWin = AverageWin(trades)
	summary.AverageLoss = AverageLoss(trades)
	summary.RelativeDrawdown = RelativeDrawdown(curve)
	summary.MaxDrawdown = MaxDrawdown(curve)

	recent := trades
	if len(recent) > RecentTradesLimit {
		recent = recent[:RecentTradesLimit]
	}

	return &Dashboard{Metrics: summary, EquityCurve: curve, RecentTrades: recent}, nil
}

func (s Summary) String() string {
	return fmt.Sprintf("balance=%.2f equity=%.2f winRate=%.1f%% profitFactor=%s trades=%d",
		s.TotalBalance, s.Equity, s.WinRate, s.ProfitFactor, s.TotalTrades)
}
