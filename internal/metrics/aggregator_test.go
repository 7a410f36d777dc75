package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trading-journal/internal/apperr"
	"trading-journal/internal/metrics"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
	"trading-journal/internal/store/storetest"
)

// MockMarker is a mock implementation of metrics.MarkToMarket.
type MockMarker struct {
	mock.Mock
}

func (m *MockMarker) MarkToMarket(ctx context.Context, open []models.Trade) (float64, error) {
	args := m.Called(ctx, open)
	return args.Get(0).(float64), args.Error(1)
}

func ptr(v float64) *float64 { return &v }

var fixedNow = time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

func newAggregator(s *store.Store, marker metrics.MarkToMarket) *metrics.Aggregator {
	return metrics.NewAggregator(s, zap.NewNop(), metrics.Options{
		StartingBalance: metrics.DefaultStartingBalance,
		Location:        time.UTC,
		MarkToMarket:    marker,
		Now:             func() time.Time { return fixedNow },
	})
}

func addTrade(t *testing.T, s *store.Store, userID string, side models.Side, entry, exit, lot float64) *models.Trade {
	t.Helper()
	trade := &models.Trade{
		UserID:     userID,
		Symbol:     "EURUSD",
		Side:       side,
		EntryPrice: entry,
		StopLoss:   ptr(entry * 0.99),
		TakeProfit: ptr(entry * 1.02),
		LotSize:    lot,
		Status:     models.StatusOpen,
		Source:     models.SourceManual,
	}
	if exit > 0 {
		trade.Close(exit, models.Profit(side, entry, exit, lot), fixedNow)
	}
	require.NoError(t, s.CreateTrade(context.Background(), trade))
	return trade
}

func TestRefreshDailySnapshot_UpsertsPerDay(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	agg := newAggregator(s, nil)

	addTrade(t, s, user.ID, models.SideBuy, 1.0850, 1.0920, 0.1) // +70
	first, err := agg.RefreshDailySnapshot(ctx, user.ID, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 10070.0, first.Balance)
	assert.Equal(t, 10070.0, first.Equity)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), first.Date.UTC())

	addTrade(t, s, user.ID, models.SideSell, 1.2650, 1.2580, 0.05) // +35
	second, err := agg.RefreshDailySnapshot(ctx, user.ID, fixedNow.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 10105.0, second.Balance)

	rows, err := s.DailyMetrics(ctx, user.ID, fixedNow.AddDate(0, 0, -1), fixedNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10105.0, rows[0].Balance)
}

func TestRefreshDailySnapshot_UserStartingBalance(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := &models.User{Email: "big@example.com", PasswordHash: "x", Role: models.RoleTrader, APIKey: "key-big", StartingBalance: ptr(50000)}
	require.NoError(t, s.CreateUser(ctx, user))

	addTrade(t, s, user.ID, models.SideBuy, 1.1000, 1.0950, 1) // -500
	snap, err := newAggregator(s, nil).RefreshDailySnapshot(ctx, user.ID, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 49500.0, snap.Balance)
}

func TestRefreshDailySnapshot_MarkToMarket(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	addTrade(t, s, user.ID, models.SideBuy, 1.0850, 1.0920, 0.1) // +70
	addTrade(t, s, user.ID, models.SideBuy, 2040.50, 0, 0.01)   // open

	marker := new(MockMarker)
	marker.On("MarkToMarket", mock.Anything, mock.MatchedBy(func(open []models.Trade) bool {
		return len(open) == 1 && open[0].Status == models.StatusOpen
	})).Return(25.5, nil).Once()

	snap, err := newAggregator(s, marker).RefreshDailySnapshot(ctx, user.ID, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 10070.0, snap.Balance)
	assert.Equal(t, 10095.5, snap.Equity)
	marker.AssertExpectations(t)
}

func TestRefreshDailySnapshot_MarkToMarketFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	addTrade(t, s, user.ID, models.SideBuy, 2040.50, 0, 0.01)

	marker := new(MockMarker)
	marker.On("MarkToMarket", mock.Anything, mock.Anything).Return(0.0, errors.New("quotes down"))

	snap, err := newAggregator(s, marker).RefreshDailySnapshot(ctx, user.ID, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, snap.Balance, snap.Equity)
}

func TestRefreshDailySnapshot_SlowMarkerIsBounded(t *testing.T) {
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	addTrade(t, s, user.ID, models.SideBuy, 1.0850, 1.0920, 0.1) // +70
	addTrade(t, s, user.ID, models.SideBuy, 2040.50, 0, 0.01)   // open

	hanging := metrics.MarkToMarketFunc(func(ctx context.Context, _ []models.Trade) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	agg := metrics.NewAggregator(s, zap.NewNop(), metrics.Options{
		StartingBalance: metrics.DefaultStartingBalance,
		MarkToMarket:    hanging,
		MarkTimeout:     50 * time.Millisecond,
	})

	start := time.Now()
	snap, err := agg.RefreshDailySnapshot(context.Background(), user.ID, fixedNow)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 10070.0, snap.Balance)
	assert.Equal(t, 10070.0, snap.Equity)
}

func TestRefreshBalance_SkipsMarker(t *testing.T) {
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	addTrade(t, s, user.ID, models.SideBuy, 1.0850, 1.0920, 0.1) // +70
	addTrade(t, s, user.ID, models.SideBuy, 2040.50, 0, 0.01)   // open

	marker := new(MockMarker)
	snap, err := newAggregator(s, marker).RefreshBalance(context.Background(), user.ID, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 10070.0, snap.Balance)
	assert.Equal(t, 10070.0, snap.Equity)
	marker.AssertNotCalled(t, "MarkToMarket", mock.Anything, mock.Anything)
}

func TestRefreshDailySnapshot_UnknownUser(t *testing.T) {
	s := storetest.New(t)
	_, err := newAggregator(s, nil).RefreshDailySnapshot(context.Background(), "missing", fixedNow)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	agg := newAggregator(s, nil)

	_, err := s.UpsertDailyMetric(ctx, &models.JournalMetric{
		UserID: user.ID, Date: models.Day(fixedNow.AddDate(0, 0, -40), time.UTC), Balance: 9800, Equity: 9800,
	})
	require.NoError(t, err)

	addTrade(t, s, user.ID, models.SideBuy, 1.0850, 1.0920, 0.1)   // +70
	addTrade(t, s, user.ID, models.SideSell, 1.2650, 1.2580, 0.05) // +35
	addTrade(t, s, user.ID, models.SideBuy, 1.1000, 1.0990, 0.1)   // -10
	addTrade(t, s, user.ID, models.SideBuy, 2040.50, 0, 0.01)      // open
	_, err = agg.RefreshDailySnapshot(ctx, user.ID, fixedNow)
	require.NoError(t, err)

	dash, err := agg.Dashboard(ctx, user.ID, 30)
	require.NoError(t, err)

	m := dash.Metrics
	assert.Equal(t, 10095.0, m.TotalBalance)
	assert.Equal(t, 10095.0, m.Equity)
	assert.Equal(t, 95.0, m.TotalPnL)
	assert.Equal(t, 95.0, m.DailyPnL)
	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 1, m.OpenTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 66.666, m.WinRate, 0.01)
	assert.InDelta(t, 10.5, m.ProfitFactor.Value, 1e-9)
	assert.Equal(t, 0.0, m.RelativeDrawdown)

	require.Len(t, dash.EquityCurve, 30)
	assert.Equal(t, 9800.0, dash.EquityCurve[0].Equity, "prior snapshot carries into the range")
	assert.Equal(t, 10095.0, dash.EquityCurve[29].Equity)
	assert.Len(t, dash.RecentTrades, 4)

	_, err = agg.Dashboard(ctx, user.ID, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
