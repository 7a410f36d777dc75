package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/models"
	"trading-journal/internal/store"
	"trading-journal/internal/store/storetest"
)

func ptr(v float64) *float64 { return &v }

func openTrade(userID, symbol string) *models.Trade {
	return &models.Trade{
		UserID:     userID,
		Symbol:     symbol,
		Side:       models.SideBuy,
		EntryPrice: 1.0850,
		StopLoss:   ptr(1.0800),
		TakeProfit: ptr(1.0950),
		LotSize:    0.1,
		Status:     models.StatusOpen,
		Source:     models.SourceWebhook,
	}
}

func TestStore_UserLookups(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")

	byKey, err := s.UserByAPIKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byKey.ID)

	byEmail, err := s.UserByEmail(ctx, "trader@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = s.UserByAPIKey(ctx, "unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)

	dup := &models.User{Email: "trader@example.com", PasswordHash: "x", Role: models.RoleTrader, APIKey: "key-2"}
	err = s.CreateUser(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_LatestOpenTrade(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")

	first := openTrade(user.ID, "EURUSD")
	second := openTrade(user.ID, "EURUSD")
	other := openTrade(user.ID, "GBPUSD")
	require.NoError(t, s.CreateTrade(ctx, first))
	require.NoError(t, s.CreateTrade(ctx, second))
	require.NoError(t, s.CreateTrade(ctx, other))

	latest, err := s.LatestOpenTrade(ctx, user.ID, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = s.LatestOpenTrade(ctx, user.ID, "XAUUSD")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_CloseTradeIsConditional(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	trade := openTrade(user.ID, "EURUSD")
	require.NoError(t, s.CreateTrade(ctx, trade))

	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	applied, err := s.CloseTrade(ctx, trade.ID, 1.0920, 70, at)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.CloseTrade(ctx, trade.ID, 1.1000, 150, at)
	require.NoError(t, err)
	assert.False(t, applied, "a closed trade must not be closed twice")

	stored, err := s.TradeByID(ctx, user.ID, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, stored.Status)
	assert.Equal(t, 70.0, *stored.Profit)
	assert.Equal(t, 1.0920, *stored.ExitPrice)
	assert.NoError(t, stored.CheckState())

	_, err = s.TradeByID(ctx, "someone-else", trade.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ListTradesFilters(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")

	for _, symbol := range []string{"EURUSD", "GBPUSD", "EURUSD"} {
		require.NoError(t, s.CreateTrade(ctx, openTrade(user.ID, symbol)))
	}
	sell := openTrade(user.ID, "XAUUSD")
	sell.Side = models.SideSell
	sell.Setup = "breakout"
	require.NoError(t, s.CreateTrade(ctx, sell))

	testCases := []struct {
		name     string
		filter   store.TradeFilter
		expected int
	}{
		{"No filter", store.TradeFilter{}, 4},
		{"By symbol", store.TradeFilter{Symbol: "EURUSD"}, 2},
		{"By side", store.TradeFilter{Side: models.SideSell}, 1},
		{"By setup", store.TradeFilter{Setup: "breakout"}, 1},
		{"By status", store.TradeFilter{Status: models.StatusClosed}, 0},
		{"Limited", store.TradeFilter{Limit: 3}, 3},
		{"Offset", store.TradeFilter{Limit: 10, Offset: 3}, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			trades, err := s.ListTrades(ctx, user.ID, tc.filter)
			require.NoError(t, err)
			assert.Len(t, trades, tc.expected)
		})
	}

	all, err := s.ListTrades(ctx, user.ID, store.TradeFilter{})
	require.NoError(t, err)
	assert.Equal(t, sell.ID, all[0].ID, "newest trade comes first")
}

func TestStore_UpsertDailyMetric(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	first, err := s.UpsertDailyMetric(ctx, &models.JournalMetric{UserID: user.ID, Date: day, Balance: 10070, Equity: 10070})
	require.NoError(t, err)
	second, err := s.UpsertDailyMetric(ctx, &models.JournalMetric{UserID: user.ID, Date: day, Balance: 10105, Equity: 10105})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 10105.0, second.Balance)

	rows, err := s.DailyMetrics(ctx, user.ID, day.AddDate(0, 0, -1), day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10105.0, rows[0].Equity)

	prev, err := s.LatestMetricBefore(ctx, user.ID, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, second.ID, prev.ID)

	_, err = s.LatestMetricBefore(ctx, user.ID, day)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	user := storetest.CreateUser(t, s, "trader@example.com", "key-1")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.CreateTrade(txCtx, openTrade(user.ID, "EURUSD")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	trades, err := s.ListTrades(ctx, user.ID, store.TradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}
