package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trading-journal/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique index.
	ErrDuplicate = errors.New("duplicate record")
)

type txKey struct{}

// Store is the gorm-backed persistence for users, trades and daily metrics.
// Every method runs inside the transaction carried by ctx, if any.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an opened and migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks and tooling.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// Ping checks the database connection and that the users table is readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn(ctx).Exec("SELECT 1").Error; err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if _, err := s.CountUsers(ctx); err != nil {
		return err
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// --- users ---

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.conn(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

// UserByID looks a user up by primary key.
func (s *Store) UserByID(ctx context.Context, userID string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", userID)
}

// UserByEmail looks a user up by login email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

// UserByAPIKey resolves a webhook API key to its owner.
func (s *Store) UserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	return s.findUser(ctx, "api_key = ?", apiKey)
}

func (s *Store) findUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Where(query, arg).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// ListUsers returns every account, oldest first.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.conn(ctx).Order("created_at asc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of accounts.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// --- trades ---

// TradeFilter narrows ListTrades. Zero values do not filter.
type TradeFilter struct {
	Symbol string
	Side   models.Side
	Status models.Status
	Setup  string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// CreateTrade inserts a new trade.
func (s *Store) CreateTrade(ctx context.Context, trade *models.Trade) error {
	if err := s.conn(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", translate(err))
	}
	return nil
}

// TradeByID returns a trade owned by userID.
func (s *Store) TradeByID(ctx context.Context, userID, tradeID string) (*models.Trade, error) {
	var trade models.Trade
	err := s.conn(ctx).Where("id = ? AND user_id = ?", tradeID, userID).First(&trade).Error
	if err != nil {
		return nil, translate(err)
	}
	return &trade, nil
}

// LatestOpenTrade returns the most recently created OPEN trade for (userID, symbol).
func (s *Store) LatestOpenTrade(ctx context.Context, userID, symbol string) (*models.Trade, error) {
	var trade models.Trade
	err := s.conn(ctx).
		Where("user_id = ? AND symbol = ? AND status = ?", userID, symbol, models.StatusOpen).
		Order("created_at desc").
		Order("id desc").
		First(&trade).Error
	if err != nil {
		return nil, translate(err)
	}
	return &trade, nil
}

// CloseTrade moves an OPEN trade to CLOSED. The update only applies while the
// row is still OPEN; it reports false when another writer closed it first.
func (s *Store) CloseTrade(ctx context.Context, tradeID string, exitPrice, profit float64, at time.Time) (bool, error) {
	res := s.conn(ctx).
		Model(&models.Trade{}).
		Where("id = ? AND status = ?", tradeID, models.StatusOpen).
		Updates(map[string]interface{}{
			"exit_price": exitPrice,
			"profit":     profit,
			"status":     models.StatusClosed,
			"closed_at":  at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to close trade %s: %w", tradeID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListTrades returns a user's trades, newest first.
func (s *Store) ListTrades(ctx context.Context, userID string, f TradeFilter) ([]models.Trade, error) {
	q := s.conn(ctx).Where("user_id = ?", userID)
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.Side != "" {
		q = q.Where("type = ?", f.Side)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Setup != "" {
		q = q.Where("setup = ?", f.Setup)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at < ?", f.To.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var trades []models.Trade
	if err := q.Order("created_at desc").Order("id desc").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// TradesByStatus returns all of a user's trades in the given state.
func (s *Store) TradesByStatus(ctx context.Context, userID string, status models.Status) ([]models.Trade, error) {
	return s.ListTrades(ctx, userID, TradeFilter{Status: status})
}

// --- daily metrics ---

// UpsertDailyMetric writes the snapshot for (UserID, Date), overwriting
// balance and equity when the day already has one, and returns the stored row.
func (s *Store) UpsertDailyMetric(ctx context.Context, m *models.JournalMetric) (*models.JournalMetric, error) {
	db := s.conn(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "equity", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert journal metric: %w", err)
	}

	var stored models.JournalMetric
	if err := db.Where("user_id = ? AND date = ?", m.UserID, m.Date).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to reload journal metric: %w", translate(err))
	}
	return &stored, nil
}

// DailyMetrics returns a user's snapshots with from <= date <= to, oldest first.
func (s *Store) DailyMetrics(ctx context.Context, userID string, from, to time.Time) ([]models.JournalMetric, error) {
	var out []models.JournalMetric
	err := s.conn(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from.UTC(), to.UTC()).
		Order("date asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list journal metrics: %w", err)
	}
	return out, nil
}

// LatestMetricBefore returns the newest snapshot strictly before t.
func (s *Store) LatestMetricBefore(ctx context.Context, userID string, t time.Time) (*models.JournalMetric, error) {
	var m models.JournalMetric
	err := s.conn(ctx).
		Where("user_id = ? AND date < ?", userID, t.UTC()).
		Order("date desc").
		First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}
