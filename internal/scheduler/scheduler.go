// Package scheduler keeps daily snapshots current for every user, so the
// equity curve gets a point on days without closed trades and equity follows
// open positions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trading-journal/internal/models"
)

// Store lists the users to refresh.
type Store interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Refresher rewrites one user's snapshot for a day.
type Refresher interface {
	RefreshDailySnapshot(ctx context.Context, userID string, asOf time.Time) (*models.JournalMetric, error)
}

// SnapshotScheduler periodically refreshes every user's daily snapshot.
type SnapshotScheduler struct {
	logger    *zap.Logger
	store     Store
	refresher Refresher
	interval  time.Duration
	now       func() time.Time
}

// New creates a SnapshotScheduler.
func New(logger *zap.Logger, s Store, refresher Refresher, interval time.Duration) *SnapshotScheduler {
	return &SnapshotScheduler{
		logger:    logger.Named("scheduler"),
		store:     s,
		refresher: refresher,
		interval:  interval,
		now:       time.Now,
	}
}

// Run refreshes once, then on every tick until ctx is done.
func (s *SnapshotScheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Snapshot refresh disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting snapshot loop", zap.Duration("interval", s.interval))
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping snapshot loop...")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *SnapshotScheduler) tick(ctx context.Context) {
	n, err := s.RefreshAll(ctx)
	if err != nil {
		s.logger.Error("Snapshot refresh failed", zap.Int("refreshed", n), zap.Error(err))
		return
	}
	s.logger.Debug("Snapshots refreshed", zap.Int("users", n))
}

// RefreshAll refreshes today's snapshot for every user. A failing user does
// not stop the others; all failures are returned joined.
func (s *SnapshotScheduler) RefreshAll(ctx context.Context) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	asOf := s.now()
	refreshed := 0
	var errs []error
	for _, u := range users {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.refresher.RefreshDailySnapshot(ctx, u.ID, asOf); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}
