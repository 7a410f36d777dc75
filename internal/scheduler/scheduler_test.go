package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trading-journal/internal/models"
)

// MockStore is a mock implementation of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]models.User)
	return users, args.Error(1)
}

// MockRefresher is a mock implementation of Refresher.
type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) RefreshDailySnapshot(ctx context.Context, userID string, asOf time.Time) (*models.JournalMetric, error) {
	args := m.Called(ctx, userID, asOf)
	metric, _ := args.Get(0).(*models.JournalMetric)
	return metric, args.Error(1)
}

func TestRefreshAll(t *testing.T) {
	now := time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)

	t.Run("ContinuesPastFailures", func(t *testing.T) {
		s := new(MockStore)
		r := new(MockRefresher)
		s.On("ListUsers", mock.Anything).Return([]models.User{{ID: "a"}, {ID: "b"}, {ID: "c"}}, nil)
		r.On("RefreshDailySnapshot", mock.Anything, "a", now).Return(&models.JournalMetric{}, nil)
		r.On("RefreshDailySnapshot", mock.Anything, "b", now).Return(nil, errors.New("locked"))
		r.On("RefreshDailySnapshot", mock.Anything, "c", now).Return(&models.JournalMetric{}, nil)

		sched := New(zap.NewNop(), s, r, time.Hour)
		sched.now = func() time.Time { return now }

		n, err := sched.RefreshAll(context.Background())
		assert.Equal(t, 2, n)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "user b: locked")
		r.AssertExpectations(t)
	})

	t.Run("ListFailure", func(t *testing.T) {
		s := new(MockStore)
		s.On("ListUsers", mock.Anything).Return(nil, errors.New("db down"))

		n, err := New(zap.NewNop(), s, new(MockRefresher), time.Hour).RefreshAll(context.Background())
		assert.Zero(t, n)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestRun(t *testing.T) {
	t.Run("RefreshesUntilCancelled", func(t *testing.T) {
		s := new(MockStore)
		r := new(MockRefresher)
		s.On("ListUsers", mock.Anything).Return([]models.User{{ID: "a"}}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		calls := make(chan struct{}, 10)
		r.On("RefreshDailySnapshot", mock.Anything, "a", mock.Anything).
			Run(func(mock.Arguments) { calls <- struct{}{} }).
			Return(&models.JournalMetric{}, nil)

		done := make(chan struct{})
		go func() {
			New(zap.NewNop(), s, r, 10*time.Millisecond).Run(ctx)
			close(done)
		}()

		for i := 0; i < 2; i++ {
			select {
			case <-calls:
			case <-time.After(2 * time.Second):
				t.Fatal("snapshot refresh did not run")
			}
		}
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not stop after cancel")
		}
	})

	t.Run("DisabledReturnsImmediately", func(t *testing.T) {
		s := new(MockStore)
		New(zap.NewNop(), s, new(MockRefresher), 0).Run(context.Background())
		s.AssertNotCalled(t, "ListUsers", mock.Anything)
	})
}
