package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trading-journal/internal/config"
	"trading-journal/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "journal.trades", zap.NewNop())

	trade := &models.Trade{ID: "01TRADE", UserID: "01USER", Symbol: "EURUSD", Side: models.SideBuy, Status: models.StatusOpen}
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), NewTradeEvent(TradeOpened, trade, at)))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "01USER", string(msg.Key))
	assert.Equal(t, "trade.opened", string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, TradeOpened, got.Type)
	assert.Equal(t, "EURUSD", got.Trade.Symbol)
	assert.True(t, at.Equal(got.OccurredAt))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := newKafkaPublisher(w, "journal.trades", zap.NewNop())

	err := p.Publish(context.Background(), Event{Type: TradeClosed, UserID: "u"})
	assert.ErrorContains(t, err, "trade.closed")
}

func TestNewPublisher(t *testing.T) {
	assert.IsType(t, NopPublisher{}, NewPublisher(config.Events{}, zap.NewNop()))

	p := NewPublisher(config.Events{Brokers: []string{"localhost:9092"}, Topic: "t"}, zap.NewNop())
	assert.IsType(t, &KafkaPublisher{}, p)
	assert.NoError(t, p.Close())
}
