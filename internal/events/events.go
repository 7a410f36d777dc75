// Package events publishes trade lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"trading-journal/internal/config"
	"trading-journal/internal/models"
)

// Type names a lifecycle transition.
type Type string

const (
	TradeOpened Type = "trade.opened"
	TradeClosed Type = "trade.closed"
)

// Event is the payload written for every committed transition.
type Event struct {
	Type       Type         `json:"type"`
	UserID     string       `json:"userId"`
	Trade      models.Trade `json:"trade"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// NewTradeEvent builds an event for trade.
func NewTradeEvent(t Type, trade *models.Trade, at time.Time) Event {
	return Event{Type: t, UserID: trade.UserID, Trade: *trade, OccurredAt: at.UTC()}
}

// Publisher delivers events after the transition is committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by user so a
// user's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for the configured brokers.
func NewKafkaPublisher(cfg config.Events, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
	}
	logger.Info("Kafka publisher created", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return newKafkaPublisher(writer, cfg.Topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, logger: logger.Named("events")}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s event: %w", e.Type, err)
	}

	p.logger.Debug("Event published",
		zap.String("type", string(e.Type)),
		zap.String("topic", p.topic),
		zap.String("trade_id", e.Trade.ID))
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// NopPublisher otherwise.
func NewPublisher(cfg config.Events, logger *zap.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg, logger)
}
