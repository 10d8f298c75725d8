package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/cart"
	"github.com/fjod/storefront-checkout/internal/publisher"
)

const DefaultGroupID = "checkout-cart-cleaner"

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Carts is the part of the cart registry the cleaner needs.
type Carts interface {
	Get(ctx context.Context, key string) *cart.Store
}

// CartCleaner empties the cart of a shopper once their checkout succeeded.
// It reads the outcome events the outbox poller publishes; other outcomes
// leave the cart alone.
type CartCleaner struct {
	reader MessageReader
	carts  Carts
	logger *zap.Logger
}

func NewCartCleaner(carts Carts, logger *zap.Logger, topic string, brokers ...string) *CartCleaner {
	if topic == "" {
		topic = publisher.DefaultTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  DefaultGroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newCartCleaner(reader, carts, logger)
}

func newCartCleaner(reader MessageReader, carts Carts, logger *zap.Logger) *CartCleaner {
	return &CartCleaner{reader: reader, carts: carts, logger: logger}
}

func (c *CartCleaner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.handleNext(ctx)
	}
}

func (c *CartCleaner) Close() error {
	return c.reader.Close()
}

func (c *CartCleaner) handleNext(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Warn("failed to read outcome event", zap.Error(err))
		}
		return
	}

	if eventType := header(m, "event_type"); eventType != "" && eventType != domain.OutcomeSucceeded.EventType() {
		return
	}

	var outcome domain.Outcome
	if err := json.Unmarshal(m.Value, &outcome); err != nil {
		c.logger.Warn("failed to decode outcome event", zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	if outcome.Status != domain.OutcomeSucceeded {
		return
	}
	if outcome.UserID == "" {
		c.logger.Warn("outcome event without user id", zap.String("session_id", outcome.SessionID))
		return
	}

	c.carts.Get(ctx, cart.OwnerKey(outcome.UserID)).Clear()
	c.logger.Info("cart cleared after checkout",
		zap.String("user_id", outcome.UserID),
		zap.String("session_id", outcome.SessionID),
	)
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
