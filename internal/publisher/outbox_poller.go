package publisher

import (
	"context"
	"time"

	r "github.com/fjod/storefront-checkout/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const DefaultTopic = "checkout-outcomes"

// EventStore is the part of the checkout ledger the poller drains.
type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*r.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
	PurgeProcessedEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	batchSize     int
	eventTick     time.Duration
	retentionTick time.Duration
	retention     time.Duration
	repo          EventStore
	writer        MessageWriter
	logger        *zap.Logger
}

func NewOutboxPoller(repo EventStore, logger *zap.Logger, topic string, brokers ...string) *OutboxPoller {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(repo, w, logger)
}

func newOutboxPoller(repo EventStore, writer MessageWriter, logger *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		batchSize:     100,
		eventTick:     time.Second,
		retentionTick: time.Hour,
		retention:     7 * 24 * time.Hour,
		repo:          repo,
		writer:        writer,
		logger:        logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	retentionTicker := time.NewTicker(p.retentionTick)
	defer eventTicker.Stop()
	defer retentionTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-retentionTicker.C:
			p.purgeProcessedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.logger.Error("failed to publish event", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Error("failed to mark event as processed", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}
	}
}

func (p *OutboxPoller) purgeProcessedEvents(ctx context.Context) {
	n, err := p.repo.PurgeProcessedEvents(ctx, p.retention)
	if err != nil {
		p.logger.Error("failed to purge processed events", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("purged processed outbox events", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // session id keeps per-session ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}
