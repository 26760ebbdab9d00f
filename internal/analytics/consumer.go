package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/events"
)

// flushTimeout bounds each batch write triggered by the consumer.
const flushTimeout = 10 * time.Second

// Consumer subscribes to the risk queue and persists incoming masking
// events in batches. Batches flush when full or when the flush interval
// elapses, whichever comes first.
type Consumer struct {
	client        *redis.Client
	store         *Store
	channel       string
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
}

// NewConsumer connects to the queue server and verifies the connection.
func NewConsumer(cfg *config.Config, store *Store, logger *zap.Logger) (*Consumer, error) {
	opts, err := redis.ParseURL(cfg.Events.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Risk queue consumer initialized",
		zap.String("channel", cfg.Events.Channel),
		zap.Int("batch_size", cfg.Analytics.BatchSize),
		zap.Duration("flush_interval", cfg.Analytics.FlushInterval))

	return &Consumer{
		client:        client,
		store:         store,
		channel:       cfg.Events.Channel,
		batchSize:     cfg.Analytics.BatchSize,
		flushInterval: cfg.Analytics.FlushInterval,
		logger:        logger,
	}, nil
}

// Run consumes the queue until ctx is cancelled. The pending batch is
// flushed before returning.
func (c *Consumer) Run(ctx context.Context) error {
	pubsub := c.client.Subscribe(ctx, c.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.channel, err)
	}

	c.logger.Info("Consuming risk events", zap.String("channel", c.channel))

	messages := pubsub.Channel()
	batch := make([]*RiskEvent, 0, c.batchSize)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush(batch)
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				c.flush(batch)
				return nil
			}
			ev, err := decodeEvent(msg.Payload)
			if err != nil {
				c.logger.Warn("Dropping undecodable event", zap.Error(err))
				continue
			}
			batch = append(batch, ev)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (c *Consumer) flush(batch []*RiskEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	result, err := c.store.BatchInsert(ctx, batch)
	if err != nil {
		c.logger.Error("Failed to persist event batch",
			zap.Error(err),
			zap.Int("batch_size", len(batch)))
		return
	}

	c.logger.Debug("Persisted event batch",
		zap.Int64("inserted", result.Inserted),
		zap.Duration("duration", result.Duration))
}

// decodeEvent converts a queue payload into a storable risk event.
func decodeEvent(payload string) (*RiskEvent, error) {
	var ev events.MaskingEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Fingerprint == "" {
		return nil, fmt.Errorf("event has no fingerprint")
	}

	createdAt := ev.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &RiskEvent{
		Fingerprint:    ev.Fingerprint,
		RiskScore:      ev.RiskScore,
		EntityCount:    ev.Metrics.EntityCount,
		PersonCount:    ev.Metrics.PersonCount,
		RegexTypeCount: ev.Metrics.RegexTypeCount,
		RegexTypes:     strings.Join(ev.RegexTypes, ","),
		DurationMS:     ev.DurationMS,
		CreatedAt:      createdAt,
	}, nil
}

// Close closes the queue connection.
func (c *Consumer) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
