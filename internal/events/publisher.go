package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
)

// Publisher pushes masking telemetry onto a Redis Pub/Sub channel for the
// risk aggregation worker. Publishing is best-effort: callers fire and
// forget, and a lost event is acceptable.
type Publisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

// NewPublisher connects to the queue server and verifies the connection.
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Risk queue publisher initialized",
		zap.String("component", "events"),
		zap.String("channel", cfg.Channel))

	return &Publisher{
		client:  client,
		channel: cfg.Channel,
		timeout: cfg.PublishTimeout,
		logger:  logger,
	}, nil
}

// Publish sends one masking event to the channel, bounded by the configured
// publish timeout.
func (p *Publisher) Publish(ctx context.Context, event MaskingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Channel returns the configured queue channel name.
func (p *Publisher) Channel() string {
	return p.channel
}

// Close closes the queue connection.
func (p *Publisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
