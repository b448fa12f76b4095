package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// StreamClient is the subset of redis.UniversalClient the publisher
// needs, narrowed for testability (mirrors the rest of this module's
// pattern of interface seams around external clients).
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher durably appends encoded chunks to the per-data-type Redis
// Stream named by routing.TopicFor, retrying transient failures with
// full jitter before dead-lettering (spec.md §4.5: "publish failures
// retry with backoff (10s-600s, full jitter) up to 5 attempts, then
// route to a dead-letter stream").
type Publisher struct {
	Client StreamClient
	Logger logr.Logger

	// InitialInterval and MaxInterval default to spec.md §4.5's 10s-600s
	// range; tests override them to keep retry exercises fast.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     uint
}

const (
	publishMinInterval = 10 * time.Second
	publishMaxInterval = 600 * time.Second
	publishMaxRetries  = 5
	deadLetterSuffix   = ".deadletter"
)

// NewPublisher builds a Publisher with spec.md's default retry policy.
func NewPublisher(client StreamClient, logger logr.Logger) *Publisher {
	return &Publisher{
		Client:          client,
		Logger:          logger,
		InitialInterval: publishMinInterval,
		MaxInterval:     publishMaxInterval,
		MaxAttempts:     publishMaxRetries,
	}
}

// PublishRecord is one envelope appended to a stream: the encoded chunk
// payload plus the routing fields needed to reconstruct it downstream.
type PublishRecord struct {
	Topic     string
	Partition int
	DeviceID  string
	SessionID string
	Payload   []byte
}

// Publish appends record to its topic stream, retrying on failure per
// the configured backoff policy. If every attempt fails, Publish
// appends the record to the topic's dead-letter stream instead and
// returns the final transient error wrapped with context.
func (p *Publisher) Publish(ctx context.Context, record PublishRecord) error {
	op := func() (struct{}, error) {
		err := p.append(ctx, record.Topic, record)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialInterval()
	bo.MaxInterval = p.maxInterval()
	bo.RandomizationFactor = 1.0 // full jitter

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(p.retryAttempts()),
	)
	if err == nil {
		return nil
	}

	p.Logger.Error(err, "ingestion: publish exhausted retries, dead-lettering",
		"device_id", record.DeviceID, "topic", record.Topic)

	dlqErr := p.append(ctx, record.Topic+deadLetterSuffix, record)
	if dlqErr != nil {
		return fmt.Errorf("ingestion: publish failed and dead-letter append failed: %w (original: %v)", dlqErr, err)
	}
	return fmt.Errorf("ingestion: publish exhausted retries, dead-lettered: %w", err)
}

func (p *Publisher) retryAttempts() uint {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return publishMaxRetries
}

func (p *Publisher) initialInterval() time.Duration {
	if p.InitialInterval > 0 {
		return p.InitialInterval
	}
	return publishMinInterval
}

func (p *Publisher) maxInterval() time.Duration {
	if p.MaxInterval > 0 {
		return p.MaxInterval
	}
	return publishMaxInterval
}

func (p *Publisher) append(ctx context.Context, stream string, record PublishRecord) error {
	_, err := p.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"device_id":  record.DeviceID,
			"session_id": record.SessionID,
			"partition":  record.Partition,
			"payload":    record.Payload,
		},
	}).Result()
	return err
}
