package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boxinggym/walkin-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient creates a pooled Redis client from a redis:// URL and checks it answers
func NewRedisClient(url string, poolSize int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		// Fall back to a bare host:port
		opts = &redis.Options{Addr: url}
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// HealthCheck pings Redis with a short timeout
func HealthCheck(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// RedisPublisher pushes change events onto one channel per session date
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
	logger *logrus.Logger
}

// NewRedisPublisher creates a publisher writing to "<prefix>:<session_date>"
func NewRedisPublisher(client redis.UniversalClient, prefix string, logger *logrus.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, logger: logger}
}

// Publish sends evt to its session date channel
func (p *RedisPublisher) Publish(ctx context.Context, evt models.ChangeEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	channel := ChannelName(p.prefix, evt.SessionDate)
	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.WithFields(logrus.Fields{
		"channel":   channel,
		"action":    evt.Action,
		"record_id": evt.RecordID,
		"receivers": receivers,
	}).Debug("Change event published")
	return nil
}

// Subscribe streams change events for one session date until ctx is done.
// The returned channel is closed when the subscription ends.
func (p *RedisPublisher) Subscribe(ctx context.Context, sessionDate string) (<-chan models.ChangeEvent, error) {
	channel := ChannelName(p.prefix, sessionDate)
	pubsub := p.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so callers know it is live
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan models.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				evt, err := decodeEvent(msg.Payload)
				if err != nil {
					p.logger.WithError(err).WithField("channel", channel).Warn("Dropping undecodable change event")
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ChannelName returns the pub/sub channel for a session date
func ChannelName(prefix, sessionDate string) string {
	return prefix + ":" + sessionDate
}

func decodeEvent(payload string) (models.ChangeEvent, error) {
	var evt models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return evt, fmt.Errorf("failed to decode change event: %w", err)
	}
	return evt, nil
}
