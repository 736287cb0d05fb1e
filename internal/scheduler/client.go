// Package scheduler moves work across process boundaries through an asynq
// task queue backed by Redis, and runs the periodic jobs that keep the
// pipeline honest: outbox dispatch, transcript archival and the
// stale-request reaper.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"hireline_backend/platform/config"
)

// Queue names, by delivery urgency. User-facing notifications beat
// housekeeping.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Client enqueues background tasks. A nil Client is a disabled task queue:
// every method is a safe no-op, so callers do not guard for it.
type Client struct {
	client *asynq.Client
}

// NewClient creates a task queue client, or nil when REDIS_URL is not set.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, nil
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

// Enabled reports whether a task queue is configured behind this client.
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueOutboxDelivery schedules delivery of one claimed outbox row.
// Retries are driven by the outbox table, not by asynq, so the task runs at
// most once per claim.
func (c *Client) EnqueueOutboxDelivery(ctx context.Context, outboxID uuid.UUID, runAt time.Time) error {
	if !c.Enabled() {
		return nil
	}

	task, err := NewOutboxDeliveryTask(OutboxDeliveryPayload{OutboxID: outboxID.String()})
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(QueueCritical), asynq.MaxRetry(0)}
	if runAt.After(time.Now()) {
		opts = append(opts, asynq.ProcessAt(runAt))
	}
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	return err
}

// EnqueueCallArchive schedules the archival of one finalized call record.
// Uploads write a deterministic key, so asynq may retry freely.
func (c *Client) EnqueueCallArchive(ctx context.Context, callID string) error {
	if !c.Enabled() {
		return nil
	}

	task, err := NewCallArchiveTask(CallArchivePayload{CallID: callID})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueLow), asynq.MaxRetry(5))
	return err
}

// redisClientOpt translates a redis:// URL into asynq connection options.
func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
