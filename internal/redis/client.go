package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// HitCounterKey is the per-UTC-day global allowed-request counter.
func HitCounterKey(day time.Time) string {
	return fmt.Sprintf("hits:%s", day.UTC().Format("2006-01-02"))
}

// QuotaEventChannel carries fire-and-forget quota decision events for any
// analytics consumer that cares to subscribe.
const QuotaEventChannel = "quota:events"
