// Package redis wraps go-redis/v9 for the commit pointer cache: a namespaced
// key space holding each index's latest generation plus a pub/sub channel
// announcing new commits.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/resilience"
)

// DefaultKeyPrefix namespaces keys when the config leaves KeyPrefix empty.
const DefaultKeyPrefix = "sis"

type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Connect retries NewClient with exponential backoff until the server
// answers a PING or retry is exhausted.
func Connect(ctx context.Context, cfg config.RedisConfig, retry resilience.RetryConfig) (*Client, error) {
	var c *Client
	err := resilience.Retry(ctx, "redis connect", retry, func() error {
		var err error
		c, err = NewClient(cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Key joins parts under the client's prefix: Key("generation", "/idx")
// yields "sis:generation:/idx".
func (c *Client) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetIfGreater stores value under key unless the stored number is already
// at least value. It reports whether the key was updated. Concurrent writers
// publishing out of order can therefore never move the pointer backwards.
func (c *Client) SetIfGreater(ctx context.Context, key string, value int64) (bool, error) {
	updated := false
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Int64()
		if err != nil && !IsNilError(err) {
			return err
		}
		if err == nil && cur >= value {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, 0)
			return nil
		})
		updated = err == nil
		return err
	}, key)
	return updated, err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	return c.rdb.Publish(ctx, channel, message).Err()
}

// Subscribe returns the payloads published on channel until ctx is done.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	sub := c.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- m.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// IsNilError reports whether err is a Redis nil (key-not-found) reply.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
