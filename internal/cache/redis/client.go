// Package redis implements the bot's shared-state concerns on go-redis/v9:
// the scan lock, the display price cache, the event bus and the API rate
// limiter.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "liquidbot"

// ClientConfig holds the connection settings. Addr is host:port or a
// redis:// / rediss:// URL; a URL's own credentials and DB win.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace prefixes every key, channel and stream.
	Namespace string
}

// Client is a namespaced go-redis client.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New connects and pings.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}

	ns := strings.Trim(cfg.Namespace, ":")
	if ns == "" {
		ns = defaultNamespace
	}
	return &Client{rdb: rdb, ns: ns}, nil
}

func options(cfg ClientConfig) (*redis.Options, error) {
	var opts *redis.Options
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// Ping is the health check.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// key joins parts under the namespace, e.g. "liquidbot:lock:scan".
func (c *Client) key(parts ...string) string {
	return strings.Join(append([]string{c.ns}, parts...), ":")
}
