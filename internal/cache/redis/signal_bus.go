package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

const (
	// streamMaxLen trims the liquidation stream (XADD MAXLEN ~).
	streamMaxLen     = 10_000
	payloadField     = "payload"
	subscriberBuffer = 128
)

// SignalBus carries live engine events over Pub/Sub and keeps confirmed
// liquidations in a stream so websocket clients can resume after a
// reconnect.
type SignalBus struct {
	c *Client
}

var _ domain.SignalBus = (*SignalBus)(nil)

// NewSignalBus creates a SignalBus on c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{c: c}
}

// Publish sends payload on channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.c.rdb.Publish(ctx, sb.c.key(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe streams payloads published on channel until ctx is cancelled,
// then closes the returned channel. Names containing glob characters are
// pattern subscriptions.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	name := sb.c.key(channel)
	subscribe := sb.c.rdb.Subscribe
	if strings.ContainsAny(channel, "*?[") {
		subscribe = sb.c.rdb.PSubscribe
	}
	pubsub := subscribe(ctx, name)
	// Wait for the confirmation so nothing published after return is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		in := pubsub.Channel(redis.WithChannelSize(subscriberBuffer))
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// StreamAppend adds payload to stream.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: sb.c.key(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: []any{payloadField, payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID without blocking.
// "0" reads from the oldest retained entry.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	res, err := sb.c.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{sb.c.key(stream), lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis: xread %s: %w", stream, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, m := range s.Messages {
			if payload, ok := m.Values[payloadField].(string); ok {
				out = append(out, domain.StreamMessage{ID: m.ID, Payload: []byte(payload)})
			}
		}
	}
	return out, nil
}
