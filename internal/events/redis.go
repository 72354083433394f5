package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBus publishes events over Redis pub/sub so that stats updates reach
// every API and worker process. go-redis requires a dedicated connection per
// subscription; Subscribe handles that internally.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus wraps an existing Redis client. The client's lifecycle is
// owned by the caller.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// PublishStats sends a stats delta on the stats:update channel.
func (b *RedisBus) PublishStats(ctx context.Context, ev StatsUpdate) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stats update: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelStatsUpdate, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelStatsUpdate, err)
	}
	return nil
}

// PublishURLProcessed sends a settlement notice on the url:processed channel.
func (b *RedisBus) PublishURLProcessed(ctx context.Context, ev URLProcessed) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal url processed: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelURLProcessed, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelURLProcessed, err)
	}
	return nil
}

// SubscribeStats opens a pub/sub subscription on stats:update and decodes
// messages into StatsUpdate values. Malformed payloads are logged and
// skipped. The cancel function closes the subscription, which in turn ends
// the decode loop and closes the returned channel.
func (b *RedisBus) SubscribeStats(ctx context.Context) (<-chan StatsUpdate, func(), error) {
	ps := b.client.Subscribe(ctx, ChannelStatsUpdate)
	// Force the SUBSCRIBE round-trip now so a dead broker fails fast.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", ChannelStatsUpdate, err)
	}

	out := make(chan StatsUpdate, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev StatsUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed stats event")
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	cancel := func() { _ = ps.Close() }
	return out, cancel, nil
}
