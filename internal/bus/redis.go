package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// wireEvent is the JSON form of a change notification on the Redis channel.
type wireEvent struct {
	ID      string    `json:"id"`
	Origin  string    `json:"origin"`
	Locator string    `json:"locator"`
	TS      time.Time `json:"ts"`
}

// Bridge mirrors change notifications between processes over a Redis
// Pub/Sub channel. Local events are published with this process's origin
// id; events from other origins are re-published on the local bus.
type Bridge struct {
	bus     *Bus
	rdb     *redis.Client
	channel string
	origin  string
	logger  *zap.Logger

	mu   sync.Mutex
	stop func()
}

// NewBridge creates a bridge for b on channel.
func NewBridge(b *Bus, rdb *redis.Client, channel string, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		bus:     b,
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin returns the id this process stamps on outgoing events.
func (br *Bridge) Origin() string { return br.origin }

// Start subscribes to the channel and begins forwarding in both directions.
// It returns once the subscription is confirmed.
func (br *Bridge) Start(ctx context.Context) error {
	sub := br.rdb.Subscribe(ctx, br.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", br.channel, err)
	}
	local, unsub := br.bus.Subscribe("", 256)

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return br.outbound(ctx, local) })
	g.Go(func() error { return br.inbound(ctx, sub.Channel()) })

	br.mu.Lock()
	br.stop = func() {
		cancel()
		if err := g.Wait(); err != nil {
			br.logger.Warn("change bridge stopped", zap.Error(err))
		}
		unsub()
		_ = sub.Close()
	}
	br.mu.Unlock()
	br.logger.Info("change bridge started", zap.String("channel", br.channel), zap.String("origin", br.origin))
	return nil
}

// Stop halts forwarding and waits for both directions to finish.
func (br *Bridge) Stop() {
	br.mu.Lock()
	stop := br.stop
	br.stop = nil
	br.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (br *Bridge) outbound(ctx context.Context, local <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-local:
			if evt.Origin != "" {
				continue
			}
			data, err := json.Marshal(wireEvent{
				ID:      evt.ID,
				Origin:  br.origin,
				Locator: evt.Kind,
				TS:      evt.Timestamp,
			})
			if err != nil {
				return fmt.Errorf("encode change: %w", err)
			}
			if err := br.rdb.Publish(ctx, br.channel, data).Err(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				br.logger.Warn("publish change failed", zap.String("locator", evt.Kind), zap.Error(err))
			}
		}
	}
}

func (br *Bridge) inbound(ctx context.Context, msgs <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var w wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
				br.logger.Warn("drop malformed change", zap.Error(err))
				continue
			}
			if w.Origin == br.origin || w.Origin == "" || w.Locator == "" {
				continue
			}
			br.bus.Publish(Event{
				ID:        w.ID,
				Kind:      w.Locator,
				Timestamp: w.TS,
				Origin:    w.Origin,
			})
		}
	}
}
