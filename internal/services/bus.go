package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"linova-go/internal/logger"
)

// RedisBus shares changes between server instances over Redis pub/sub.
// Every instance publishes to the channel and forwards what it receives to
// its local hub.
type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisBus(ctx context.Context, addr, channel string, log *logger.Logger) (*RedisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if strings.TrimSpace(channel) == "" {
		channel = "linova:changes"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBus{
		log:     log.With("service", "RedisChangeBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, change Change) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis change bus not initialized")
	}
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and hands every change to
// onChange until ctx ends.
func (b *RedisBus) StartForwarder(ctx context.Context, onChange func(Change)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis change bus not initialized")
	}
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				change, err := DecodeChange([]byte(m.Payload))
				if err != nil {
					b.log.Warn("bad redis change payload", "error", err)
					continue
				}
				onChange(change)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// DecodeChange parses a change published on the bus.
func DecodeChange(raw []byte) (Change, error) {
	var change Change
	if err := json.Unmarshal(raw, &change); err != nil {
		return Change{}, err
	}
	if change.Table == "" {
		return Change{}, fmt.Errorf("change without table")
	}
	return change, nil
}
