package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/valyc0/fraudM/internal/domain/rules"
	"github.com/valyc0/fraudM/internal/platform/envutil"
	"github.com/valyc0/fraudM/internal/platform/logger"
)

const DefaultChannel = "rules.events"

// redisConn is the part of *goredis.Client the bus uses.
type redisConn interface {
	Ping(ctx context.Context) *goredis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
	Close() error
}

type redisBus struct {
	log     *logger.Logger
	rdb     redisConn
	channel string
}

type RedisConfig struct {
	Addr     string
	Password string
	Channel  string
}

func RedisConfigFromEnv() RedisConfig {
	return RedisConfig{
		Addr:     envutil.String("REDIS_ADDR", ""),
		Password: envutil.String("REDIS_PASSWORD", ""),
		Channel:  envutil.String("REDIS_CHANNEL", DefaultChannel),
	}
}

func NewRedisBus(ctx context.Context, log *logger.Logger, cfg RedisConfig) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	})
	return newRedisBus(ctx, log, rdb, cfg.Channel)
}

func newRedisBus(ctx context.Context, log *logger.Logger, rdb redisConn, channel string) (Bus, error) {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisBus{
		log:     log.With("service", "RedisRuleBus", "channel", channel),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, ev rules.Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis rule bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and calls onEvent for each
// decoded event until ctx ends.
func (b *redisBus) StartForwarder(ctx context.Context, onEvent func(ev rules.Event)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis rule bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				ev, err := decodeEvent(m.Payload)
				if err != nil {
					b.log.Warn("bad rule event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

func decodeEvent(payload string) (rules.Event, error) {
	var ev rules.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return rules.Event{}, err
	}
	if ev.Type == "" || ev.RuleID == "" {
		return rules.Event{}, fmt.Errorf("event missing type or rule_id")
	}
	return ev, nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
