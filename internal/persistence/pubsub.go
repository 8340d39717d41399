package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/condo-service/internal/config"
)

// PubSub is the Redis connection behind realtime ticket fan-out. Prefix namespaces the channels.
type PubSub struct {
	Client *redis.Client
	Prefix string
}

// OpenPubSub returns nil when REDIS_ADDR is unset; callers then run without realtime delivery.
// A server that does not answer the first ping is reported through readiness, not startup.
func OpenPubSub(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *PubSub {
	if cfg.Addr == "" {
		logger.Info("realtime fan-out disabled", zap.String("reason", "REDIS_ADDR unset"))
		return nil
	}

	ps := &PubSub{Client: redis.NewClient(redisOptions(cfg)), Prefix: cfg.ChannelPrefix}
	if err := ps.Ping(ctx); err != nil {
		logger.Warn("realtime fan-out degraded", zap.Error(err))
	} else {
		logger.Info("realtime fan-out ready", zap.String("addr", cfg.Addr), zap.String("prefix", cfg.ChannelPrefix))
	}
	return ps
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: "condo-tickets",
	}
}

// Ping backs the "redis" readiness check.
func (p *PubSub) Ping(ctx context.Context) error {
	if p == nil || p.Client == nil {
		return errors.New("realtime pubsub not open")
	}
	if err := p.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", p.Client.Options().Addr, err)
	}
	return nil
}

func (p *PubSub) Close() error {
	if p == nil || p.Client == nil {
		return nil
	}
	return p.Client.Close()
}
