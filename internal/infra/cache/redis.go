package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisCache stores the latest tick per symbol in Redis and falls back to
// memory when Redis is unavailable.
type RedisCache struct {
	rdb *redis.Client
	mem *MemoryCache
	ttl time.Duration
}

type redisTick struct {
	Channel string          `json:"channel"`
	Price   decimal.Decimal `json:"price"`
	Ts      int64           `json:"ts"`
}

func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, mem: NewMemoryCache(ttl), ttl: ttl}, nil
}

func lastKey(symbol string) string { return "last:" + normalize(symbol) }

func (r *RedisCache) Set(ctx context.Context, tick domain.Tick) error {
	_ = r.mem.Set(ctx, tick)

	payload, err := json.Marshal(redisTick{Channel: tick.Channel, Price: tick.Price, Ts: tick.EventTime.UnixNano()})
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, lastKey(tick.Symbol), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", tick.Symbol, err)
	}
	return nil
}

func (r *RedisCache) Latest(ctx context.Context, symbol string) (*domain.Tick, error) {
	payload, err := r.rdb.Get(ctx, lastKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return r.mem.Latest(ctx, symbol)
	}
	var stored redisTick
	if err := json.Unmarshal(payload, &stored); err != nil {
		return r.mem.Latest(ctx, symbol)
	}
	return &domain.Tick{
		Channel:   stored.Channel,
		Symbol:    normalize(symbol),
		Price:     stored.Price,
		EventTime: time.Unix(0, stored.Ts).UTC(),
	}, nil
}

func (r *RedisCache) Close() error {
	return r.rdb.Close()
}
