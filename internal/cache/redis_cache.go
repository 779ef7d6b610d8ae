package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"swarna/backend/internal/domain"
)

type RedisRateCache struct {
	client *redis.Client
}

func NewRedisRateCache(addr string, password string, db int) *RedisRateCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRateCache{client: client}
}

func (c *RedisRateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRateCache) Close() error {
	return c.client.Close()
}

func (c *RedisRateCache) Get(ctx context.Context, key string) (*domain.Rate, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rate domain.Rate
	if err := json.Unmarshal([]byte(val), &rate); err != nil {
		return nil, false, err
	}
	return &rate, true, nil
}

func (c *RedisRateCache) Set(ctx context.Context, key string, value *domain.Rate, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisRateCache) SetIfAbsent(ctx context.Context, key string, value *domain.Rate, ttl time.Duration) (bool, error) {
	if value == nil {
		return false, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, payload, ttl).Result()
}

func (c *RedisRateCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
