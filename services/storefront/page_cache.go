package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	homePageKey    = "page:/"
	catalogPageKey = "page:/products"
)

// PageCache guarda as respostas das páginas públicas do catálogo
type PageCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context, keys ...string) error
}

// RedisPageCache implementa PageCache no redis
type RedisPageCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisPageCache cria uma nova instância de RedisPageCache
func NewRedisPageCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisPageCache {
	return &RedisPageCache{client: client, ttl: ttl, logger: logger}
}

// GetJSON retorna false quando a chave não existe
func (c *RedisPageCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// entrada corrompida é tratada como miss
		logWarn(ctx, c.logger, "⚠️ [CACHE] discarding unreadable entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *RedisPageCache) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisPageCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// cachedPage lê do cache ou calcula e grava. Falhas do cache nunca derrubam a leitura.
func cachedPage[T any](ctx context.Context, cache PageCache, logger *zap.Logger, key string, load func() (T, error)) (T, error) {
	var cached T
	hit, err := cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logWarn(ctx, logger, "⚠️ [CACHE] read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	if err := cache.SetJSON(ctx, key, value); err != nil {
		logWarn(ctx, logger, "⚠️ [CACHE] write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
