// Package cache is a read-through Redis cache for the redirect hot
// path. It only caches link metadata; click counting and the
// uniqueness invariants stay in postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkforge/link-shortener/internal/config"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/models"
)

type LinkCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func New(cfg config.RedisStorage, log *slog.Logger) *LinkCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &LinkCache{
		rdb: rdb,
		ttl: cfg.LinkTTL,
		log: log,
	}
}

func key(workspaceID int64, code string) string {
	return fmt.Sprintf("link:%d:%s", workspaceID, code)
}

// Get returns the cached link and whether it was present. Cache
// failures degrade to a miss: the redirect path must never depend on
// redis being up.
func (c *LinkCache) Get(ctx context.Context, workspaceID int64, code string) (models.ShortLink, bool) {
	const op = "cache.Get"

	data, err := c.rdb.Get(ctx, key(workspaceID, code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed", slog.String("op", op), sl.Err(err))
		}
		return models.ShortLink{}, false
	}

	var link models.ShortLink
	if err := json.Unmarshal(data, &link); err != nil {
		c.log.Warn("corrupt cache entry", slog.String("op", op), sl.Err(err))
		return models.ShortLink{}, false
	}

	return link, true
}

func (c *LinkCache) Set(ctx context.Context, link models.ShortLink) {
	const op = "cache.Set"

	data, err := json.Marshal(link)
	if err != nil {
		c.log.Warn("failed to marshal link", slog.String("op", op), sl.Err(err))
		return
	}

	if err := c.rdb.Set(ctx, key(link.WorkspaceID, link.Code), data, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", slog.String("op", op), sl.Err(err))
	}
}

func (c *LinkCache) Delete(ctx context.Context, workspaceID int64, code string) {
	const op = "cache.Delete"

	if err := c.rdb.Del(ctx, key(workspaceID, code)).Err(); err != nil {
		c.log.Warn("redis del failed", slog.String("op", op), sl.Err(err))
	}
}

func (c *LinkCache) Close() error {
	return c.rdb.Close()
}
