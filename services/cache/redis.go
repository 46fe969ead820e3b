// Package cachesvc implements core.Cache on Redis.
package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// releases a lock only while it still holds our token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client *redis.Client
	prefix string
	logger core.Logger
}

var _ core.Cache = (*RedisCache)(nil)

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         conf.Redis.Address,
		Password:     conf.Redis.Password,
		DB:           conf.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// NewRedisCache namespaces every key with "<app name>:".
func NewRedisCache(client *redis.Client, conf *core.Config, logger core.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: conf.AppName + ":", logger: logger}
}

// New returns the redis cache when configured and reachable, core.NopCache otherwise.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (core.Cache, func() error) {
	if conf.Redis.Address == "" {
		return core.NopCache{}, func() error { return nil }
	}
	client := NewRedisClient(conf)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("cache: redis unreachable, caching disabled: "+err.Error(), err)
		_ = client.Close()
		return core.NopCache{}, func() error { return nil }
	}
	return NewRedisCache(client, conf, logger), client.Close
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, core.ErrCacheMiss
	}
	return b, errors.Wrap(err, "redis GET")
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return errors.Wrap(c.client.Set(ctx, c.prefix+key, val, ttl).Err(), "redis SET")
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return errors.Wrap(c.client.Del(ctx, full...).Err(), "redis DEL")
}

func (c *RedisCache) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := core.RandomToken(16)
	if err != nil {
		return nil, err
	}
	key = c.prefix + "lock:" + key
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis SETNX")
	}
	if !ok {
		return nil, core.ErrLockHeld
	}
	return func() {
		// the caller's ctx may be done by now
		if err := unlockScript.Run(context.Background(), c.client, []string{key}, token).Err(); err != nil {
			c.logger.Warn("cache: releasing lock "+key+": "+err.Error(), err)
		}
	}, nil
}
