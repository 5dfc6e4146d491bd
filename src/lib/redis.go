package lib

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		return nil
	}
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

// RedisReferenceCache maps payment references to order IDs so webhook
// reconciliation skips the database lookup.
type RedisReferenceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReferenceCache(rdb *redis.Client, ttl time.Duration) *RedisReferenceCache {
	return &RedisReferenceCache{rdb: rdb, ttl: ttl}
}

func referenceKey(reference string) string {
	return fmt.Sprintf("payment:ref:%s", reference)
}

func (c *RedisReferenceCache) Remember(ctx context.Context, reference string, orderID uint) error {
	return c.rdb.Set(ctx, referenceKey(reference), strconv.FormatUint(uint64(orderID), 10), c.ttl).Err()
}

// Lookup returns false without error when the reference is not cached.
func (c *RedisReferenceCache) Lookup(ctx context.Context, reference string) (uint, bool, error) {
	val, err := c.rdb.Get(ctx, referenceKey(reference)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cache entry for %s: %w", reference, err)
	}
	return uint(id), true, nil
}

func (c *RedisReferenceCache) Forget(ctx context.Context, reference string) error {
	return c.rdb.Del(ctx, referenceKey(reference)).Err()
}
