package booklaunchbot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// KVStore is the key-value store holding FeedItems. Entries disappear on their own
// once expiresAt has passed; this package never deletes them.
type KVStore interface {
	// ListKeys returns the keys of all live entries.
	ListKeys(ctx context.Context) ([]string, error)
	// Get returns the value stored under key. found is false for missing or expired entries.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Put stores value under key until expiresAt.
	Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Close() error
}

// NewKVStore opens the backend selected by config.Store.Driver. redisClient is
// only used by the redis driver; when nil a client is created from config.Redis.
func NewKVStore(config *Config, redisClient *redis.Client) (KVStore, error) {
	switch config.Store.Driver {
	case StoreDriverRedis:
		if redisClient == nil {
			redisClient = newRedisClient(config.Redis)
		}
		return NewRedisStore(redisClient, config.Redis.KeyPrefix), nil
	case StoreDriverSQLite, "":
		store, err := NewSQLiteStore(config.Store.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
}
