package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

// DuplicateSaleWindow is how long an identical sale amount at one location
// is considered a possible double submission.
const DuplicateSaleWindow = 5 * time.Second

type Client struct {
	rdb           redis.UniversalClient
	releaseScript *redis.Script
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb redis.UniversalClient) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ObserveSale records a sale amount for a location. It reports true when the
// same amount was already seen inside DuplicateSaleWindow.
func (c *Client) ObserveSale(ctx context.Context, locationID string, totalCents int64) (bool, error) {
	key := fmt.Sprintf("dupsale:%s:%d", locationID, totalCents)

	fresh, err := c.rdb.SetNX(ctx, key, time.Now().UnixMilli(), DuplicateSaleWindow).Result()
	if err != nil {
		return false, fmt.Errorf("duplicate sale check failed: %w", err)
	}
	return !fresh, nil
}

// Lock is a held distributed lock
type Lock struct {
	key   string
	token string
}

// AcquireLock takes a distributed lock. ok is false when another holder has it.
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, bool, error) {
	lock := &Lock{key: fmt.Sprintf("lock:%s", name), token: uuid.New().String()}

	ok, err := c.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return lock, true, nil
}

// ReleaseLock releases a lock only if it is still ours
func (c *Client) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	if err := c.releaseScript.Run(ctx, c.rdb, []string{lock.key}, lock.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
