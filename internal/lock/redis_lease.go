package lock

import (
	"context"
	"fmt"
	"time"

	"trade-settlement-go/internal/config"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our owner value, so an
// expired lease that another replica picked up is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// NewRedisClient creates a Redis client and checks the connection.
func NewRedisClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisLease is a SET NX EX lease shared by all replicas of the daemon. The holder
// runs the timer sweep for the tick; the TTL lets the lease lapse on its own before
// the next tick.
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

func NewRedisLease(client *redis.Client, key, owner string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, key: key, owner: owner, ttl: ttl}
}

// Acquire tries to take the lease without blocking.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

// Release gives the lease up early if this process still holds it.
func (l *RedisLease) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
