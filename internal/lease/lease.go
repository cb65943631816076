package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotOwned indicates that a lease expired or was taken over before release.
var ErrNotOwned = errors.New("lease not owned")

// Lease is an acquired exclusive right to run a task.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases keyed by name. Acquire returns ok=false when the
// lease is held by somebody else.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (l Lease, ok bool, err error)
}

// NopLocker always grants the lease. Used when no Redis is configured.
type NopLocker struct{}

type nopLease struct{}

func (nopLease) Release(context.Context) error { return nil }

// Acquire always succeeds.
func (NopLocker) Acquire(context.Context, string, time.Duration) (Lease, bool, error) {
	return nopLease{}, true, nil
}

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// redisClient is the subset of *redis.Client used by RedisLocker.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client redisClient
	prefix string
}

// NewRedisLocker creates a locker storing leases under "<prefix>:<name>".
func NewRedisLocker(client redisClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// Connect creates a Redis client and verifies connectivity.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		PoolSize:        10,
		ConnMaxIdleTime: 5 * time.Minute,
		MaxRetries:      3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	slog.Info("redis connected", "addr", addr)
	return client, nil
}

func (l *RedisLocker) key(name string) string {
	return l.prefix + ":" + name
}

// Acquire tries to take the named lease for ttl.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, bool, error) {
	key := l.key(name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: l.client, key: key, token: token}, true, nil
}

type redisLease struct {
	client redisClient
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	n, err := r.client.Eval(ctx, releaseScript, []string{r.key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("releasing lease %s: %w", r.key, err)
	}
	if n == 0 {
		return fmt.Errorf("releasing lease %s: %w", r.key, ErrNotOwned)
	}
	return nil
}
