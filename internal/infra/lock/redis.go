package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/domain"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds Redis lock settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix (default "turnover:lock:")
	TTL      time.Duration // Lock expiry guarding against crashed holders (default 2m)
	Logger   *zap.Logger
}

// Redis is a busy set shared by every daemon pointed at the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedis connects and pings Redis.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(client, cfg.Prefix, cfg.TTL, cfg.Logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *Redis {
	if prefix == "" {
		prefix = "turnover:lock:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, log: log}
}

// TryLock sets the key with NX. A held key yields ErrWorkflowBusy.
func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := r.prefix + key

	ok, err := r.client.SetNX(ctx, full, token, r.ttl).Result()
	if err != nil {
		return nil, domain.Collaborator("acquire workflow lock", err)
	}
	if !ok {
		return nil, domain.ErrWorkflowBusy
	}

	return func() {
		// Release on a fresh context: the caller's may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// A failed release leaves the key held until the TTL expires.
		if err := releaseScript.Run(ctx, r.client, []string{full}, token).Err(); err != nil {
			r.log.Warn("workflow lock release failed",
				zap.String("key", full),
				zap.Duration("expires_in", r.ttl),
				zap.Error(err))
		}
	}, nil
}

// Ping checks Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
