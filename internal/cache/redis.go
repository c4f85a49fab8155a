package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/shortlet/config"
	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another payout request for the host is in flight.
var ErrLockHeld = errors.New("payout lock held")

// unlockScript deletes the lock only if it still carries our token, so an
// expired lock re-acquired by someone else is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisCache struct {
	client    *redis.Client
	configTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, configTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:    redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		configTTL: configTTL,
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// AcquirePayoutLock takes the per-host lock with SET NX. The returned
// release func is safe to call more than once.
func (c *RedisCache) AcquirePayoutLock(ctx context.Context, hostID string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, payoutLockKey(hostID), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire payout lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: host %s", ErrLockHeld, hostID)
	}
	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, c.client, []string{payoutLockKey(hostID)}, token).Err()
	}, nil
}

// GetFinanceConfig returns nil, nil on a cache miss.
func (c *RedisCache) GetFinanceConfig(ctx context.Context) (*domain.FinanceConfig, error) {
	data, err := c.client.Get(ctx, financeConfigKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cfg domain.FinanceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *RedisCache) SetFinanceConfig(ctx context.Context, cfg *domain.FinanceConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, financeConfigKey(), payload, c.configTTL).Err()
}

func (c *RedisCache) InvalidateFinanceConfig(ctx context.Context) error {
	return c.client.Del(ctx, financeConfigKey()).Err()
}

func financeConfigKey() string {
	return "cache:finance_config:active"
}

func payoutLockKey(hostID string) string {
	return fmt.Sprintf("lock:payout:host:%s", hostID)
}
