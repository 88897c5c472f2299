package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	drepo "MoodTreasury/internal/domain/repository"
)

// RedisOption configures RedisStore.
type RedisOption func(*RedisConfig)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

// WithRedisAddr sets host and port.
func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		c.Host = host
		c.Port = port
	}
}

// WithRedisAuth sets password and database number.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

// WithRedisPool sets connection pool settings.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
		c.PoolTimeout = timeout
	}
}

// WithRedisPrefix sets the key namespace prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		c.Prefix = prefix
	}
}

// RedisStore implements DurableStore on Redis. Latest snapshots and counters
// are plain keys, histories are sorted sets scored by unix milliseconds.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts ...RedisOption) (*RedisStore, error) {
	cfg := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 5,
		Prefix:       "moodtreasury",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, s.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return drepo.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *RedisStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.wrapKey(key), data, ttl).Err()
}

// IncrByFloat atomically increments a float counter. The TTL, when set, is
// refreshed on every increment; daily counters stay keyed by calendar day so
// the refresh cannot stretch a day's accumulation.
func (s *RedisStore) IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	k := s.wrapKey(key)
	pipe := s.client.TxPipeline()
	incr := pipe.IncrByFloat(ctx, k, delta)
	if ttl > 0 {
		pipe.Expire(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	wrapped := make([]string, len(keys))
	for i, k := range keys {
		wrapped[i] = s.wrapKey(k)
	}
	return s.client.Unlink(ctx, wrapped...).Err()
}

// historyEnvelope makes sorted-set members unique even when two artifacts
// serialize identically.
type historyEnvelope struct {
	T int64           `json:"t"` // unix nanos
	V json.RawMessage `json:"v"`
}

func (s *RedisStore) AppendHistory(ctx context.Context, key string, at time.Time, value interface{}, retention time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	member, err := json.Marshal(historyEnvelope{T: at.UnixNano(), V: raw})
	if err != nil {
		return err
	}

	k := s.wrapKey(key)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(at.UnixMilli()), Member: string(member)})
	if retention > 0 {
		cutoff := time.Now().Add(-retention).UnixMilli()
		pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) RangeHistory(ctx context.Context, key string, from, to time.Time, limit int) ([][]byte, error) {
	rng := &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	members, err := s.client.ZRangeByScore(ctx, s.wrapKey(key), rng).Result()
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(members))
	for _, m := range members {
		var env historyEnvelope
		if err := json.Unmarshal([]byte(m), &env); err != nil {
			continue // skip corrupt entries
		}
		out = append(out, env.V)
	}
	return out, nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) wrapKey(key string) string {
	return s.prefix + ":" + key
}
