package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/imwg-risk-server/internal/domain"
)

const (
	keyPrefix       = "imwg:assessment:"
	tombstonePrefix = "imwg:assessment-deleted:"
)

// setIfNewer writes ARGV[1] under KEYS[1] unless KEYS[2] marks the id as
// deleted or the cached JSON carries a version above ARGV[2].
// ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfNewer = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
local current = redis.call('GET', KEYS[1])
if current then
  local ok, decoded = pcall(cjson.decode, current)
  if ok and type(decoded) == 'table' and tonumber(decoded['version']) and tonumber(decoded['version']) > tonumber(ARGV[2]) then
    return 0
  end
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisCache stores assessments in Redis as JSON. Calls go through a circuit
// breaker so a struggling Redis is skipped instead of slowing every request.
type RedisCache struct {
	redis   *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewRedisCache creates a Redis-backed cache. An unreachable server is logged,
// not fatal; the breaker takes over until it recovers.
func NewRedisCache(config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries != 0 {
		opts.MaxRetries = config.MaxRetries
	}
	opts.DialTimeout = 2 * time.Second

	client := redis.NewClient(opts)

	c := &RedisCache{
		redis:  client,
		ttl:    config.DefaultTTL,
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Cache circuit breaker changed state")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis cache is not reachable; continuing without it")
	}

	return c, nil
}

// Get returns the cached assessment, or a miss on any failure.
func (c *RedisCache) Get(ctx context.Context, id string) (*domain.Assessment, bool) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		val, err := c.redis.Get(ctx, keyPrefix+id).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is not a failure.
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		c.logFailure("get", id, err)
		return nil, false
	}
	if result == nil {
		return nil, false
	}

	var a domain.Assessment
	if err := json.Unmarshal(result.([]byte), &a); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, keyPrefix+id)
		return nil, false
	}
	return &a, true
}

// Set stores the assessment with the configured TTL. The compare on version
// and the tombstone check run atomically on the server.
func (c *RedisCache) Set(ctx context.Context, assessment *domain.Assessment) {
	if assessment == nil {
		return
	}
	data, err := json.Marshal(assessment)
	if err != nil {
		c.logFailure("set", assessment.ID, err)
		return
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		keys := []string{keyPrefix + assessment.ID, tombstonePrefix + assessment.ID}
		return nil, setIfNewer.Run(ctx, c.redis, keys, data, assessment.Version, c.ttl.Milliseconds()).Err()
	})
	if err != nil {
		c.logFailure("set", assessment.ID, err)
	}
}

// Delete removes the entry for id and leaves a tombstone for the cache TTL.
func (c *RedisCache) Delete(ctx context.Context, id string) {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keyPrefix+id)
			pipe.Set(ctx, tombstonePrefix+id, 1, c.tombstoneTTL())
			return nil
		})
		return nil, err
	})
	if err != nil {
		c.logFailure("delete", id, err)
	}
}

func (c *RedisCache) tombstoneTTL() time.Duration {
	if c.ttl > 0 {
		return c.ttl
	}
	return time.Hour
}

// State reports the circuit breaker state.
func (c *RedisCache) State() gobreaker.State {
	return c.breaker.State()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}

func (c *RedisCache) logFailure(op, id string, err error) {
	c.logger.WithFields(logrus.Fields{
		"operation":     op,
		"assessment_id": id,
		"error":         err,
	}).Warn("Assessment cache operation failed")
}
