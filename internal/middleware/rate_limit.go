package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "judge:ratelimit:"

// RateLimitConfig controls submission throttling. When Redis is set the
// counters are shared by every judge replica; otherwise they live in memory.
type RateLimitConfig struct {
	Identifier string
	Max        int
	Window     time.Duration
	Redis      *redis.Client
}

// RateLimit throttles submissions per client address. A non-positive Max
// disables the limiter.
func RateLimit(cfg RateLimitConfig) fiber.Handler {
	if cfg.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	limiterCfg := limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return cfg.Identifier + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"code":        "SE",
				"message":     "Submission Error",
				"description": "Too many submissions. Try again later.",
			})
		},
	}
	if cfg.Redis != nil {
		limiterCfg.Storage = &redisStorage{client: cfg.Redis}
	}

	return limiter.New(limiterCfg)
}

// redisStorage adapts a go-redis client to fiber.Storage.
type redisStorage struct {
	client *redis.Client
}

func (s *redisStorage) Get(key string) ([]byte, error) {
	value, err := s.client.Get(context.Background(), rateLimitKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return value, err
}

func (s *redisStorage) Set(key string, value []byte, exp time.Duration) error {
	if key == "" || len(value) == 0 {
		return nil
	}
	return s.client.Set(context.Background(), rateLimitKeyPrefix+key, value, exp).Err()
}

func (s *redisStorage) Delete(key string) error {
	return s.client.Del(context.Background(), rateLimitKeyPrefix+key).Err()
}

func (s *redisStorage) Reset() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, rateLimitKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *redisStorage) Close() error {
	return nil
}
