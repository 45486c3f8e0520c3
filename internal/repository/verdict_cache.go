package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/uva-judge/internal/judge"
)

const verdictCachePrefix = "judge:verdict:"

// VerdictCache stores final verdicts keyed by submission fingerprint.
type VerdictCache interface {
	Get(ctx context.Context, key string) (judge.Verdict, bool, error)
	Set(ctx context.Context, key string, verdict judge.Verdict) error
}

type cachedVerdict struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Trace       string `json:"trace,omitempty"`
}

// NewRedisVerdictCache constructs a redis backed verdict cache.
func NewRedisVerdictCache(client *redis.Client, ttl time.Duration) VerdictCache {
	return &redisVerdictCache{client: client, ttl: ttl}
}

type redisVerdictCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *redisVerdictCache) Get(ctx context.Context, key string) (judge.Verdict, bool, error) {
	raw, err := c.client.Get(ctx, verdictCachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return judge.Verdict{}, false, nil
	}
	if err != nil {
		return judge.Verdict{}, false, err
	}

	var entry cachedVerdict
	if err := json.Unmarshal(raw, &entry); err != nil {
		return judge.Verdict{}, false, fmt.Errorf("decode cached verdict: %w", err)
	}
	code := judge.Code(entry.Code)
	if !code.Valid() {
		return judge.Verdict{}, false, fmt.Errorf("cached verdict has unknown code %q", entry.Code)
	}

	return judge.Verdict{Code: code, Description: entry.Description, Trace: entry.Trace}, true, nil
}

func (c *redisVerdictCache) Set(ctx context.Context, key string, verdict judge.Verdict) error {
	payload, err := json.Marshal(cachedVerdict{
		Code:        string(verdict.Code),
		Description: verdict.Description,
		Trace:       verdict.Trace,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, verdictCachePrefix+key, payload, c.ttl).Err()
}
