package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const window = time.Minute

// Redis counts requests in fixed one-minute windows shared by every replica.
type Redis struct {
	rdb       *goredis.Client
	perMinute int
	prefix    string
	now       func() time.Time
}

func NewRedis(ctx context.Context, redisURL string, perMinute int) (*Redis, error) {
	opts, err := goredis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, perMinute), nil
}

func NewRedisWithClient(rdb *goredis.Client, perMinute int) *Redis {
	if perMinute < 1 {
		perMinute = 1
	}
	return &Redis{rdb: rdb, perMinute: perMinute, prefix: "ratelimit:", now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	slot := now.Unix() / int64(window/time.Second)
	redisKey := r.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	if count > r.perMinute {
		next := time.Unix((slot+1)*int64(window/time.Second), 0)
		return Decision{Allowed: false, Limit: r.perMinute, RetryAfter: next.Sub(now)}, nil
	}
	return Decision{Allowed: true, Limit: r.perMinute, Remaining: r.perMinute - count}, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
