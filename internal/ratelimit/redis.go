package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sorted-set sliding window: members are admissions scored by unix millis.
var redisWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  count = count + 1
  allowed = 1
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisLimiter implements a sliding-window rate limiter backed by Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow checks whether the request fits in the window ending at now.
func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if rule.Max <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if l == nil || l.client == nil {
		return Result{}, errors.New("rate limit redis: nil client")
	}
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()
	res, errEval := redisWindowScript.Run(ctx, l.client, []string{l.buildKey(key)}, nowMs, rule.Window.Milliseconds(), rule.Max, member).Result()
	if errEval != nil {
		return Result{}, errEval
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Result{}, fmt.Errorf("rate limit redis: unexpected response %T", res)
	}
	allowed, errAllowed := toInt64(values[0])
	count, errCount := toInt64(values[1])
	oldestMs, errOldest := toInt64(values[2])
	if err := errors.Join(errAllowed, errCount, errOldest); err != nil {
		return Result{}, err
	}
	oldest := time.UnixMilli(oldestMs).UTC()
	if allowed == 1 {
		return allowedResult(rule, int(count), oldest, now), nil
	}
	return deniedResult(rule, oldest, now), nil
}

func (l *RedisLimiter) buildKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("rate limit redis: unexpected value type %T", v)
	}
}
