package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	ussdredis "github.com/openclaw/ussd-gateway-go/internal/redis"
	"github.com/openclaw/ussd-gateway-go/internal/util"
)

const phoneRateLimitWindow = time.Minute

// rateLimitScript is a Lua script for sliding window rate limiting
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = now + window
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 10000)
return {1, now + window}
`)

// PhoneLimiter caps requests per phone number over a sliding minute.
type PhoneLimiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

// NewPhoneLimiter builds a limiter. A limit of zero or less disables it.
func NewPhoneLimiter(client *redis.Client, limit int) *PhoneLimiter {
	return &PhoneLimiter{client: client, limit: limit, now: time.Now}
}

// Allow records one request for phone. Redis failures allow the request.
func (l *PhoneLimiter) Allow(ctx context.Context, phone string) (allowed bool, resetAt time.Time) {
	if l == nil || l.limit <= 0 {
		return true, time.Now()
	}
	now := l.now()

	result, err := rateLimitScript.Run(
		ctx,
		l.client,
		[]string{ussdredis.PhoneRateLimitKey(phone)},
		now.UnixMilli(),
		phoneRateLimitWindow.Milliseconds(),
		l.limit,
	).Int64Slice()
	if err != nil || len(result) != 2 {
		log.Warn().Err(err).Str("phone", util.MaskPhone(phone)).Msg("phone rate limit check failed, allowing request")
		return true, now.Add(phoneRateLimitWindow)
	}

	return result[0] == 1, time.UnixMilli(result[1])
}
