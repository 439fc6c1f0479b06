// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces bucket keys in Redis.
const keyPrefix = "leadflow:bucket:"

// tokenBucketScript refills and deducts atomically server-side, so
// concurrent replicas share one bucket per tenant. Bucket state is a hash
// of fractional tokens plus the last refill timestamp, expiring after two
// full refill periods of inactivity.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = capacity
  ts = now
end

tokens = math.min(capacity, tokens + (now - ts) * refill)

local allowed = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait = (1 - tokens) / refill
end

redis.call('HMSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', KEYS[1], math.ceil(capacity / refill) * 2)

return {allowed, tostring(tokens), tostring(wait)}
`)

// RedisLimiter is the shared-bucket backing for multi-replica deployments.
// It trades a Redis round trip per request for cross-replica fairness.
type RedisLimiter struct {
	rdb      *redis.Client
	capacity int
	refill   float64
}

// NewRedisLimiter creates a Redis-backed limiter. Zero values fall back to
// the package defaults.
func NewRedisLimiter(rdb *redis.Client, capacity int, refillPerSec float64) *RedisLimiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillPerSec <= 0 {
		refillPerSec = DefaultRefillPerSec
	}
	return &RedisLimiter{rdb: rdb, capacity: capacity, refill: refillPerSec}
}

// Allow runs the bucket script for the key. A Redis failure is returned to
// the caller; the gateway decides whether to fail open.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, l.rdb,
		[]string{keyPrefix + key},
		l.capacity, l.refill, now,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	allowed, _ := reply[0].(int64)
	tokens, _ := strconv.ParseFloat(asString(reply[1]), 64)
	wait, _ := strconv.ParseFloat(asString(reply[2]), 64)

	d := Decision{
		Allowed:   allowed == 1,
		Limit:     l.capacity,
		Remaining: int(tokens),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(wait * float64(time.Second))
	}
	return d, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
