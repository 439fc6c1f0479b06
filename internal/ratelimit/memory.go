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
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one rate.Limiter per bucket key in process memory.
// State is rebuilt from defaults on restart; rate limiting is advisory, not
// a durability guarantee. Single-instance only — see RedisLimiter for
// horizontally scaled deployments.
type MemoryLimiter struct {
	capacity int
	refill   rate.Limit

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewMemoryLimiter creates an in-memory limiter. Zero values fall back to
// the package defaults.
func NewMemoryLimiter(capacity int, refillPerSec float64) *MemoryLimiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillPerSec <= 0 {
		refillPerSec = DefaultRefillPerSec
	}
	return &MemoryLimiter{
		capacity: capacity,
		refill:   rate.Limit(refillPerSec),
		buckets:  make(map[string]*rate.Limiter),
	}
}

// Allow deducts one token from the key's bucket, or rejects with the time
// remaining until the next token. Refill is continuous, computed by the
// bucket from elapsed wall-clock time.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	lim := m.bucket(key)

	d := Decision{Limit: m.capacity}

	res := lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		// Not available now; hand the token back and tell the caller
		// when the next one lands.
		res.Cancel()
		d.RetryAfter = delay
		return d, nil
	}

	d.Allowed = true
	d.Remaining = remainingTokens(lim)
	return d, nil
}

// bucket returns the limiter for key, creating it full on first sight.
func (m *MemoryLimiter) bucket(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	lim, ok := m.buckets[key]
	if !ok {
		lim = rate.NewLimiter(m.refill, m.capacity)
		m.buckets[key] = lim
	}
	return lim
}

func remainingTokens(lim *rate.Limiter) int {
	t := lim.Tokens()
	if t < 0 {
		return 0
	}
	return int(math.Floor(t))
}
