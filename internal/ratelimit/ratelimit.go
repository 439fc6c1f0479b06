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

// Package ratelimit provides per-tenant token-bucket rate limiting for the
// intake endpoints. The default backing is an in-process bucket map; a
// Redis backing exists for deployments with multiple replicas behind a load
// balancer, where per-process buckets would multiply the effective limit.
package ratelimit

import (
	"context"
	"time"
)

// Defaults for the intake buckets: 60 tokens capacity, refilled
// continuously at 1 token per second.
const (
	DefaultCapacity     = 60
	DefaultRefillPerSec = 1.0
)

// AnonymousKey is the shared bucket for requests without a tenant
// credential. Intentional: anonymous traffic is still bounded.
const AnonymousKey = "anonymous"

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int           // bucket capacity
	Remaining  int           // whole tokens left after this request
	RetryAfter time.Duration // time until the next token; zero when allowed
}

// Limiter admits or rejects one request for the given bucket key. The
// backing is swappable (in-memory or Redis) without touching call sites.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
