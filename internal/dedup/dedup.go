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

// Package dedup provides message-level idempotency using a Redis SET with
// TTL. Mail relays redeliver; the same forwarded broker email must not
// create two leads. This is transport dedup keyed by message id — not the
// duplicate-lead matching heuristic, which remains an open extension point.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen message ID is remembered. Relay
	// retries exhaust within hours; 24h is comfortable.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "leadflow:seen:"
)

// Filter tracks which inbound message IDs have already been processed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the message ID has NOT been seen before.
// If true, the ID is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, messageID string) (bool, error) {
	key := fmt.Sprintf("%s%s", keyPrefix, messageID)

	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}
