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

// Package queue publishes created-lead events to Redis for downstream
// CRM/analysis workers, and parks unclassified inbound messages for later
// replay. This service only writes; consumers live elsewhere.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flowcrm/ingestion/internal/models"
)

// unmatchedMaxLen bounds the parking list so a misconfigured mailbox
// cannot grow Redis without limit. Oldest entries fall off first.
const unmatchedMaxLen = 10000

// Publisher sends lead events to Redis lists.
type Publisher struct {
	rdb          *redis.Client
	queueName    string
	unmatchedKey string
}

// NewPublisher creates a Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:          rdb,
		queueName:    queueName,
		unmatchedKey: queueName + ":unmatched",
	}
}

// envelope wraps an event for Redis transport.
type envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Body      json.RawMessage `json:"body"`
	CreatedAt string          `json:"created_at"`
}

// PublishLeadCreated serialises a created-lead event and pushes it onto the
// downstream queue.
func (p *Publisher) PublishLeadCreated(ctx context.Context, event *models.LeadCreatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lead event: %w", err)
	}

	taskID := uuid.New().String()
	msg := envelope{
		ID:        taskID,
		Kind:      "lead.created",
		Body:      body,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(msgJSON)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published lead event to queue",
		"task_id", taskID,
		"lead_id", event.LeadID,
		"tenant", event.TenantID,
		"queue", p.queueName,
	)

	return nil
}

// ParkUnmatched stores a message no parser claimed, bounded to the newest
// entries. The replay command drains the list after new parsers ship.
func (p *Publisher) ParkUnmatched(ctx context.Context, tenantID string, msg *models.InboundEmail) error {
	parked := struct {
		TenantID string              `json:"tenant_id"`
		Message  models.InboundEmail `json:"message"`
		ParkedAt string              `json:"parked_at"`
	}{
		TenantID: tenantID,
		Message:  *msg,
		ParkedAt: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(parked)
	if err != nil {
		return fmt.Errorf("marshal parked message: %w", err)
	}

	pipe := p.rdb.TxPipeline()
	pipe.LPush(ctx, p.unmatchedKey, string(data))
	pipe.LTrim(ctx, p.unmatchedKey, 0, unmatchedMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("park unmatched message: %w", err)
	}

	return nil
}

// PopUnmatched removes and returns the oldest parked message, or nil when
// the list is empty.
func (p *Publisher) PopUnmatched(ctx context.Context) (tenantID string, msg *models.InboundEmail, err error) {
	data, err := p.rdb.RPop(ctx, p.unmatchedKey).Result()
	if err == redis.Nil {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("pop unmatched message: %w", err)
	}

	var parked struct {
		TenantID string              `json:"tenant_id"`
		Message  models.InboundEmail `json:"message"`
	}
	if err := json.Unmarshal([]byte(data), &parked); err != nil {
		return "", nil, fmt.Errorf("unmarshal parked message: %w", err)
	}

	return parked.TenantID, &parked.Message, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
