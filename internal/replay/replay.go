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

// Package replay re-runs parked unmatched messages through the parser
// registry. Messages the gateway could not classify sit on a capped Redis
// list; after a parser revision this runner drains that list and persists
// whatever now matches.
package replay

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowcrm/ingestion/internal/models"
	"github.com/flowcrm/ingestion/internal/parser"
)

// UnmatchedQueue is the parking-lot surface the runner drains.
// *queue.Publisher satisfies it.
type UnmatchedQueue interface {
	PopUnmatched(ctx context.Context) (tenantID string, msg *models.InboundEmail, err error)
	ParkUnmatched(ctx context.Context, tenantID string, msg *models.InboundEmail) error
	PublishLeadCreated(ctx context.Context, event *models.LeadCreatedEvent) error
}

// LeadCreator persists leads recovered by the replay. *store.Store
// satisfies it.
type LeadCreator interface {
	Create(ctx context.Context, tenantID, source string, payload models.ParsedLeadPayload) (*models.Lead, error)
}

// Result summarises a completed replay run.
type Result struct {
	Replayed       int // messages popped off the parking lot
	Created        int // leads persisted
	StillUnmatched int // re-parked (or dropped) messages
	Errors         int
	Elapsed        time.Duration
}

// Runner drains the unmatched parking lot.
type Runner struct {
	queue    UnmatchedQueue
	store    LeadCreator
	registry *parser.Registry

	max           int  // stop after this many messages
	dryRun        bool // classify only, park everything back
	dropUnmatched bool // discard instead of re-parking
}

// RunnerConfig holds dependencies and policy for a replay run.
type RunnerConfig struct {
	Queue    UnmatchedQueue
	Store    LeadCreator
	Registry *parser.Registry

	Max           int
	DryRun        bool
	DropUnmatched bool
}

// NewRunner creates a replay runner. Max defaults to 1000; the cap also
// bounds re-parked messages cycling back within one run.
func NewRunner(cfg RunnerConfig) *Runner {
	max := cfg.Max
	if max <= 0 {
		max = 1000
	}
	return &Runner{
		queue:         cfg.Queue,
		store:         cfg.Store,
		registry:      cfg.Registry,
		max:           max,
		dryRun:        cfg.DryRun,
		dropUnmatched: cfg.DropUnmatched,
	}
}

// Run pops parked messages until the lot is empty or the cap is reached.
// Per-message failures are counted and logged; the run continues.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	for result.Replayed < r.max {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tenantID, msg, err := r.queue.PopUnmatched(ctx)
		if err != nil {
			return result, err
		}
		if msg == nil {
			break // lot drained
		}
		result.Replayed++

		parsed := r.registry.Classify(*msg)
		if parsed == nil || parsed.Confidence == 0 {
			result.StillUnmatched++
			if r.dropUnmatched && !r.dryRun {
				slog.Info("dropping still-unmatched message",
					"tenant", tenantID,
					"subject", msg.Subject,
				)
				continue
			}
			if err := r.queue.ParkUnmatched(ctx, tenantID, msg); err != nil {
				slog.Error("re-park failed", "tenant", tenantID, "error", err)
				result.Errors++
			}
			continue
		}

		if r.dryRun {
			result.Created++
			slog.Info("dry run: message now matches",
				"tenant", tenantID,
				"source", parsed.Payload.Source,
				"confidence", parsed.Confidence,
			)
			if err := r.queue.ParkUnmatched(ctx, tenantID, msg); err != nil {
				slog.Error("re-park failed", "tenant", tenantID, "error", err)
				result.Errors++
			}
			continue
		}

		lead, err := r.store.Create(ctx, tenantID, parsed.Payload.Source, parsed.Payload)
		if err != nil {
			slog.Error("replay lead create failed", "tenant", tenantID, "error", err)
			result.Errors++
			// Put the message back so it is not lost.
			if err := r.queue.ParkUnmatched(ctx, tenantID, msg); err != nil {
				slog.Error("re-park after failed create", "tenant", tenantID, "error", err)
			}
			continue
		}
		result.Created++

		event := &models.LeadCreatedEvent{
			LeadID:    lead.ID,
			TenantID:  lead.TenantID,
			Source:    lead.Source,
			Payload:   lead.Payload,
			CreatedAt: lead.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := r.queue.PublishLeadCreated(ctx, event); err != nil {
			slog.Error("replay publish failed", "lead_id", lead.ID, "error", err)
			result.Errors++
		}
	}

	result.Elapsed = time.Since(start)

	slog.Info("replay complete",
		"replayed", result.Replayed,
		"created", result.Created,
		"still_unmatched", result.StillUnmatched,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)

	return result, nil
}
