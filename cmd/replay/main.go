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

// FlowCRM — Unmatched Message Replay Command
//
// Standalone CLI tool that drains the parked unmatched-message list and
// re-runs each message through the parser registry. Intended to be run
// after a parser revision so previously unrecognized broker mails become
// leads instead of staying lost.
//
// Usage:
//
//	go run ./cmd/replay/ [--max 1000] [--dry-run] [--drop-unmatched]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/flowcrm/ingestion/internal/config"
	"github.com/flowcrm/ingestion/internal/parser"
	"github.com/flowcrm/ingestion/internal/queue"
	"github.com/flowcrm/ingestion/internal/replay"
	"github.com/flowcrm/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	maxFlag := flag.Int("max", 1000, "Maximum number of parked messages to replay")
	dryRunFlag := flag.Bool("dry-run", false, "Classify only; park every message back")
	dropFlag := flag.Bool("drop-unmatched", false, "Discard messages that still match no parser")
	flag.Parse()

	slog.Info("starting unmatched message replay",
		"max", *maxFlag,
		"dry_run", *dryRunFlag,
		"drop_unmatched", *dropFlag,
	)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	leads := store.NewStore(pgPool, cfg.StoreTimeout)

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.LeadsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Run Replay ---
	runner := replay.NewRunner(replay.RunnerConfig{
		Queue:         publisher,
		Store:         leads,
		Registry:      parser.NewRegistry(),
		Max:           *maxFlag,
		DryRun:        *dryRunFlag,
		DropUnmatched: *dropFlag,
	})

	result, err := runner.Run(ctx)
	if err != nil {
		slog.Error("replay failed", "error", err)
		os.Exit(1)
	}

	// --- Summary ---
	slog.Info("replay finished",
		"replayed", result.Replayed,
		"created", result.Created,
		"still_unmatched", result.StillUnmatched,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
}
