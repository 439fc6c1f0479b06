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

// FlowCRM — Lead Ingestion Service
//
// Entry point for the lead ingestion service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Builds OAuth2 portal clients for teaser-only lead brokers
//  4. Serves the intake, lead and metrics endpoints
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/flowcrm/ingestion/internal/config"
	"github.com/flowcrm/ingestion/internal/dedup"
	"github.com/flowcrm/ingestion/internal/intake"
	"github.com/flowcrm/ingestion/internal/metrics"
	"github.com/flowcrm/ingestion/internal/parser"
	"github.com/flowcrm/ingestion/internal/portal"
	"github.com/flowcrm/ingestion/internal/queue"
	"github.com/flowcrm/ingestion/internal/ratelimit"
	"github.com/flowcrm/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting FlowCRM lead ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"brokers", len(cfg.Brokers),
		"rate_limit_backend", cfg.RateLimitBackend,
		"store_timeout", cfg.StoreTimeout,
	)

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
	slog.Info("connected to PostgreSQL")

	leads := store.NewStore(pgPool, cfg.StoreTimeout)
	if err := leads.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure lead schema", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.LeadsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Rate Limiter ---
	var limiter ratelimit.Limiter
	switch cfg.RateLimitBackend {
	case "redis":
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitCapacity, cfg.RateLimitPerSecond)
	default:
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitCapacity, cfg.RateLimitPerSecond)
	}

	// --- Build OAuth2 portal clients per broker ---
	portalClients := make(map[string]*http.Client)
	portalURLs := make(map[string]string)
	for _, broker := range cfg.Brokers {
		creds := &clientcredentials.Config{
			ClientID:     broker.ClientID,
			ClientSecret: broker.ClientSecret,
			TokenURL:     broker.TokenURL,
		}
		portalClients[broker.Source] = creds.Client(ctx)
		portalURLs[broker.Source] = broker.PortalURL
		slog.Info("portal client configured", "source", broker.Source)
	}
	fetcher := portal.NewFetcher(portalClients, portalURLs)

	// --- Intake Handler ---
	recorder := metrics.NewRegistry()
	handler := intake.NewHandler(
		leads,
		parser.NewRegistry(),
		limiter,
		recorder,
		publisher,
		filter,
		fetcher,
	)

	mux := handler.Routes()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("lead ingestion service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("lead ingestion service stopped")
}
