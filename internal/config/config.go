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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BrokerConfig holds portal credentials for one lead broker. Brokers whose
// mails only carry a teaser reference need a portal fetch before persisting.
type BrokerConfig struct {
	Source       string `yaml:"source"`
	PortalURL    string `yaml:"portal_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Brokers []BrokerConfig

	// Postgres
	DatabaseURL  string
	StoreTimeout time.Duration

	// Redis
	RedisURL   string
	LeadsQueue string

	// Rate limiting
	RateLimitBackend   string // "memory" (default) or "redis"
	RateLimitCapacity  int
	RateLimitPerSecond float64

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Brokers []struct {
		Source       string `yaml:"source"`
		PortalURL    string `yaml:"portal_url"`
		TokenURL     string `yaml:"token_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"brokers"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Leads string `yaml:"leads"`
		} `yaml:"queues"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL:        envOrDefault("DATABASE_URL", "postgres://localhost:5432/leadflow"),
		StoreTimeout:       envOrDefaultDuration("STORE_TIMEOUT", 5*time.Second),
		RedisURL:           firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		LeadsQueue:         firstNonEmpty(raw.Redis.Queues.Leads, envOrDefault("LEADS_QUEUE", "leads")),
		RateLimitBackend:   envOrDefault("RATE_LIMIT_BACKEND", "memory"),
		RateLimitCapacity:  envOrDefaultInt("RATE_LIMIT_CAPACITY", 60),
		RateLimitPerSecond: envOrDefaultFloat("RATE_LIMIT_PER_SECOND", 1),
		Port:               envOrDefaultInt("PORT", 8080),
	}

	// Build broker configs
	for _, b := range raw.Brokers {
		bc := BrokerConfig{
			Source:       b.Source,
			PortalURL:    b.PortalURL,
			TokenURL:     b.TokenURL,
			ClientID:     b.ClientID,
			ClientSecret: b.ClientSecret,
		}

		// Skip brokers with empty credentials (commented out in YAML)
		if bc.Source == "" || bc.ClientID == "" || bc.ClientSecret == "" {
			continue
		}

		cfg.Brokers = append(cfg.Brokers, bc)
	}

	if cfg.RateLimitBackend != "memory" && cfg.RateLimitBackend != "redis" {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BACKEND %q — use \"memory\" or \"redis\"", cfg.RateLimitBackend)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
