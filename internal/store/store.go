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

// Package store persists leads and their transition events in Postgres
// under strict per-tenant isolation. Every statement filters on tenant_id;
// a row belonging to another tenant is indistinguishable from a missing
// row — both surface ErrNotFound.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flowcrm/ingestion/internal/lifecycle"
	"github.com/flowcrm/ingestion/internal/models"
)

// ErrNotFound covers both truly missing rows and cross-tenant access
// attempts. The uniformity is a security property: a mismatching tenant
// must not learn that the record exists.
var ErrNotFound = errors.New("lead not found")

// defaultTimeout bounds each storage operation when no override is set.
const defaultTimeout = 5 * time.Second

// Pool is the subset of pgxpool.Pool the store uses. pgxmock implements it
// for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Filter narrows List results. Zero fields are ignored.
type Filter struct {
	Status models.LeadStatus
	Source string
	Limit  int
}

// Store provides tenant-scoped CRUD for leads.
type Store struct {
	pool    Pool
	timeout time.Duration
}

// NewStore creates a lead store backed by the given Postgres pool. A
// non-positive timeout falls back to the default.
func NewStore(pool Pool, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{pool: pool, timeout: timeout}
}

// EnsureSchema creates the leads and transition-event tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS leads (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			source     TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'NEW',
			payload    JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_leads_tenant ON leads(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_leads_tenant_status ON leads(tenant_id, status);

		CREATE TABLE IF NOT EXISTS lead_status_events (
			id          TEXT PRIMARY KEY,
			lead_id     TEXT NOT NULL REFERENCES leads(id),
			tenant_id   TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status   TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_lead_events_lead ON lead_status_events(tenant_id, lead_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure lead schema: %w", err)
	}
	slog.Info("lead store schema ensured")
	return nil
}

// Create persists a new lead in status NEW and returns the stored entity.
func (s *Store) Create(ctx context.Context, tenantID, source string, payload models.ParsedLeadPayload) (*models.Lead, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal lead payload: %w", err)
	}

	lead := &models.Lead{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Source:   source,
		Status:   models.StatusNew,
		Payload:  payload,
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO leads (id, tenant_id, source, status, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, lead.ID, tenantID, source, string(models.StatusNew), payloadJSON).
		Scan(&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}

	return lead, nil
}

// GetByID retrieves one lead scoped by tenant.
func (s *Store) GetByID(ctx context.Context, tenantID, id string) (*models.Lead, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, source, status, payload, created_at, updated_at
		FROM leads
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanLead(row)
}

// List returns the tenant's leads, newest first.
func (s *Store) List(ctx context.Context, tenantID string, f Filter) ([]models.Lead, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := `
		SELECT id, tenant_id, source, status, payload, created_at, updated_at
		FROM leads
		WHERE tenant_id = $1`
	args := []any{tenantID}

	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		q += fmt.Sprintf(" AND source = $%d", len(args))
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()
	return collectLeads(rows)
}

// UpdateStatus applies a validated status transition and appends the
// transition event in the same transaction: both writes land or neither
// does. The transition check runs before anything touches storage state.
//
// The transaction runs on a context detached from the caller's so a
// client disconnect mid-write cannot leave a status change without its
// audit trail.
func (s *Store) UpdateStatus(ctx context.Context, tenantID, id string, to models.LeadStatus) (*models.Lead, *models.LeadStatusTransitionEvent, error) {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	tx, err := s.pool.Begin(txCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin status transaction: %w", err)
	}
	defer tx.Rollback(txCtx)

	row := tx.QueryRow(txCtx, `
		SELECT id, tenant_id, source, status, payload, created_at, updated_at
		FROM leads
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, id)
	lead, err := scanLead(row)
	if err != nil {
		return nil, nil, err
	}

	if err := lifecycle.ValidateTransition(lead.Status, to); err != nil {
		return nil, nil, err
	}

	tag, err := tx.Exec(txCtx, `
		UPDATE leads
		SET status = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND id = $3
	`, string(to), tenantID, id)
	if err != nil {
		return nil, nil, fmt.Errorf("update lead status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil, ErrNotFound
	}

	event := &models.LeadStatusTransitionEvent{
		ID:         uuid.New().String(),
		LeadID:     id,
		FromStatus: lead.Status,
		ToStatus:   to,
		CreatedAt:  time.Now().UTC(),
	}

	_, err = tx.Exec(txCtx, `
		INSERT INTO lead_status_events (id, lead_id, tenant_id, from_status, to_status)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, id, tenantID, string(event.FromStatus), string(event.ToStatus))
	if err != nil {
		return nil, nil, fmt.Errorf("append transition event: %w", err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, nil, fmt.Errorf("commit status transaction: %w", err)
	}

	lead.Status = to
	lead.UpdatedAt = event.CreatedAt

	slog.Info("lead status updated",
		"tenant", tenantID,
		"lead_id", id,
		"from", event.FromStatus,
		"to", event.ToStatus,
	)

	return lead, event, nil
}

// ListEvents returns the lead's transition trail in order, oldest first.
// The lead itself is looked up first so a cross-tenant probe gets
// ErrNotFound rather than an empty list.
func (s *Store) ListEvents(ctx context.Context, tenantID, leadID string) ([]models.LeadStatusTransitionEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.GetByID(ctx, tenantID, leadID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, lead_id, from_status, to_status, created_at
		FROM lead_status_events
		WHERE tenant_id = $1 AND lead_id = $2
		ORDER BY created_at
	`, tenantID, leadID)
	if err != nil {
		return nil, fmt.Errorf("list transition events: %w", err)
	}
	defer rows.Close()

	events := []models.LeadStatusTransitionEvent{}
	for rows.Next() {
		var (
			ev       models.LeadStatusTransitionEvent
			from, to string
		)
		if err := rows.Scan(&ev.ID, &ev.LeadID, &from, &to, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition event: %w", err)
		}
		ev.FromStatus = models.LeadStatus(from)
		ev.ToStatus = models.LeadStatus(to)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// scanLead scans a single lead row, mapping pgx.ErrNoRows to ErrNotFound.
func scanLead(row pgx.Row) (*models.Lead, error) {
	var (
		lead        models.Lead
		status      string
		payloadJSON []byte
	)
	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.Source, &status,
		&payloadJSON, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}

	lead.Status = models.LeadStatus(status)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &lead.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal lead payload: %w", err)
		}
	}
	return &lead, nil
}

func collectLeads(rows pgx.Rows) ([]models.Lead, error) {
	leads := []models.Lead{}
	for rows.Next() {
		var (
			lead        models.Lead
			status      string
			payloadJSON []byte
		)
		if err := rows.Scan(
			&lead.ID, &lead.TenantID, &lead.Source, &status,
			&payloadJSON, &lead.CreatedAt, &lead.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		lead.Status = models.LeadStatus(status)
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &lead.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal lead payload: %w", err)
			}
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}
