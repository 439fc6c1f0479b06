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

// Package intake is the HTTP boundary of the lead pipeline. It accepts
// web-form submissions and forwarded broker emails, runs them through
// rate limiting, classification and normalization, and persists the
// resulting lead. It also exposes the lead read/update surface and the
// metrics endpoint.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flowcrm/ingestion/internal/lifecycle"
	"github.com/flowcrm/ingestion/internal/metrics"
	"github.com/flowcrm/ingestion/internal/models"
	"github.com/flowcrm/ingestion/internal/normalize"
	"github.com/flowcrm/ingestion/internal/parser"
	"github.com/flowcrm/ingestion/internal/portal"
	"github.com/flowcrm/ingestion/internal/ratelimit"
	"github.com/flowcrm/ingestion/internal/store"
)

// TenantHeader carries the caller's tenant credential. Resolution of the
// credential itself is owned by the fronting auth proxy; by the time a
// request reaches this service the header value is the tenant id.
const TenantHeader = "X-Tenant-ID"

// LeadStore is the persistence surface the gateway depends on.
// *store.Store satisfies it; tests substitute an in-memory fake.
type LeadStore interface {
	Create(ctx context.Context, tenantID, source string, payload models.ParsedLeadPayload) (*models.Lead, error)
	GetByID(ctx context.Context, tenantID, id string) (*models.Lead, error)
	List(ctx context.Context, tenantID string, f store.Filter) ([]models.Lead, error)
	UpdateStatus(ctx context.Context, tenantID, id string, to models.LeadStatus) (*models.Lead, *models.LeadStatusTransitionEvent, error)
	ListEvents(ctx context.Context, tenantID, leadID string) ([]models.LeadStatusTransitionEvent, error)
}

// EventPublisher pushes created leads downstream and parks unmatched
// messages for later replay. *queue.Publisher satisfies it.
type EventPublisher interface {
	PublishLeadCreated(ctx context.Context, event *models.LeadCreatedEvent) error
	ParkUnmatched(ctx context.Context, tenantID string, msg *models.InboundEmail) error
}

// DedupFilter suppresses redelivered broker emails. *dedup.Filter
// satisfies it.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// DetailFetcher resolves portal teaser references. *portal.Fetcher
// satisfies it.
type DetailFetcher interface {
	Supports(source string) bool
	FetchDetail(ctx context.Context, source, ref string) (*portal.Detail, error)
}

// Handler wires the intake endpoints together. Publisher, filter and
// fetcher are optional; a nil value disables that step.
type Handler struct {
	store     LeadStore
	registry  *parser.Registry
	limiter   ratelimit.Limiter
	metrics   *metrics.Registry
	publisher EventPublisher
	filter    DedupFilter
	fetcher   DetailFetcher
}

// NewHandler creates the intake handler.
func NewHandler(
	leads LeadStore,
	registry *parser.Registry,
	limiter ratelimit.Limiter,
	recorder *metrics.Registry,
	publisher EventPublisher,
	filter DedupFilter,
	fetcher DetailFetcher,
) *Handler {
	return &Handler{
		store:     leads,
		registry:  registry,
		limiter:   limiter,
		metrics:   recorder,
		publisher: publisher,
		filter:    filter,
		fetcher:   fetcher,
	}
}

// Routes returns the ServeMux for all intake endpoints.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ingest/form", h.handleIngestForm)
	mux.HandleFunc("POST /ingest/email", h.handleIngestEmail)
	mux.HandleFunc("GET /leads", h.handleListLeads)
	mux.HandleFunc("GET /leads/{id}", h.handleGetLead)
	mux.HandleFunc("PATCH /leads/{id}/status", h.handleUpdateStatus)
	mux.HandleFunc("GET /leads/{id}/events", h.handleListEvents)
	mux.HandleFunc("GET /metrics", h.handleMetrics)

	return mux
}

// handleIngestForm accepts a direct web-form submission. The payload skips
// the parser registry entirely; validation happens here.
func (h *Handler) handleIngestForm(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	tenant, ok := h.admit(w, r)
	if !ok {
		return
	}

	var sub models.FormSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Payload == nil {
		writeError(w, http.StatusBadRequest, "payload_object_required")
		return
	}

	email, _ := sub.Payload["email"].(string)
	phone, _ := sub.Payload["phone"].(string)
	if !plausibleEmail(email) && !plausiblePhone(phone) {
		writeError(w, http.StatusBadRequest, "email_or_phone_required")
		return
	}

	source := sub.Source
	if source == "" {
		source = models.SourceForm
	}
	payload := formPayload(source, sub.Payload)

	lead, err := h.store.Create(r.Context(), tenant, source, payload)
	if err != nil {
		slog.Error("form lead create failed", "tenant", tenant, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	h.leadCreated(r.Context(), lead, start)
	writeJSON(w, http.StatusCreated, lead)
}

// handleIngestEmail accepts a forwarded broker email, classifies it
// against the registered parsers, and persists the winning extraction.
func (h *Handler) handleIngestEmail(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	tenant, ok := h.admit(w, r)
	if !ok {
		return
	}

	var msg models.InboundEmail
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil || msg.RawText == "" {
		writeError(w, http.StatusBadRequest, "raw_text_required")
		return
	}

	// Brokers redeliver on slow acknowledgements; the first copy wins.
	if h.filter != nil && msg.MessageID != "" {
		isNew, err := h.filter.IsNew(r.Context(), msg.MessageID)
		if err != nil {
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Debug("skipping duplicate message", "message_id", msg.MessageID)
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "duplicate"})
			return
		}
	}

	result := h.registry.Classify(msg)
	if result == nil {
		// Not recognizable as a lead. Park it so a later parser revision
		// can replay it instead of losing the message.
		if h.publisher != nil {
			if err := h.publisher.ParkUnmatched(r.Context(), tenant, &msg); err != nil {
				slog.Error("park unmatched failed", "tenant", tenant, "error", err)
			}
		}
		h.rejected(tenant, "no_parser")
		writeError(w, http.StatusUnprocessableEntity, "not_a_lead")
		return
	}
	if result.Confidence == 0 {
		h.rejected(tenant, "empty_extraction")
		writeError(w, http.StatusUnprocessableEntity, "empty_extraction")
		return
	}

	payload := result.Payload
	if payload.NeedsPortalFetch && h.fetcher != nil && h.fetcher.Supports(payload.Source) {
		detail, err := h.fetcher.FetchDetail(r.Context(), payload.Source, payload.PortalRef)
		if err != nil {
			slog.Warn("portal fetch failed, persisting partial payload",
				"source", payload.Source,
				"ref", payload.PortalRef,
				"error", err,
			)
		} else {
			portal.Merge(&payload, detail)
		}
	}

	lead, err := h.store.Create(r.Context(), tenant, payload.Source, payload)
	if err != nil {
		slog.Error("email lead create failed", "tenant", tenant, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	h.leadCreated(r.Context(), lead, start)
	writeJSON(w, http.StatusCreated, lead)
}

func (h *Handler) handleListLeads(w http.ResponseWriter, r *http.Request) {
	tenant := r.Header.Get(TenantHeader)
	if tenant == "" {
		writeError(w, http.StatusUnauthorized, "tenant_required")
		return
	}

	f := store.Filter{
		Status: models.LeadStatus(r.URL.Query().Get("status")),
		Source: r.URL.Query().Get("source"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		f.Limit = n
	}

	leads, err := h.store.List(r.Context(), tenant, f)
	if err != nil {
		slog.Error("list leads failed", "tenant", tenant, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	writeJSON(w, http.StatusOK, leads)
}

func (h *Handler) handleGetLead(w http.ResponseWriter, r *http.Request) {
	tenant := r.Header.Get(TenantHeader)
	if tenant == "" {
		writeError(w, http.StatusUnauthorized, "tenant_required")
		return
	}

	lead, err := h.store.GetByID(r.Context(), tenant, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		slog.Error("get lead failed", "tenant", tenant, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenant := r.Header.Get(TenantHeader)
	if tenant == "" {
		writeError(w, http.StatusUnauthorized, "tenant_required")
		return
	}

	var body struct {
		ToStatus models.LeadStatus `json:"to_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ToStatus == "" {
		writeError(w, http.StatusBadRequest, "to_status_required")
		return
	}

	lead, event, err := h.store.UpdateStatus(r.Context(), tenant, r.PathValue("id"), body.ToStatus)
	var ite *lifecycle.InvalidTransitionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case errors.As(err, &ite):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transition")
		return
	case err != nil:
		slog.Error("status update failed", "tenant", tenant, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	if h.metrics != nil {
		h.metrics.Inc(metrics.LeadStatusTransitionTotal, map[string]string{
			"tenant": tenant,
			"from":   string(event.FromStatus),
			"to":     string(event.ToStatus),
		})
	}

	writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	tenant := r.Header.Get(TenantHeader)
	if tenant == "" {
		writeError(w, http.StatusUnauthorized, "tenant_required")
		return
	}

	events, err := h.store.ListEvents(r.Context(), tenant, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		slog.Error("list events failed", "tenant", tenant, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// handleMetrics serves the Prometheus text exposition. Aggregate totals
// only; the endpoint is not tenant-scoped.
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.metrics.RenderPrometheus()))
}

// admit runs the ingest admission checks shared by both intake endpoints:
// the rate limiter first (anonymous traffic is bounded too), then the
// tenant credential. Returns the tenant id and whether the request may
// proceed; on false the response has already been written.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.Header.Get(TenantHeader)

	key := tenant
	if key == "" {
		key = ratelimit.AnonymousKey
	}

	d, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		// Limiter backend trouble must not take intake down with it.
		slog.Warn("rate limiter unavailable, admitting request", "error", err)
	} else {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			if h.metrics != nil {
				h.metrics.Inc(metrics.RateLimitedTotal, map[string]string{"tenant": key})
			}
			retry := int(d.RetryAfter.Seconds() + 0.999) // round up, never advertise zero
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "rate_limited")
			return "", false
		}
	}

	if tenant == "" {
		writeError(w, http.StatusUnauthorized, "tenant_required")
		return "", false
	}

	return tenant, true
}

// leadCreated records the post-persist bookkeeping shared by both intake
// endpoints: metrics and the downstream queue event.
func (h *Handler) leadCreated(ctx context.Context, lead *models.Lead, start time.Time) {
	if h.metrics != nil {
		h.metrics.Inc(metrics.LeadCreatedTotal, map[string]string{
			"tenant": lead.TenantID,
			"source": lead.Source,
		})
		h.metrics.Observe(metrics.IngestDurationSeconds, time.Since(start).Seconds(), map[string]string{
			"source": lead.Source,
		})
	}

	if h.publisher != nil {
		event := &models.LeadCreatedEvent{
			LeadID:    lead.ID,
			TenantID:  lead.TenantID,
			Source:    lead.Source,
			Payload:   lead.Payload,
			CreatedAt: lead.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := h.publisher.PublishLeadCreated(ctx, event); err != nil {
			slog.Error("publish lead created failed",
				"tenant", lead.TenantID,
				"lead_id", lead.ID,
				"error", err,
			)
		}
	}
}

func (h *Handler) rejected(tenant, reason string) {
	if h.metrics != nil {
		h.metrics.Inc(metrics.LeadRejectedTotal, map[string]string{
			"tenant": tenant,
			"reason": reason,
		})
	}
}

// plausibleEmail applies the intake bar for a contactable submission: the
// value merely has to look like an address, full validation happens in
// the CRM.
func plausibleEmail(v string) bool {
	for _, r := range v {
		if r == '@' {
			return true
		}
	}
	return false
}

func plausiblePhone(v string) bool {
	return len(v) >= 6
}

// formPayload lifts the free-form submission map into the structured
// payload, normalizing contact fields the same way the parsers do.
func formPayload(source string, m map[string]any) models.ParsedLeadPayload {
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}

	p := models.ParsedLeadPayload{
		Source:      source,
		Brand:       str("brand"),
		Name:        str("name"),
		Email:       str("email"),
		Address:     str("address"),
		PostalCode:  str("postal_code"),
		City:        str("city"),
		ServiceType: str("service_type"),
		Frequency:   str("frequency"),
		EventType:   str("event_type"),
		Budget:      str("budget"),
		Notes:       str("notes"),
	}
	if phone := str("phone"); phone != "" {
		p.Phone = normalize.Phone(phone)
	}
	if date := str("event_date"); date != "" {
		if iso, ok := normalize.TryParseDate(date); ok {
			p.EventDate = iso
		} else {
			p.EventDate = date
		}
	}
	switch pax := m["pax"].(type) {
	case float64:
		p.Pax = int(pax)
	case string:
		if n, err := strconv.Atoi(pax); err == nil {
			p.Pax = n
		}
	}

	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
