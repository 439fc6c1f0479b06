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

// Package models defines the data structures shared across the ingestion service.
package models

import "time"

// LeadStatus is the lifecycle state of a lead.
type LeadStatus string

const (
	StatusNew       LeadStatus = "NEW"
	StatusContacted LeadStatus = "CONTACTED"
)

// Lead sources.
const (
	SourceForm        = "form"
	SourceLeadmail    = "leadmail"
	SourceRentConnect = "rentconnect"
	SourceFestlokaler = "festlokaler"
)

// ParsedLeadPayload is the structured record a parser extracts from one
// inbound message. Immutable once returned by a parser; only the portal
// fetcher merges additional fields before the payload is persisted.
type ParsedLeadPayload struct {
	Brand       string `json:"brand,omitempty"`
	Source      string `json:"source"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	City        string `json:"city,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	Pax         int    `json:"pax,omitempty"`
	EventDate   string `json:"event_date,omitempty"`
	Budget      string `json:"budget,omitempty"`
	Notes       string `json:"notes,omitempty"`

	// Partial marks a payload the source mail only partially describes;
	// NeedsPortalFetch additionally carries a PortalRef the broker portal
	// resolves to the full record.
	Partial          bool   `json:"partial,omitempty"`
	NeedsPortalFetch bool   `json:"needs_portal_fetch,omitempty"`
	PortalRef        string `json:"portal_ref,omitempty"`

	// Misroute marks a message that matched a source but clearly belongs
	// to another mailbox (wrong brand footer, wrong region).
	Misroute bool `json:"misroute,omitempty"`

	ClassificationConfidence float64 `json:"classification_confidence,omitempty"`

	// DuplicateOf is an extension point. No population logic exists yet;
	// duplicate-lead matching needs explicit design before it is wired.
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// ParseResult pairs a payload with the parser's extraction confidence.
// Confidence is min(1, nonEmptyFields/expectedFields), a completeness
// heuristic rather than a probability.
type ParseResult struct {
	Payload    ParsedLeadPayload `json:"payload"`
	Confidence float64           `json:"confidence"`
}

// InboundEmail is a forwarded broker email as delivered to the intake
// endpoint. Transient; never persisted as-is.
type InboundEmail struct {
	Mailbox    string `json:"mailbox"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	RawText    string `json:"raw_text"`
	ReceivedAt string `json:"received_at,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
}

// FormSubmission is a direct web-form submission. Skips the parser registry;
// the gateway validates it directly.
type FormSubmission struct {
	Source  string         `json:"source,omitempty"`
	Payload map[string]any `json:"payload"`
}

// Lead is the persisted entity. TenantID is set at creation and never
// mutated; every query against leads is scoped by the caller's tenant.
type Lead struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Source    string            `json:"source"`
	Status    LeadStatus        `json:"status"`
	Payload   ParsedLeadPayload `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// LeadStatusTransitionEvent is one row of the append-only audit trail.
// Written in the same transaction as the status change it records.
type LeadStatusTransitionEvent struct {
	ID         string     `json:"id"`
	LeadID     string     `json:"lead_id"`
	FromStatus LeadStatus `json:"from_status"`
	ToStatus   LeadStatus `json:"to_status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// LeadCreatedEvent is the envelope published to the downstream queue when a
// lead is persisted. External CRM/analysis workers consume it; this service
// only writes.
type LeadCreatedEvent struct {
	LeadID    string            `json:"lead_id"`
	TenantID  string            `json:"tenant_id"`
	Source    string            `json:"source"`
	Payload   ParsedLeadPayload `json:"payload"`
	CreatedAt string            `json:"created_at"`
}
