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

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/flowcrm/ingestion/internal/lifecycle"
	"github.com/flowcrm/ingestion/internal/models"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewStore(mock, 0), mock
}

var leadColumns = []string{"id", "tenant_id", "source", "status", "payload", "created_at", "updated_at"}

func leadRow(mock pgxmock.PgxPoolIface, id, tenant, source, status string) *pgxmock.Rows {
	now := time.Now().UTC()
	return mock.NewRows(leadColumns).
		AddRow(id, tenant, source, status, []byte(`{"source":"`+source+`"}`), now, now)
}

// TestStore_Create verifies the insert shape and the returned entity.
func TestStore_Create(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "tenant-a", models.SourceForm, "NEW", pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	lead, err := s.Create(context.Background(), "tenant-a", models.SourceForm, models.ParsedLeadPayload{
		Source: models.SourceForm,
		Email:  "kunde@example.dk",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if lead.TenantID != "tenant-a" {
		t.Errorf("tenant_id = %q, want tenant-a", lead.TenantID)
	}
	if lead.Status != models.StatusNew {
		t.Errorf("status = %q, want NEW", lead.Status)
	}
	if lead.ID == "" {
		t.Error("lead id not assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestStore_GetByID_ScopesByTenant: the query must carry the tenant filter,
// and a miss surfaces ErrNotFound.
func TestStore_GetByID_ScopesByTenant(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM leads\s+WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("tenant-a", "lead-1").
		WillReturnRows(leadRow(mock, "lead-1", "tenant-a", models.SourceLeadmail, "NEW"))

	lead, err := s.GetByID(context.Background(), "tenant-a", "lead-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if lead.Source != models.SourceLeadmail {
		t.Errorf("source = %q", lead.Source)
	}

	// Same lead id, different tenant: not found, never the record.
	mock.ExpectQuery(`SELECT .* FROM leads\s+WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("tenant-b", "lead-1").
		WillReturnError(pgx.ErrNoRows)

	if _, err := s.GetByID(context.Background(), "tenant-b", "lead-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant GetByID error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestStore_List applies the tenant filter plus optional status/source/limit.
func TestStore_List(t *testing.T) {
	s, mock := newMockStore(t)

	rows := leadRow(mock, "lead-1", "tenant-a", models.SourceForm, "NEW")
	mock.ExpectQuery(`SELECT .* FROM leads\s+WHERE tenant_id = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("tenant-a", "NEW", 10).
		WillReturnRows(rows)

	leads, err := s.List(context.Background(), "tenant-a", Filter{Status: models.StatusNew, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(leads) != 1 || leads[0].ID != "lead-1" {
		t.Errorf("leads = %+v", leads)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestStore_UpdateStatus_Atomic: status write and event append share one
// transaction, committed together.
func TestStore_UpdateStatus_Atomic(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM leads\s+WHERE tenant_id = \$1 AND id = \$2\s+FOR UPDATE`).
		WithArgs("tenant-a", "lead-1").
		WillReturnRows(leadRow(mock, "lead-1", "tenant-a", models.SourceForm, "NEW"))
	mock.ExpectExec(`UPDATE leads\s+SET status = \$1`).
		WithArgs("CONTACTED", "tenant-a", "lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO lead_status_events`).
		WithArgs(pgxmock.AnyArg(), "lead-1", "tenant-a", "NEW", "CONTACTED").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback() // deferred rollback after commit is a no-op

	lead, event, err := s.UpdateStatus(context.Background(), "tenant-a", "lead-1", models.StatusContacted)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if lead.Status != models.StatusContacted {
		t.Errorf("status = %q, want CONTACTED", lead.Status)
	}
	if event.FromStatus != models.StatusNew || event.ToStatus != models.StatusContacted {
		t.Errorf("event = %s -> %s, want NEW -> CONTACTED", event.FromStatus, event.ToStatus)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestStore_UpdateStatus_InvalidTransition: validation failure rolls back
// before any write.
func TestStore_UpdateStatus_InvalidTransition(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM leads`).
		WithArgs("tenant-a", "lead-1").
		WillReturnRows(leadRow(mock, "lead-1", "tenant-a", models.SourceForm, "CONTACTED"))
	mock.ExpectRollback()

	_, _, err := s.UpdateStatus(context.Background(), "tenant-a", "lead-1", models.StatusNew)

	var ite *lifecycle.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("error = %v, want *InvalidTransitionError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("a write happened despite failed validation: %v", err)
	}
}

// TestStore_UpdateStatus_CrossTenant: another tenant's lead id behaves like
// a missing row.
func TestStore_UpdateStatus_CrossTenant(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM leads`).
		WithArgs("tenant-b", "lead-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	if _, _, err := s.UpdateStatus(context.Background(), "tenant-b", "lead-1", models.StatusContacted); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestStore_ListEvents verifies ownership check plus ordered trail, and the
// empty-trail case for an owned lead.
func TestStore_ListEvents(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM leads`).
		WithArgs("tenant-a", "lead-1").
		WillReturnRows(leadRow(mock, "lead-1", "tenant-a", models.SourceForm, "CONTACTED"))
	mock.ExpectQuery(`SELECT .* FROM lead_status_events\s+WHERE tenant_id = \$1 AND lead_id = \$2`).
		WithArgs("tenant-a", "lead-1").
		WillReturnRows(mock.NewRows([]string{"id", "lead_id", "from_status", "to_status", "created_at"}).
			AddRow("ev-1", "lead-1", "NEW", "CONTACTED", now))

	events, err := s.ListEvents(context.Background(), "tenant-a", "lead-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].FromStatus != models.StatusNew || events[0].ToStatus != models.StatusContacted {
		t.Errorf("event = %+v", events[0])
	}

	// Owned lead with no transitions yet: empty list, not an error.
	mock.ExpectQuery(`SELECT .* FROM leads`).
		WithArgs("tenant-a", "lead-2").
		WillReturnRows(leadRow(mock, "lead-2", "tenant-a", models.SourceForm, "NEW"))
	mock.ExpectQuery(`SELECT .* FROM lead_status_events`).
		WithArgs("tenant-a", "lead-2").
		WillReturnRows(mock.NewRows([]string{"id", "lead_id", "from_status", "to_status", "created_at"}))

	events, err = s.ListEvents(context.Background(), "tenant-a", "lead-2")
	if err != nil {
		t.Fatalf("ListEvents empty: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("events = %v, want empty non-nil slice", events)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestStore_ListEvents_CrossTenant: probing another tenant's trail yields
// ErrNotFound, revealing nothing.
func TestStore_ListEvents_CrossTenant(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM leads`).
		WithArgs("tenant-b", "lead-1").
		WillReturnError(pgx.ErrNoRows)

	if _, err := s.ListEvents(context.Background(), "tenant-b", "lead-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
