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

package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowcrm/ingestion/internal/models"
)

// TestFetchDetail verifies the happy path and the expired-reference path.
func TestFetchDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/enquiries/REF-2041":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"name": "Louise Berg",
				"email": "louise@example.dk",
				"phone": "98 76 54 32",
				"event_type": "Bryllup",
				"guests": 120,
				"event_date": "14-08-2027",
				"budget": "45.000 kr"
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewFetcher(
		map[string]*http.Client{"festlokaler": srv.Client()},
		map[string]string{"festlokaler": srv.URL},
	)

	d, err := f.FetchDetail(context.Background(), "festlokaler", "REF-2041")
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if d == nil {
		t.Fatal("FetchDetail returned nil detail")
	}
	if d.Name != "Louise Berg" || d.Guests != 120 {
		t.Errorf("detail = %+v", d)
	}

	// Expired reference: nil detail, no error.
	d, err = f.FetchDetail(context.Background(), "festlokaler", "REF-9999")
	if err != nil {
		t.Fatalf("FetchDetail expired: %v", err)
	}
	if d != nil {
		t.Errorf("detail = %+v, want nil for expired reference", d)
	}
}

// TestFetchDetail_UnknownSource rejects sources without a portal.
func TestFetchDetail_UnknownSource(t *testing.T) {
	f := NewFetcher(map[string]*http.Client{}, map[string]string{})
	if _, err := f.FetchDetail(context.Background(), "leadmail", "REF-1"); err == nil {
		t.Error("expected error for unconfigured source")
	}
	if f.Supports("leadmail") {
		t.Error("Supports(leadmail) = true, want false")
	}
}

// TestMerge: mail fields win, empty fields fill, flags clear, phone and
// date normalize.
func TestMerge(t *testing.T) {
	payload := models.ParsedLeadPayload{
		Source:           models.SourceFestlokaler,
		Name:             "Louise Berg",
		EventType:        "Bryllup",
		NeedsPortalFetch: true,
		PortalRef:        "REF-2041",
		Partial:          true,
	}

	Merge(&payload, &Detail{
		Name:      "L. Berg", // must not overwrite the mail's value
		Email:     "louise@example.dk",
		Phone:     "98 76 54 32",
		Guests:    120,
		EventDate: "14-08-2027",
		Budget:    "45.000 kr",
	})

	if payload.Name != "Louise Berg" {
		t.Errorf("name overwritten: %q", payload.Name)
	}
	if payload.Email != "louise@example.dk" {
		t.Errorf("email = %q", payload.Email)
	}
	if payload.Phone != "+4598765432" {
		t.Errorf("phone = %q, want normalized", payload.Phone)
	}
	if payload.EventDate != "2027-08-14T00:00:00Z" {
		t.Errorf("event_date = %q", payload.EventDate)
	}
	if payload.Pax != 120 {
		t.Errorf("pax = %d", payload.Pax)
	}
	if payload.NeedsPortalFetch || payload.Partial {
		t.Error("portal-fetch flags not cleared")
	}
}

// TestMerge_NilDetail is a no-op.
func TestMerge_NilDetail(t *testing.T) {
	payload := models.ParsedLeadPayload{NeedsPortalFetch: true}
	Merge(&payload, nil)
	if !payload.NeedsPortalFetch {
		t.Error("nil detail must not clear flags")
	}
}
