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
	"encoding/json"
	"fmt"
	"io"

	"github.com/flowcrm/ingestion/internal/models"
	"github.com/flowcrm/ingestion/internal/normalize"
)

// Detail is the full enquiry as the portal API returns it.
type Detail struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Postal    string `json:"postal_code"`
	City      string `json:"city"`
	EventType string `json:"event_type"`
	Guests    int    `json:"guests"`
	EventDate string `json:"event_date"`
	Budget    string `json:"budget"`
	Notes     string `json:"notes"`
}

// parseDetail decodes a portal enquiry response.
func parseDetail(body io.Reader) (*Detail, error) {
	var d Detail
	if err := json.NewDecoder(body).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode enquiry: %w", err)
	}
	return &d, nil
}

// Merge fills empty payload fields from the fetched detail and clears the
// portal-fetch flags. Fields the mail already carried win; the mail is the
// primary record, the portal only completes it.
func Merge(payload *models.ParsedLeadPayload, d *Detail) {
	if d == nil {
		return
	}

	if payload.Name == "" {
		payload.Name = d.Name
	}
	if payload.Email == "" {
		payload.Email = d.Email
	}
	if payload.Phone == "" {
		payload.Phone = normalize.Phone(d.Phone)
	}
	if payload.Address == "" {
		payload.Address = d.Address
	}
	if payload.PostalCode == "" {
		payload.PostalCode = d.Postal
	}
	if payload.City == "" {
		payload.City = d.City
	}
	if payload.EventType == "" {
		payload.EventType = d.EventType
	}
	if payload.Pax == 0 {
		payload.Pax = d.Guests
	}
	if payload.EventDate == "" && d.EventDate != "" {
		if iso, ok := normalize.TryParseDate(d.EventDate); ok {
			payload.EventDate = iso
		}
	}
	if payload.Budget == "" {
		payload.Budget = d.Budget
	}
	if payload.Notes == "" {
		payload.Notes = d.Notes
	}

	payload.NeedsPortalFetch = false
	payload.Partial = false
}
