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

// Package lifecycle validates lead status transitions against an explicit,
// directional transition table. The store consults it before any status
// write; a failed validation never touches storage.
package lifecycle

import (
	"fmt"

	"github.com/flowcrm/ingestion/internal/models"
)

// transitions is the allowed-next table. A state absent from the table, or
// mapped to an empty row, is terminal. Additional states are an external
// extension point; extending the lifecycle means extending this table.
var transitions = map[models.LeadStatus][]models.LeadStatus{
	models.StatusNew:       {models.StatusContacted},
	models.StatusContacted: {},
}

// InvalidTransitionError reports a rejected status transition.
type InvalidTransitionError struct {
	From models.LeadStatus
	To   models.LeadStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// AllowedNextStatuses returns the table row for the given state. The slice
// is a copy; callers may not mutate the table through it. Terminal and
// unknown states both return an empty slice.
func AllowedNextStatuses(from models.LeadStatus) []models.LeadStatus {
	row, ok := transitions[from]
	if !ok || len(row) == 0 {
		return []models.LeadStatus{}
	}
	out := make([]models.LeadStatus, len(row))
	copy(out, row)
	return out
}

// ValidateTransition returns an *InvalidTransitionError unless `to` is in
// the allowed-next row for `from`. Self-transitions are always rejected,
// even for states the table does not know.
func ValidateTransition(from, to models.LeadStatus) error {
	if from == to {
		return &InvalidTransitionError{From: from, To: to}
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}
