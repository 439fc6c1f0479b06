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

// Package normalize provides pure canonicalization helpers for phone numbers
// and free-text dates. Both functions are total: malformed input passes
// through (phone) or reports no match (date), never an error.
package normalize

import (
	"strings"
	"time"
)

// Phone canonicalizes a raw phone number.
//
//   - 8 digits (Danish local) → prefixed "+45"
//   - 10 digits starting "45" → leading "+"
//   - international "00" prefix → replaced by "+"
//   - anything else → trimmed input, unchanged
//
// Best-effort only; no validation beyond shape.
func Phone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case len(d) == 8:
		return "+45" + d
	case len(d) == 10 && strings.HasPrefix(d, "45"):
		return "+" + d
	case strings.HasPrefix(d, "00"):
		return "+" + d[2:]
	}

	return trimmed
}

// dateLayouts is the ordered list of accepted date shapes. Day-first layouts
// come before ISO so "02-03-2026" reads as 2 March, not 3 February.
var dateLayouts = []string{
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006",
	"02/01/2006 15:04",
	"02/01/2006",
	"02.01.2006 15:04",
	"02.01.2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// TryParseDate attempts each known layout in order and returns the first
// successful parse as an RFC 3339 UTC instant. The second return is false
// when no layout matches.
func TryParseDate(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC().Format(time.RFC3339), true
		}
	}

	return "", false
}
