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

package normalize

import "testing"

// TestPhone verifies Danish local, country-code, and international shapes.
func TestPhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"danish local", "12345678", "+4512345678"},
		{"danish local with spaces", "12 34 56 78", "+4512345678"},
		{"danish local with separators", "12-34-56-78", "+4512345678"},
		{"country code no plus", "4512345678", "+4512345678"},
		{"international prefix", "004512345678", "+4512345678"},
		{"international prefix foreign", "004741234567", "+4741234567"},
		{"already canonical passes through", "+45 12 34 56 78", "+4512345678"},
		{"too short passes through", "12345", "12345"},
		{"foreign 11 digits passes through", "14155552671", "14155552671"},
		{"letters pass through trimmed", "  ring til os  ", "ring til os"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Phone(tt.raw); got != tt.want {
				t.Errorf("Phone(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestPhone_EightDigitsAlwaysPrefixed is the property every Danish local
// number must satisfy regardless of formatting noise.
func TestPhone_EightDigitsAlwaysPrefixed(t *testing.T) {
	inputs := []string{"87654321", "11111111", "20 40 60 80", "(98) 76 54 32"}
	for _, in := range inputs {
		got := Phone(in)
		if len(got) != 11 || got[:3] != "+45" {
			t.Errorf("Phone(%q) = %q, want +45 prefix and 11 chars", in, got)
		}
	}
}

// TestTryParseDate covers the accepted layouts and the no-match signal.
func TestTryParseDate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantOK  bool
	}{
		{"day first dashes", "24-12-2026", "2026-12-24T00:00:00Z", true},
		{"day first with time", "24-12-2026 18:30", "2026-12-24T18:30:00Z", true},
		{"day first slashes", "01/02/2026", "2026-02-01T00:00:00Z", true},
		{"day first dots", "15.06.2026", "2026-06-15T00:00:00Z", true},
		{"iso date", "2026-06-15", "2026-06-15T00:00:00Z", true},
		{"iso with time", "2026-06-15 09:00", "2026-06-15T09:00:00Z", true},
		{"rfc3339 with offset", "2026-06-15T09:00:00+02:00", "2026-06-15T07:00:00Z", true},
		{"garbage", "next tuesday", "", false},
		{"empty", "", "", false},
		{"partial", "24-12", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TryParseDate(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("TryParseDate(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("TryParseDate(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
