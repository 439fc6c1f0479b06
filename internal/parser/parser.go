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

// Package parser extracts structured lead payloads from forwarded broker
// emails. One parser per known broker format; each starts with a cheap
// source-identification check (sender domain or subject keyword) and bails
// out immediately on mismatch, so dispatch stays cheap as the registry grows.
//
// Parsers never return errors for malformed input. A message that matches a
// source but yields no fields still produces a result with confidence 0;
// the gateway treats that as "reject, do not persist".
package parser

import (
	"regexp"
	"strings"

	"github.com/flowcrm/ingestion/internal/models"
)

// Parser extracts a lead payload from one inbound email. TryParse returns
// nil when the message does not plausibly belong to this parser's source.
type Parser interface {
	Name() string
	TryParse(msg models.InboundEmail) *models.ParseResult
}

// Registry dispatches one message across all registered parsers in a fixed
// priority order. Parsers are expected to be mutually exclusive by source
// identification; should two ever both match, the lower-confidence result
// is discarded.
type Registry struct {
	parsers []Parser
}

// NewRegistry creates a registry with the default parser set in priority
// order: leadmail, rentconnect, festlokaler.
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			&LeadmailParser{},
			&RentConnectParser{},
			&FestlokalerParser{},
		},
	}
}

// Register appends a parser at the end of the priority order.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Classify runs every registered parser against the message and returns the
// best result, or nil when no parser claims the message ("not a lead").
func (r *Registry) Classify(msg models.InboundEmail) *models.ParseResult {
	var best *models.ParseResult
	for _, p := range r.parsers {
		res := p.TryParse(msg)
		if res == nil {
			continue
		}
		if best == nil || res.Confidence > best.Confidence {
			best = res
		}
	}
	return best
}

// extractField returns the first capture group of re applied to body,
// trimmed, or "" when the pattern does not match.
func extractField(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// confidence computes min(1, nonEmpty/expected) over the extracted values.
// Numeric fields count through their string form before conversion.
func confidence(values []string, expected int) float64 {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	c := float64(n) / float64(expected)
	if c > 1 {
		c = 1
	}
	return c
}

// fromDomain reports whether the From address ends in the given domain,
// tolerating display-name forms like `Leadmail <noreply@leadmail.dk>`.
func fromDomain(from, domain string) bool {
	from = strings.ToLower(strings.TrimSpace(from))
	from = strings.TrimSuffix(from, ">")
	return strings.HasSuffix(from, "@"+domain) || strings.HasSuffix(from, "."+domain)
}
