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

package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/flowcrm/ingestion/internal/models"
	"github.com/flowcrm/ingestion/internal/normalize"
)

// Festlokaler forwards event enquiries. Some mails carry the full enquiry;
// others only a teaser plus a portal reference the broker API resolves:
//
//	Navn: Louise Berg
//	Telefon: 98 76 54 32
//	E-mail: louise@example.dk
//	Arrangement: Bryllup
//	Antal gæster: 120
//	Dato: 14-08-2027
//	Budget: 45.000 kr
//
//	Se hele forespørgslen: REF-2041
var (
	flName   = regexp.MustCompile(`(?im)^\s*navn\s*[:=]\s*(.+)$`)
	flPhone  = regexp.MustCompile(`(?im)^\s*(?:telefon|tlf\.?)\s*[:=]\s*(.+)$`)
	flEmail  = regexp.MustCompile(`(?im)^\s*(?:e-?mail|e-?post|mail)\s*[:=]\s*(.+)$`)
	flEvent  = regexp.MustCompile(`(?im)^\s*(?:arrangement|arrangementstype|anledning)\s*[:=]\s*(.+)$`)
	flPax    = regexp.MustCompile(`(?im)^\s*antal\s+g(?:æ|ae)ster\s*[:=]\s*(\d+)`)
	flDate   = regexp.MustCompile(`(?im)^\s*dato\s*[:=]\s*(.+)$`)
	flBudget = regexp.MustCompile(`(?im)^\s*budget\s*[:=]\s*(.+)$`)
	flRef    = regexp.MustCompile(`(?i)se hele foresp(?:ø|oe?)rgslen\s*[:=]?\s*(REF-\d+)`)
)

const festlokalerExpectedFields = 7

// FestlokalerParser handles event enquiries from the Festlokaler broker.
type FestlokalerParser struct{}

func (p *FestlokalerParser) Name() string { return models.SourceFestlokaler }

// TryParse extracts an event-lead payload from a Festlokaler notification.
// Teaser mails yield a partial payload flagged for a portal fetch.
func (p *FestlokalerParser) TryParse(msg models.InboundEmail) *models.ParseResult {
	if !p.identifies(msg) {
		return nil
	}

	body := msg.RawText
	name := extractField(flName, body)
	phone := extractField(flPhone, body)
	email := extractField(flEmail, body)
	event := extractField(flEvent, body)
	paxRaw := extractField(flPax, body)
	dateRaw := extractField(flDate, body)
	budget := extractField(flBudget, body)

	conf := confidence(
		[]string{name, phone, email, event, paxRaw, dateRaw, budget},
		festlokalerExpectedFields,
	)

	payload := models.ParsedLeadPayload{
		Source:                   models.SourceFestlokaler,
		Name:                     name,
		Email:                    email,
		Phone:                    normalize.Phone(phone),
		EventType:                event,
		Budget:                   budget,
		ClassificationConfidence: conf,
	}

	if paxRaw != "" {
		if pax, err := strconv.Atoi(paxRaw); err == nil {
			payload.Pax = pax
		}
	}

	if dateRaw != "" {
		if iso, ok := normalize.TryParseDate(dateRaw); ok {
			payload.EventDate = iso
		}
	}

	if ref := extractField(flRef, body); ref != "" {
		payload.PortalRef = ref
		payload.NeedsPortalFetch = true
		payload.Partial = true
	}

	return &models.ParseResult{Payload: payload, Confidence: conf}
}

func (p *FestlokalerParser) identifies(msg models.InboundEmail) bool {
	if fromDomain(msg.From, "festlokaler.dk") {
		return true
	}
	subject := strings.ToLower(msg.Subject)
	return strings.Contains(subject, "ny forespørgsel") && strings.Contains(subject, "festlokaler")
}
