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
	"strings"

	"github.com/flowcrm/ingestion/internal/models"
	"github.com/flowcrm/ingestion/internal/normalize"
)

// Leadmail forwards cleaning leads as labelled plain-text blocks:
//
//	Navn: Mette Hansen
//	Telefon: 12 34 56 78
//	E-mail: mette@example.dk
//	Adresse: Nørregade 12
//	Postnr: 8000
//	By: Aarhus C
//	Servicetype: Fast rengøring
//	Frekvens: Hver 14. dag
var (
	lmName     = regexp.MustCompile(`(?im)^\s*navn\s*[:=]\s*(.+)$`)
	lmPhone    = regexp.MustCompile(`(?im)^\s*(?:telefon|tlf\.?)\s*[:=]\s*(.+)$`)
	lmEmail    = regexp.MustCompile(`(?im)^\s*(?:e-?mail|e-?post|mail)\s*[:=]\s*(.+)$`)
	lmAddress  = regexp.MustCompile(`(?im)^\s*adresse\s*[:=]\s*(.+)$`)
	lmPostal   = regexp.MustCompile(`(?im)^\s*(?:postnr\.?|postnummer)\s*[:=]\s*(\d{4})\b`)
	lmCity     = regexp.MustCompile(`(?im)^\s*by\s*[:=]\s*(.+)$`)
	lmService  = regexp.MustCompile(`(?im)^\s*(?:servicetype|opgavetype|ydelse)\s*[:=]\s*(.+)$`)
	lmFreq     = regexp.MustCompile(`(?im)^\s*(?:frekvens|hyppighed)\s*[:=]\s*(.+)$`)
)

// leadmailExpectedFields is the empirical field count for a complete
// Leadmail message; confidence is measured against it.
const leadmailExpectedFields = 8

// LeadmailParser handles leads forwarded from the Leadmail broker.
type LeadmailParser struct{}

// Name returns the source identifier this parser produces.
func (p *LeadmailParser) Name() string { return models.SourceLeadmail }

// TryParse extracts a cleaning-lead payload from a Leadmail notification.
func (p *LeadmailParser) TryParse(msg models.InboundEmail) *models.ParseResult {
	if !p.identifies(msg) {
		return nil
	}

	body := msg.RawText
	name := extractField(lmName, body)
	phone := extractField(lmPhone, body)
	email := extractField(lmEmail, body)
	address := extractField(lmAddress, body)
	postal := extractField(lmPostal, body)
	city := extractField(lmCity, body)
	service := extractField(lmService, body)
	freq := extractField(lmFreq, body)

	conf := confidence(
		[]string{name, phone, email, address, postal, city, service, freq},
		leadmailExpectedFields,
	)

	return &models.ParseResult{
		Payload: models.ParsedLeadPayload{
			Source:                   models.SourceLeadmail,
			Name:                     name,
			Email:                    email,
			Phone:                    normalize.Phone(phone),
			Address:                  address,
			PostalCode:               postal,
			City:                     city,
			ServiceType:              service,
			Frequency:                freq,
			ClassificationConfidence: conf,
		},
		Confidence: conf,
	}
}

// identifies is the cheap source check: sender domain or the broker's
// standard subject prefix.
func (p *LeadmailParser) identifies(msg models.InboundEmail) bool {
	if fromDomain(msg.From, "leadmail.dk") {
		return true
	}
	subject := strings.ToLower(msg.Subject)
	return strings.Contains(subject, "nyt lead fra leadmail")
}
