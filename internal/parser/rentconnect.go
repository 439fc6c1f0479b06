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

// RentConnect tenders cleaning tasks by mail with a contact block and a task
// description. Labels differ from Leadmail's:
//
//	Kontaktperson: Jens Jensen
//	Tlf: +45 23 45 67 89
//	Mail: jens@firma.dk
//	Adresse: Vestergade 4, 1. th
//	Postnummer: 1456
//	Opgave: Erhvervsrengøring
var (
	rcName    = regexp.MustCompile(`(?im)^\s*kontaktperson\s*[:=]\s*(.+)$`)
	rcPhone   = regexp.MustCompile(`(?im)^\s*(?:tlf\.?|telefonnr\.?|telefon)\s*[:=]\s*(.+)$`)
	rcEmail   = regexp.MustCompile(`(?im)^\s*(?:mail|e-?mail|e-?post)\s*[:=]\s*(.+)$`)
	rcAddress = regexp.MustCompile(`(?im)^\s*adresse\s*[:=]\s*(.+)$`)
	rcPostal  = regexp.MustCompile(`(?im)^\s*(?:postnummer|postnr\.?)\s*[:=]\s*(\d{4})\b`)
	rcTask    = regexp.MustCompile(`(?im)^\s*(?:opgave|opgavetype)\s*[:=]\s*(.+)$`)
)

const rentconnectExpectedFields = 6

// taskKeywords are the categories this mailbox handles. A tender outside
// them matched a RentConnect mail that was routed to the wrong partner.
var taskKeywords = []string{"rengøring", "rengoring", "vinduespolering", "vinduespudsning"}

// RentConnectParser handles cleaning tenders from the RentConnect broker.
type RentConnectParser struct{}

func (p *RentConnectParser) Name() string { return models.SourceRentConnect }

// TryParse extracts a tender payload from a RentConnect notification.
func (p *RentConnectParser) TryParse(msg models.InboundEmail) *models.ParseResult {
	if !p.identifies(msg) {
		return nil
	}

	body := msg.RawText
	name := extractField(rcName, body)
	phone := extractField(rcPhone, body)
	email := extractField(rcEmail, body)
	address := extractField(rcAddress, body)
	postal := extractField(rcPostal, body)
	task := extractField(rcTask, body)

	conf := confidence(
		[]string{name, phone, email, address, postal, task},
		rentconnectExpectedFields,
	)

	payload := models.ParsedLeadPayload{
		Source:                   models.SourceRentConnect,
		Name:                     name,
		Email:                    email,
		Phone:                    normalize.Phone(phone),
		Address:                  address,
		PostalCode:               postal,
		ServiceType:              task,
		ClassificationConfidence: conf,
	}

	if task != "" && !matchesTaskKeywords(task) {
		payload.Misroute = true
	}

	return &models.ParseResult{Payload: payload, Confidence: conf}
}

func (p *RentConnectParser) identifies(msg models.InboundEmail) bool {
	if fromDomain(msg.From, "rentconnect.dk") {
		return true
	}
	return strings.Contains(strings.ToLower(msg.Subject), "rentconnect")
}

func matchesTaskKeywords(task string) bool {
	task = strings.ToLower(task)
	for _, kw := range taskKeywords {
		if strings.Contains(task, kw) {
			return true
		}
	}
	return false
}
