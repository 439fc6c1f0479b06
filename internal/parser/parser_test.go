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
	"testing"

	"github.com/flowcrm/ingestion/internal/models"
)

const leadmailFixture = `Hej,

Der er kommet et nyt lead til jer.

Navn: Mette Hansen
Telefon: 12 34 56 78
E-mail: mette@example.dk
Adresse: Nørregade 12
Postnr: 8000
By: Aarhus C
Servicetype: Fast rengøring
Frekvens: Hver 14. dag

Med venlig hilsen
Leadmail
`

// TestLeadmailParser_FullMessage verifies extraction of a complete message.
func TestLeadmailParser_FullMessage(t *testing.T) {
	p := &LeadmailParser{}
	res := p.TryParse(models.InboundEmail{
		From:    "Leadmail <noreply@leadmail.dk>",
		Subject: "Nyt lead: Fast rengøring i Aarhus C",
		RawText: leadmailFixture,
	})
	if res == nil {
		t.Fatal("TryParse returned nil for a leadmail message")
	}

	if res.Payload.Source != models.SourceLeadmail {
		t.Errorf("source = %q, want %q", res.Payload.Source, models.SourceLeadmail)
	}
	if res.Confidence <= 0 {
		t.Errorf("confidence = %v, want > 0", res.Confidence)
	}
	if res.Confidence != 1 {
		t.Errorf("confidence = %v, want 1 for all 8 fields present", res.Confidence)
	}
	if res.Payload.PostalCode != "8000" {
		t.Errorf("postal_code = %q, want %q", res.Payload.PostalCode, "8000")
	}
	if res.Payload.Phone != "+4512345678" {
		t.Errorf("phone = %q, want normalized +4512345678", res.Payload.Phone)
	}
	if res.Payload.Name != "Mette Hansen" {
		t.Errorf("name = %q, want %q", res.Payload.Name, "Mette Hansen")
	}
	if res.Payload.Frequency != "Hver 14. dag" {
		t.Errorf("frequency = %q, want %q", res.Payload.Frequency, "Hver 14. dag")
	}
}

// TestLeadmailParser_LabelVariants accepts Tlf/Mail/Postnummer spellings.
func TestLeadmailParser_LabelVariants(t *testing.T) {
	p := &LeadmailParser{}
	res := p.TryParse(models.InboundEmail{
		From: "system@leadmail.dk",
		RawText: `Navn: Ole Olsen
Tlf: 87654321
E-post: ole@example.dk
Postnummer: 2100
`,
	})
	if res == nil {
		t.Fatal("TryParse returned nil")
	}
	if res.Payload.Phone != "+4587654321" {
		t.Errorf("phone = %q, want +4587654321", res.Payload.Phone)
	}
	if res.Payload.Email != "ole@example.dk" {
		t.Errorf("email = %q", res.Payload.Email)
	}
	if res.Payload.PostalCode != "2100" {
		t.Errorf("postal_code = %q, want 2100", res.Payload.PostalCode)
	}
}

// TestLeadmailParser_MatchedButEmpty returns confidence 0, not nil. The
// gateway rejects confidence 0 without persisting.
func TestLeadmailParser_MatchedButEmpty(t *testing.T) {
	p := &LeadmailParser{}
	res := p.TryParse(models.InboundEmail{
		From:    "noreply@leadmail.dk",
		Subject: "Nyt lead",
		RawText: "Der opstod en fejl i systemet. Kontakt support.",
	})
	if res == nil {
		t.Fatal("source-identified message must return a result, got nil")
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", res.Confidence)
	}
}

// TestLeadmailParser_ForeignMessage returns nil without extracting.
func TestLeadmailParser_ForeignMessage(t *testing.T) {
	p := &LeadmailParser{}
	res := p.TryParse(models.InboundEmail{
		From:    "newsletter@shop.example.com",
		Subject: "Tilbud: 20% på alt",
		RawText: "Navn: burde ikke parses",
	})
	if res != nil {
		t.Errorf("TryParse = %+v, want nil for unrelated sender", res)
	}
}

// TestRentConnectParser covers extraction and misroute flagging.
func TestRentConnectParser(t *testing.T) {
	p := &RentConnectParser{}

	res := p.TryParse(models.InboundEmail{
		From:    "udbud@rentconnect.dk",
		Subject: "Nyt udbud i dit område",
		RawText: `Kontaktperson: Jens Jensen
Tlf: 004523456789
Mail: jens@firma.dk
Adresse: Vestergade 4, 1. th
Postnummer: 1456
Opgave: Erhvervsrengøring, 400 m2
`,
	})
	if res == nil {
		t.Fatal("TryParse returned nil")
	}
	if res.Payload.Source != models.SourceRentConnect {
		t.Errorf("source = %q", res.Payload.Source)
	}
	if res.Payload.Phone != "+4523456789" {
		t.Errorf("phone = %q, want +4523456789", res.Payload.Phone)
	}
	if res.Payload.Misroute {
		t.Error("cleaning task flagged as misroute")
	}
	if res.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", res.Confidence)
	}
}

// TestRentConnectParser_Misroute flags tenders outside the handled categories.
func TestRentConnectParser_Misroute(t *testing.T) {
	p := &RentConnectParser{}
	res := p.TryParse(models.InboundEmail{
		From: "udbud@rentconnect.dk",
		RawText: `Kontaktperson: Pia Madsen
Opgave: Tagrenovering
`,
	})
	if res == nil {
		t.Fatal("TryParse returned nil")
	}
	if !res.Payload.Misroute {
		t.Error("roofing tender not flagged as misroute")
	}
}

// TestFestlokalerParser covers event fields, pax conversion, date
// normalization, and the portal-fetch teaser path.
func TestFestlokalerParser(t *testing.T) {
	p := &FestlokalerParser{}

	res := p.TryParse(models.InboundEmail{
		From:    "forespoergsel@festlokaler.dk",
		Subject: "Ny forespørgsel via Festlokaler",
		RawText: `Navn: Louise Berg
Telefon: 98 76 54 32
E-mail: louise@example.dk
Arrangement: Bryllup
Antal gæster: 120
Dato: 14-08-2027
Budget: 45.000 kr
`,
	})
	if res == nil {
		t.Fatal("TryParse returned nil")
	}
	if res.Payload.EventType != "Bryllup" {
		t.Errorf("event_type = %q", res.Payload.EventType)
	}
	if res.Payload.Pax != 120 {
		t.Errorf("pax = %d, want 120", res.Payload.Pax)
	}
	if res.Payload.EventDate != "2027-08-14T00:00:00Z" {
		t.Errorf("event_date = %q, want 2027-08-14T00:00:00Z", res.Payload.EventDate)
	}
	if res.Payload.NeedsPortalFetch {
		t.Error("full enquiry flagged for portal fetch")
	}
}

// TestFestlokalerParser_Teaser marks partial payloads for a portal fetch.
func TestFestlokalerParser_Teaser(t *testing.T) {
	p := &FestlokalerParser{}
	res := p.TryParse(models.InboundEmail{
		From: "forespoergsel@festlokaler.dk",
		RawText: `Navn: Louise Berg
Arrangement: Bryllup

Se hele forespørgslen: REF-2041
`,
	})
	if res == nil {
		t.Fatal("TryParse returned nil")
	}
	if !res.Payload.NeedsPortalFetch {
		t.Error("teaser not flagged for portal fetch")
	}
	if res.Payload.PortalRef != "REF-2041" {
		t.Errorf("portal_ref = %q, want REF-2041", res.Payload.PortalRef)
	}
	if !res.Payload.Partial {
		t.Error("teaser not flagged partial")
	}
}

// TestRegistry_Classify verifies dispatch and the not-a-lead path.
func TestRegistry_Classify(t *testing.T) {
	r := NewRegistry()

	res := r.Classify(models.InboundEmail{
		From:    "noreply@leadmail.dk",
		RawText: "Navn: Test Person\nTelefon: 11223344\n",
	})
	if res == nil {
		t.Fatal("Classify returned nil for a leadmail message")
	}
	if res.Payload.Source != models.SourceLeadmail {
		t.Errorf("source = %q, want leadmail", res.Payload.Source)
	}

	if res := r.Classify(models.InboundEmail{
		From:    "someone@gmail.com",
		Subject: "Frokost på fredag?",
		RawText: "Hej! Skal vi spise frokost sammen på fredag?",
	}); res != nil {
		t.Errorf("Classify = %+v, want nil for non-lead mail", res)
	}
}

// TestRegistry_Classify_PrefersHigherConfidence: when two parsers both claim
// a message, the lower-confidence result is discarded.
func TestRegistry_Classify_PrefersHigherConfidence(t *testing.T) {
	r := &Registry{}
	r.Register(stubParser{source: "low", conf: 0.2})
	r.Register(stubParser{source: "high", conf: 0.8})

	res := r.Classify(models.InboundEmail{})
	if res == nil {
		t.Fatal("Classify returned nil")
	}
	if res.Payload.Source != "high" {
		t.Errorf("source = %q, want the higher-confidence result", res.Payload.Source)
	}
}

type stubParser struct {
	source string
	conf   float64
}

func (s stubParser) Name() string { return s.source }

func (s stubParser) TryParse(models.InboundEmail) *models.ParseResult {
	return &models.ParseResult{
		Payload:    models.ParsedLeadPayload{Source: s.source, ClassificationConfidence: s.conf},
		Confidence: s.conf,
	}
}
