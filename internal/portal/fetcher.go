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

// Package portal fetches full lead details from broker portals. Some
// brokers mail only a teaser plus a reference; the parser flags those
// payloads and the gateway resolves them here before persisting.
package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Fetcher retrieves full lead details from broker portal APIs. One OAuth2
// client-credentials HTTP client per broker, built in main from config.
type Fetcher struct {
	clients  map[string]*http.Client
	baseURLs map[string]string
}

// NewFetcher creates a portal fetcher. Both maps are keyed by source name.
func NewFetcher(clients map[string]*http.Client, baseURLs map[string]string) *Fetcher {
	return &Fetcher{
		clients:  clients,
		baseURLs: baseURLs,
	}
}

// Supports reports whether a portal is configured for the source.
func (f *Fetcher) Supports(source string) bool {
	_, ok := f.clients[source]
	return ok
}

// FetchDetail retrieves the full enquiry for a portal reference. A
// reference the portal no longer knows returns (nil, nil); the caller
// persists the partial payload as-is.
func (f *Fetcher) FetchDetail(ctx context.Context, source, ref string) (*Detail, error) {
	client, ok := f.clients[source]
	if !ok {
		return nil, fmt.Errorf("no portal configured for source %q", source)
	}

	url := fmt.Sprintf("%s/enquiries/%s", f.baseURLs[source], ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch enquiry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("portal enquiry not found (may have expired)",
			"source", source,
			"ref", ref,
		)
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal returned HTTP %d for enquiry %s", resp.StatusCode, ref)
	}

	detail, err := parseDetail(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse enquiry: %w", err)
	}

	return detail, nil
}
