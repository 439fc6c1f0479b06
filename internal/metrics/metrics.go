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

// Package metrics is an in-process recorder for counters and histograms,
// rendered in the Prometheus text exposition format. State is process-local
// and resets on restart. The Registry is an injectable component, not a
// package-level singleton, so a shared backing can replace it later without
// touching call sites.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Standard metric names emitted by the pipeline.
const (
	LeadCreatedTotal          = "lead_created_total"
	LeadStatusTransitionTotal = "lead_status_transition_total"
	LeadRejectedTotal         = "lead_rejected_total"
	RateLimitedTotal          = "rate_limited_total"
	IngestDurationSeconds     = "lead_ingest_duration_seconds"
)

// defaultBuckets are the histogram upper bounds in seconds.
var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

type counterSeries struct {
	key    string
	name   string
	labels string // rendered {k="v",...} or ""
	value  float64
}

type histogramSeries struct {
	key     string
	name    string
	labels  string
	count   uint64
	sum     float64
	buckets []uint64 // parallel to defaultBuckets, non-cumulative
}

// Registry aggregates metric series keyed by name plus ordered labels.
// Safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	counters   []*counterSeries
	counterIdx map[string]*counterSeries
	histograms []*histogramSeries
	histIdx    map[string]*histogramSeries
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		counterIdx: make(map[string]*counterSeries),
		histIdx:    make(map[string]*histogramSeries),
	}
}

// Inc adds 1 to the counter series matching name and labels, creating the
// series on first use.
func (r *Registry) Inc(name string, labels map[string]string) {
	r.Add(name, 1, labels)
}

// Add adds delta to the counter series matching name and labels.
func (r *Registry) Add(name string, delta float64, labels map[string]string) {
	rendered := renderLabels(labels)
	key := name + rendered

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.counterIdx[key]
	if !ok {
		s = &counterSeries{key: key, name: name, labels: rendered}
		r.counterIdx[key] = s
		r.counters = append(r.counters, s)
	}
	s.value += delta
}

// Observe records a sample on the histogram series matching name and labels.
func (r *Registry) Observe(name string, value float64, labels map[string]string) {
	rendered := renderLabels(labels)
	key := name + rendered

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.histIdx[key]
	if !ok {
		s = &histogramSeries{
			key:     key,
			name:    name,
			labels:  rendered,
			buckets: make([]uint64, len(defaultBuckets)),
		}
		r.histIdx[key] = s
		r.histograms = append(r.histograms, s)
	}

	s.count++
	s.sum += value
	for i, upper := range defaultBuckets {
		if value <= upper {
			s.buckets[i]++
			break
		}
	}
}

// RenderPrometheus serializes every series, counters first, in insertion
// order. Calling it twice without intervening events yields identical output.
func (r *Registry) RenderPrometheus() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder

	for _, s := range r.counters {
		fmt.Fprintf(&b, "%s%s %s\n", s.name, s.labels, formatValue(s.value))
	}

	for _, s := range r.histograms {
		cumulative := uint64(0)
		for i, upper := range defaultBuckets {
			cumulative += s.buckets[i]
			fmt.Fprintf(&b, "%s_bucket%s %d\n", s.name, bucketLabels(s.labels, fmt.Sprintf("%g", upper)), cumulative)
		}
		fmt.Fprintf(&b, "%s_bucket%s %d\n", s.name, bucketLabels(s.labels, "+Inf"), s.count)
		fmt.Fprintf(&b, "%s_sum%s %s\n", s.name, s.labels, formatValue(s.sum))
		fmt.Fprintf(&b, "%s_count%s %d\n", s.name, s.labels, s.count)
	}

	return b.String()
}

// renderLabels produces a deterministic {k="v",...} fragment. Label keys are
// sorted so the same label set always maps to the same series regardless of
// map iteration order.
func renderLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// bucketLabels merges the `le` bound into an already-rendered label fragment.
func bucketLabels(rendered, le string) string {
	if rendered == "" {
		return fmt.Sprintf(`{le=%q}`, le)
	}
	return strings.TrimSuffix(rendered, "}") + fmt.Sprintf(`,le=%q}`, le)
}

// formatValue renders whole numbers without a decimal point, matching the
// typical exposition of counters.
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
