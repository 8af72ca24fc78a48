// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the per-route and per-upstream request metrics
// and exposes them to scrapes as a custom prometheus.Collector.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Kind distinguishes the two resource types metrics are recorded against.
type Kind string

const (
	KindRoute    Kind = "route"
	KindUpstream Kind = "upstream"
)

type recordKey struct {
	kind      Kind
	namespace string
	name      string
}

// window names a rolling aggregation window.
type window struct {
	label string
	dur   time.Duration
}

var windows = []window{
	{"1m", time.Minute},
	{"5m", 5 * time.Minute},
	{"15m", 15 * time.Minute},
}

var quantiles = []struct {
	label string
	q     float64
}{
	{"p25", 0.25}, {"p50", 0.50}, {"p75", 0.75},
	{"p95", 0.95}, {"p98", 0.98}, {"p99", 0.99},
}

var (
	requestsTotalDesc = prometheus.NewDesc(
		"ossfe_requests_total", "Total requests served for this resource.",
		[]string{"type", "namespace", "name"}, nil)
	errorsTotalDesc = prometheus.NewDesc(
		"ossfe_errors_total", "Total error responses for this resource.",
		[]string{"type", "namespace", "name"}, nil)
	requestsPerMinuteDesc = prometheus.NewDesc(
		"ossfe_requests_per_minute", "Windowed request rate.",
		[]string{"type", "namespace", "name", "window"}, nil)
	errorsPerMinuteDesc = prometheus.NewDesc(
		"ossfe_errors_per_minute", "Windowed error rate.",
		[]string{"type", "namespace", "name", "window"}, nil)
	errorPercentageDesc = prometheus.NewDesc(
		"ossfe_error_percentage", "Windowed error percentage.",
		[]string{"type", "namespace", "name", "window"}, nil)
	latencyQuantileDesc = prometheus.NewDesc(
		"ossfe_latency_milliseconds", "Request latency distribution.",
		[]string{"type", "namespace", "name", "quantile"}, nil)
	latencyMinDesc = prometheus.NewDesc(
		"ossfe_latency_min_milliseconds", "Lifetime minimum request latency.",
		[]string{"type", "namespace", "name"}, nil)
	latencyMeanDesc = prometheus.NewDesc(
		"ossfe_latency_mean_milliseconds", "Lifetime mean request latency.",
		[]string{"type", "namespace", "name"}, nil)
	latencyMaxDesc = prometheus.NewDesc(
		"ossfe_latency_max_milliseconds", "Lifetime maximum request latency.",
		[]string{"type", "namespace", "name"}, nil)
)

// Registry accumulates per-(kind, namespace, name) request metrics and
// exposes them to a Prometheus scrape.
type Registry struct {
	mu      sync.Mutex
	records map[recordKey]*record
	now     func() time.Time
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[recordKey]*record),
		now:     time.Now,
	}
}

// Observe records one completed request against both its route and its
// upstream identity.
func (r *Registry) Observe(route, upstream NamespacedName, duration time.Duration, isError bool) {
	now := r.now()
	r.recordOne(KindRoute, route, now, duration, isError)
	r.recordOne(KindUpstream, upstream, now, duration, isError)
}

// NamespacedName identifies the resource a metrics record belongs to. It
// intentionally mirrors pkg/cache.NamespacedName's shape without importing
// it, keeping metrics free of a dependency on the routing cache.
type NamespacedName struct {
	Namespace string
	Name      string
}

func (r *Registry) recordOne(kind Kind, id NamespacedName, now time.Time, duration time.Duration, isError bool) {
	key := recordKey{kind: kind, namespace: id.Namespace, name: id.Name}

	r.mu.Lock()
	rec, ok := r.records[key]
	if !ok {
		rec = newRecord()
		r.records[key] = rec
	}
	r.mu.Unlock()

	rec.observe(now, float64(duration.Microseconds())/1000, isError)
}

// Handler returns the /metrics HTTP handler, backed by a private
// prometheus.Registry so this process's metrics never collide with the
// default global registry other libraries might touch. Any extra collectors
// (e.g. a NewStateCollector) are registered into the same scrape.
func (r *Registry) Handler(extra ...prometheus.Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(r)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Describe satisfies prometheus.Collector. The descriptors are fixed even
// though the set of (namespace, name) label values is dynamic, which is the
// standard pattern for collectors wrapping a custom store.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsTotalDesc
	ch <- errorsTotalDesc
	ch <- requestsPerMinuteDesc
	ch <- errorsPerMinuteDesc
	ch <- errorPercentageDesc
	ch <- latencyQuantileDesc
	ch <- latencyMinDesc
	ch <- latencyMeanDesc
	ch <- latencyMaxDesc
}

// Collect satisfies prometheus.Collector, rendering a point-in-time snapshot
// of every tracked resource.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	now := r.now()

	r.mu.Lock()
	snapshot := make(map[recordKey]*record, len(r.records))
	for k, v := range r.records {
		snapshot[k] = v
	}
	r.mu.Unlock()

	for key, rec := range snapshot {
		labels := []string{string(key.kind), key.namespace, key.name}

		reqTotal, errTotal := rec.totals()
		ch <- prometheus.MustNewConstMetric(requestsTotalDesc, prometheus.CounterValue, float64(reqTotal), labels...)
		ch <- prometheus.MustNewConstMetric(errorsTotalDesc, prometheus.CounterValue, float64(errTotal), labels...)

		for _, w := range windows {
			reqs, errs := rec.windowed(now, w.dur)
			perMinute := float64(reqs) / w.dur.Minutes()
			errPerMinute := float64(errs) / w.dur.Minutes()
			errPct := 0.0
			if reqs > 0 {
				errPct = float64(errs) / float64(reqs) * 100
			}
			wLabels := append(append([]string{}, labels...), w.label)
			ch <- prometheus.MustNewConstMetric(requestsPerMinuteDesc, prometheus.GaugeValue, perMinute, wLabels...)
			ch <- prometheus.MustNewConstMetric(errorsPerMinuteDesc, prometheus.GaugeValue, errPerMinute, wLabels...)
			ch <- prometheus.MustNewConstMetric(errorPercentageDesc, prometheus.GaugeValue, errPct, wLabels...)
		}

		for _, qt := range quantiles {
			qLabels := append(append([]string{}, labels...), qt.label)
			ch <- prometheus.MustNewConstMetric(latencyQuantileDesc, prometheus.GaugeValue, rec.percentile(qt.q), qLabels...)
		}

		min, mean, max := rec.lifetime()
		ch <- prometheus.MustNewConstMetric(latencyMinDesc, prometheus.GaugeValue, min, labels...)
		ch <- prometheus.MustNewConstMetric(latencyMeanDesc, prometheus.GaugeValue, mean, labels...)
		ch <- prometheus.MustNewConstMetric(latencyMaxDesc, prometheus.GaugeValue, max, labels...)
	}
}
