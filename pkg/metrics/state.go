// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import "github.com/prometheus/client_golang/prometheus"

// State is a snapshot of the routing cache's contents. Because readiness is
// a monotonic latch that never drops back to false, the per-kind counts are
// the signal an operator watches to notice the route set draining.
type State struct {
	Ready     bool
	Routes    int
	Upstreams int
	Secrets   int
}

// StateFunc supplies the current cache state at scrape time.
type StateFunc func() State

var (
	readyDesc = prometheus.NewDesc(
		"ossfe_cache_ready", "Whether the routing cache has completed its first sync (1) or not (0).",
		nil, nil)
	routesDesc = prometheus.NewDesc(
		"ossfe_cache_routes", "Number of routes currently held in the routing cache.",
		nil, nil)
	upstreamsDesc = prometheus.NewDesc(
		"ossfe_cache_upstreams", "Number of upstreams currently held in the routing cache.",
		nil, nil)
	secretsDesc = prometheus.NewDesc(
		"ossfe_cache_secrets", "Number of secrets currently held in the routing cache.",
		nil, nil)
)

type stateCollector struct {
	state StateFunc
}

// NewStateCollector wraps a StateFunc as a prometheus.Collector, typically
// registered alongside a Registry via Handler.
func NewStateCollector(state StateFunc) prometheus.Collector {
	return &stateCollector{state: state}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- readyDesc
	ch <- routesDesc
	ch <- upstreamsDesc
	ch <- secretsDesc
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.state()
	ready := 0.0
	if s.Ready {
		ready = 1
	}
	ch <- prometheus.MustNewConstMetric(readyDesc, prometheus.GaugeValue, ready)
	ch <- prometheus.MustNewConstMetric(routesDesc, prometheus.GaugeValue, float64(s.Routes))
	ch <- prometheus.MustNewConstMetric(upstreamsDesc, prometheus.GaugeValue, float64(s.Upstreams))
	ch <- prometheus.MustNewConstMetric(secretsDesc, prometheus.GaugeValue, float64(s.Secrets))
}
