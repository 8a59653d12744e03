package viewhost

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchStats holds cumulative dispatch counters for a handler list.
type DispatchStats struct {
	requests    atomic.Uint64
	handled     atomic.Uint64
	failures    atomic.Uint64
	fallbacks   atomic.Uint64
	notFound    atomic.Uint64
	unavailable atomic.Uint64
}

// DispatchSnapshot is a point-in-time copy of DispatchStats.
type DispatchSnapshot struct {
	// Requests counts every request that reached the list.
	Requests uint64 `json:"requests"`
	// Handled counts requests claimed by a fail-safe (view) handler.
	Handled uint64 `json:"handled"`
	// Failures counts contained fail-safe handler failures.
	Failures uint64 `json:"failures"`
	// Fallbacks counts requests passed to the non-fail-safe handlers.
	Fallbacks uint64 `json:"fallbacks"`
	// NotFound counts requests nobody wrote a response for.
	NotFound uint64 `json:"notFound"`
	// Unavailable counts requests rejected because the list was not running.
	Unavailable uint64 `json:"unavailable"`
}

func (s *DispatchStats) Snapshot() DispatchSnapshot {
	return DispatchSnapshot{
		Requests:    s.requests.Load(),
		Handled:     s.handled.Load(),
		Failures:    s.failures.Load(),
		Fallbacks:   s.fallbacks.Load(),
		NotFound:    s.notFound.Load(),
		Unavailable: s.unavailable.Load(),
	}
}

// StatsSource is implemented by ViewHandlerList.
type StatsSource interface {
	Stats() DispatchSnapshot
	InstanceCount() int
}

// PrometheusCollector exposes a StatsSource as Prometheus metrics:
//
//	viewhost_dispatch_total{outcome="handled|failure|fallback|not_found|unavailable"}
//	viewhost_dispatch_requests_total
//	viewhost_view_instances
//
// Values are read on scrape.
type PrometheusCollector struct {
	source        StatsSource
	requestsDesc  *prometheus.Desc
	outcomeDesc   *prometheus.Desc
	instancesDesc *prometheus.Desc
}

// NewPrometheusCollector creates a collector; namespace defaults to "viewhost".
func NewPrometheusCollector(source StatsSource, namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "viewhost"
	}
	return &PrometheusCollector{
		source: source,
		requestsDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_dispatch_requests_total", namespace),
			"Total requests dispatched through the handler list",
			nil, nil,
		),
		outcomeDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_dispatch_total", namespace),
			"Dispatch outcomes (cumulative)",
			[]string{"outcome"}, nil,
		),
		instancesDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_view_instances", namespace),
			"Registered view instances",
			nil, nil,
		),
	}
}

func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requestsDesc
	ch <- c.outcomeDesc
	ch <- c.instancesDesc
}

func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.requestsDesc, prometheus.CounterValue, float64(s.Requests))
	for outcome, v := range map[string]uint64{
		"handled":     s.Handled,
		"failure":     s.Failures,
		"fallback":    s.Fallbacks,
		"not_found":   s.NotFound,
		"unavailable": s.Unavailable,
	} {
		ch <- prometheus.MustNewConstMetric(c.outcomeDesc, prometheus.CounterValue, float64(v), outcome)
	}
	ch <- prometheus.MustNewConstMetric(c.instancesDesc, prometheus.GaugeValue, float64(c.source.InstanceCount()))
}
