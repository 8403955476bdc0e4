// Package metrics holds the gateway's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes.
const (
	OutcomeContinue    = "continue"
	OutcomeEnd         = "end"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeBlocked     = "blocked"
	OutcomeInvalid     = "invalid_request"
	OutcomeRateLimited = "rate_limited"
	OutcomeUnavailable = "unavailable"
)

type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	blocks      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ussd_requests_total",
				Help: "USSD requests by outcome",
			},
			[]string{"outcome"},
		),
		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ussd_api_calls_total",
				Help: "Outbound API calls by name and result",
			},
			[]string{"api", "result"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ussd_api_call_duration_seconds",
				Help:    "Outbound API call duration including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api"},
		),
		blocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ussd_blocks_total",
				Help: "Phone blocks created by reason",
			},
			[]string{"reason"},
		),
	}
	m.registry.MustRegister(
		m.requests, m.apiCalls, m.apiDuration, m.blocks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// The methods below accept a nil receiver so callers may run without metrics.

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAPICall(api string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.apiCalls.WithLabelValues(api, result).Inc()
	m.apiDuration.WithLabelValues(api).Observe(d.Seconds())
}

func (m *Metrics) ObserveBlock(reason string) {
	if m == nil {
		return
	}
	m.blocks.WithLabelValues(reason).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
