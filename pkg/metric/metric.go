// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every validator metric, built on luxfi/metric the same way
// the rest of the stack does.
type Metrics struct {
	metricsInstance metrics.Metrics

	// Tick metrics
	LeaderTicksRun     metrics.Counter
	FollowerTicksRun   metrics.Counter
	NewStatesEmitted   metrics.Counter
	ApproveStatesSent  metrics.Counter
	RejectStatesSent   metrics.Counter
	HeartbeatsEmitted  metrics.Counter
	TickDuration       metrics.Histogram
	FollowerHealth     metrics.Gauge

	// Accounting/aggregator metrics
	EventsAggregated  metrics.CounterVec
	SpendOverflows    metrics.Counter
	DSLEvalDuration    metrics.Histogram
	CampaignsExhausted metrics.Counter

	// Propagation metrics
	PropagationAttempts metrics.CounterVec
	PropagationLatency  metrics.Histogram

	// API metrics
	RequestsProcessed metrics.CounterVec
}

// NewMetrics creates a new metrics instance registered under the "outpace"
// namespace.
func NewMetrics() (*Metrics, error) {
	factory := metrics.NewPrometheusFactory()
	metricsInstance := factory.New("outpace")

	m := &Metrics{metricsInstance: metricsInstance}

	m.LeaderTicksRun = metricsInstance.NewCounter("leader_ticks_total", "Total leader ticks executed")
	m.FollowerTicksRun = metricsInstance.NewCounter("follower_ticks_total", "Total follower ticks executed")
	m.NewStatesEmitted = metricsInstance.NewCounter("new_states_emitted_total", "Total NewState messages signed by a leader tick")
	m.ApproveStatesSent = metricsInstance.NewCounter("approve_states_sent_total", "Total ApproveState messages signed by a follower tick")
	m.RejectStatesSent = metricsInstance.NewCounter("reject_states_sent_total", "Total RejectState messages signed by a follower tick")
	m.HeartbeatsEmitted = metricsInstance.NewCounter("heartbeats_emitted_total", "Total Heartbeat messages emitted")

	m.TickDuration = metricsInstance.NewHistogram(
		"tick_duration_seconds",
		"Time to run a single leader or follower tick",
		prometheus.DefBuckets,
	)

	m.FollowerHealth = metricsInstance.NewGauge("follower_health_promille", "Most recent health score computed by a follower tick, in promille")

	m.EventsAggregated = metricsInstance.NewCounterVec(
		"events_aggregated_total",
		"Total events folded into Accounting, by event type",
		[]string{"event_type"},
	)
	m.SpendOverflows = metricsInstance.NewCounter("spend_overflows_total", "Total spend() calls rejected due to u64 overflow or deposit exhaustion")
	m.DSLEvalDuration = metricsInstance.NewHistogram(
		"pricing_eval_duration_seconds",
		"Time to evaluate a campaign's pricing rules against one event",
		prometheus.DefBuckets,
	)
	m.CampaignsExhausted = metricsInstance.NewCounter("campaigns_exhausted_total", "Total times a campaign's remaining budget reached zero")

	m.PropagationAttempts = metricsInstance.NewCounterVec(
		"propagation_attempts_total",
		"Total validator-message propagation attempts, by peer and outcome",
		[]string{"peer", "outcome"},
	)
	m.PropagationLatency = metricsInstance.NewHistogram(
		"propagation_latency_seconds",
		"Time to propagate validator messages to one peer",
		prometheus.DefBuckets,
	)

	m.RequestsProcessed = metricsInstance.NewCounterVec(
		"api_requests_processed_total",
		"Total number of API requests processed",
		[]string{"method", "status"},
	)

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export.
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer.
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}
