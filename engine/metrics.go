// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/33cn/flipd/metrics"
	"github.com/prometheus/client_golang/prometheus"
	go_metrics "github.com/rcrowley/go-metrics"
)

// Metrics engine prometheus 指标
type Metrics struct {
	Ticks        prometheus.Counter
	TickErrors   prometheus.Counter
	CurrentRound prometheus.Gauge
	StuckRound   prometheus.Gauge
	StuckEvents  prometheus.Counter
	Transitions  *prometheus.CounterVec
	Events       *prometheus.CounterVec
	TickSeconds  prometheus.Histogram

	tickTimer  go_metrics.Timer
	eventMeter go_metrics.Meter
}

// NewMetrics engine metrics
func NewMetrics() *Metrics {
	const subsystem = "engine"
	return &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "ticks_total",
			Help:      "Loop iterations.",
		}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "tick_errors_total",
			Help:      "Loop iterations that ended with an error.",
		}),
		CurrentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "current_round",
			Help:      "Last observed round counter.",
		}),
		StuckRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "stuck_round",
			Help:      "Round id that is past the stuck threshold, 0 if none.",
		}),
		StuckEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "stuck_total",
			Help:      "Rounds that crossed the stuck threshold.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "Submitted transitions by kind and result.",
		}, []string{"kind", "result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Published lifecycle events.",
		}, []string{"type"}),
		TickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "tick_seconds",
			Help:      "Loop iteration latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		tickTimer:  go_metrics.GetOrRegisterTimer("flipd/engine/tick", go_metrics.DefaultRegistry),
		eventMeter: go_metrics.GetOrRegisterMeter("flipd/engine/events", go_metrics.DefaultRegistry),
	}
}

// Metrics implements metrics.Collector
func (m *Metrics) Metrics() []prometheus.Collector {
	return metrics.PrometheusCollectorsFromFields(m)
}
