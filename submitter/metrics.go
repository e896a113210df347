// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package submitter

import (
	"time"

	"github.com/33cn/flipd/metrics"
	"github.com/prometheus/client_golang/prometheus"
	go_metrics "github.com/rcrowley/go-metrics"
)

// Metrics submitter prometheus 指标
type Metrics struct {
	Attempts *prometheus.CounterVec
	Results  *prometheus.CounterVec
	Latency  *prometheus.HistogramVec

	timer go_metrics.Timer
}

// NewMetrics 创建指标, 注册由调用方完成
func NewMetrics() *Metrics {
	const subsystem = "submitter"
	return &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Transaction send attempts.",
		}, []string{"kind"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "results_total",
			Help:      "Submission results by kind and outcome.",
		}, []string{"kind", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "latency_seconds",
			Help:      "Time from first send to confirmation.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"kind"}),
		timer: go_metrics.GetOrRegisterTimer("flipd/submitter/latency", go_metrics.DefaultRegistry),
	}
}

// Metrics implements metrics.Collector
func (m *Metrics) Metrics() []prometheus.Collector {
	return metrics.PrometheusCollectorsFromFields(m)
}

func (m *Metrics) observe(kind, result string, latency time.Duration) {
	m.Results.WithLabelValues(kind, result).Inc()
	if result == "confirmed" {
		m.Latency.WithLabelValues(kind).Observe(latency.Seconds())
		m.timer.Update(latency)
	}
}
