// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	Ticks    prometheus.Counter
	Stuck    prometheus.Gauge
	ignored  prometheus.Counter
	Label    string
	Duration *prometheus.HistogramVec
}

func (m *fakeMetrics) Metrics() []prometheus.Collector {
	return PrometheusCollectorsFromFields(m)
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		Ticks:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: Namespace, Name: "fake_ticks_total", Help: "ticks"}),
		Stuck:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: Namespace, Name: "fake_stuck", Help: "stuck"}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{Namespace: Namespace, Name: "fake_ignored", Help: "ignored"}),
		Label:   "x",
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Name: "fake_seconds", Help: "d"},
			[]string{"kind"}),
	}
}

func TestPrometheusCollectorsFromFields(t *testing.T) {
	m := newFakeMetrics()
	cs := m.Metrics()
	// unexported 和非 collector 字段被跳过
	assert.Len(t, cs, 3)
}

func TestNewRegistry(t *testing.T) {
	m := newFakeMetrics()
	r := NewRegistry(m)
	m.Ticks.Inc()
	m.Duration.WithLabelValues("settle").Observe(1)
	families, err := r.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["flipd_info"])
	assert.True(t, names["flipd_fake_ticks_total"])
	assert.True(t, names["flipd_fake_seconds"])
	assert.False(t, names["flipd_fake_ignored"])
}
