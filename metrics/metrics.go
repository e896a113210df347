// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics prometheus 注册表和 go-metrics 周期输出
package metrics

import (
	"fmt"
	"reflect"
	"time"

	"github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/common/version"
	"github.com/33cn/flipd/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	go_metrics "github.com/rcrowley/go-metrics"
)

var (
	mlog = log.New("module", "metrics")
)

// Namespace prometheus 指标前缀
var Namespace = "flipd"

// StartMetrics 根据配置文件相关参数启动 go-metrics 输出
func StartMetrics(cfg *types.Metrics) {
	if !cfg.EnableMetrics {
		mlog.Info("Metrics data is not enabled to emit")
		return
	}
	switch cfg.DataEmitMode {
	case "log":
		d := cfg.Duration
		if d <= 0 {
			d = time.Minute
		}
		mlog.Info("StartMetrics with log", "duration", d)
		go go_metrics.Log(go_metrics.DefaultRegistry, d, &printfLogger{})
	default:
		mlog.Error("startMetrics", "The dataEmitMode set is not supported now ", cfg.DataEmitMode)
		return
	}
}

// go-metrics 的 Logger 只需要 Printf
type printfLogger struct{}

func (l *printfLogger) Printf(format string, v ...interface{}) {
	mlog.Info(fmt.Sprintf(format, v...))
}

// Collector 暴露一组 prometheus collector
type Collector interface {
	Metrics() []prometheus.Collector
}

// PrometheusCollectorsFromFields 取出结构体里所有 prometheus.Collector 字段
func PrometheusCollectorsFromFields(i interface{}) (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(i))
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok {
			cs = append(cs, u)
		}
	}
	return cs
}

// NewRegistry 带进程和 go runtime 指标的注册表
func NewRegistry(cs ...Collector) (r *prometheus.Registry) {
	r = prometheus.NewRegistry()
	// register standard metrics
	r.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: Namespace,
		}),
		collectors.NewGoCollector(),
		prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "info",
			Help:      "flipd information.",
			ConstLabels: prometheus.Labels{
				"version": version.GetVersion(),
			},
		}),
	)
	for _, c := range cs {
		r.MustRegister(c.Metrics()...)
	}
	return r
}
