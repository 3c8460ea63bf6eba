// Package promexport 把指标注册表和阶段状态以 Prometheus 格式暴露。
// 采集在抓取时进行，不复制样本。
package promexport

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

const namespace = "variant_bench"

// quantiles 趋势指标导出的分位数
var quantiles = []float64{0.5, 0.9, 0.95, 0.99}

var seriesLabels = []string{"variant", "operation"}

// StatusSource 提供阶段状态，*scheduler.Scheduler 实现该接口
type StatusSource interface {
	States() []types.ScenarioStatus
}

// Collector 实现 prometheus.Collector。
// 指标名在运行期间才确定，因此是 unchecked collector，Describe 不发送描述。
type Collector struct {
	registry *metrics.Registry
	status   StatusSource

	scenarioState      *prometheus.Desc
	scenarioActiveVUs  *prometheus.Desc
	scenarioIterations *prometheus.Desc
}

// NewCollector 创建采集器，status 可以为 nil
func NewCollector(registry *metrics.Registry, status StatusSource) *Collector {
	return &Collector{
		registry: registry,
		status:   status,
		scenarioState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "scenario", "state"),
			"Scenario state, 1 for the current state label.",
			[]string{"scenario", "variant", "state"}, nil,
		),
		scenarioActiveVUs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "scenario", "active_vus"),
			"Virtual users currently executing an iteration.",
			[]string{"scenario", "variant"}, nil,
		),
		scenarioIterations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "scenario", "iterations_total"),
			"Completed workload iterations.",
			[]string{"scenario", "variant"}, nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.registry.Names() {
		m := c.registry.Get(name)
		if m == nil {
			continue
		}
		c.collectMetric(ch, m)
	}

	if c.status == nil {
		return
	}
	for _, st := range c.status.States() {
		ch <- prometheus.MustNewConstMetric(c.scenarioState, prometheus.GaugeValue, 1, st.Name, st.Variant, string(st.State))
		ch <- prometheus.MustNewConstMetric(c.scenarioActiveVUs, prometheus.GaugeValue, float64(st.ActiveVUs), st.Name, st.Variant)
		ch <- prometheus.MustNewConstMetric(c.scenarioIterations, prometheus.CounterValue, float64(st.Iterations), st.Name, st.Variant)
	}
}

func (c *Collector) collectMetric(ch chan<- prometheus.Metric, m *metrics.Metric) {
	series := m.Matching(metrics.TagFilter{})
	if len(series) == 0 {
		return
	}

	switch m.Type {
	case metrics.Counter:
		desc := prometheus.NewDesc(fqName(m.Name, "total"), "Counter "+m.Name+".", seriesLabels, nil)
		for tags, s := range series {
			if cs, ok := s.(*metrics.CounterSink); ok {
				ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(cs.Count()), tags.Variant, tags.Operation)
			}
		}

	case metrics.Rate:
		desc := prometheus.NewDesc(fqName(m.Name, "ratio"), "Pass ratio of "+m.Name+".", seriesLabels, nil)
		for tags, s := range series {
			rs, ok := s.(*metrics.RateSink)
			if !ok {
				continue
			}
			trues, total := rs.Counts()
			if total == 0 {
				continue
			}
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(trues)/float64(total), tags.Variant, tags.Operation)
		}

	case metrics.Trend:
		unit := ""
		if m.Contains == metrics.Time {
			unit = "milliseconds"
		}
		desc := prometheus.NewDesc(fqName(m.Name, unit), "Distribution of "+m.Name+".", seriesLabels, nil)
		for tags, s := range series {
			d, ok := s.(metrics.Distribution)
			if !ok || d.Len() == 0 {
				continue
			}
			q := make(map[float64]float64, len(quantiles))
			for _, p := range quantiles {
				q[p] = d.Percentile(p * 100)
			}
			stats := d.Stats()
			count := uint64(d.Len())
			sum := stats["avg"] * float64(count)
			ch <- prometheus.MustNewConstSummary(desc, count, sum, q, tags.Variant, tags.Operation)
		}
	}
}

// fqName 生成指标全名，suffix 已包含在名称中时不重复追加
func fqName(name, suffix string) string {
	name = sanitize(name)
	if suffix != "" && !strings.HasSuffix(name, "_"+suffix) {
		name += "_" + suffix
	}
	return namespace + "_" + name
}

// sanitize 把非法字符替换为下划线
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		}
		return '_'
	}, name)
}
