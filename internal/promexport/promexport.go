// Package promexport exposes go-metrics registry as prometheus.Collector.
package promexport

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	metrics "github.com/rcrowley/go-metrics"
)

// Collector reads registry on every scrape, so metrics registered later are exported too.
// Counters and meter counts are exported as counters with "_total" suffix, gauges as gauges.
// Meter also exports its one minute rate as "_rate1" gauge.
type Collector struct {
	namespace string
	registry  metrics.Registry
}

var _ prometheus.Collector = (*Collector)(nil)

func New(namespace string, r metrics.Registry) *Collector {
	return &Collector{namespace: namespace, registry: r}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			ch <- c.metric(name+"_total", prometheus.CounterValue, float64(m.Count()))
		case metrics.Gauge:
			ch <- c.metric(name, prometheus.GaugeValue, float64(m.Value()))
		case metrics.GaugeFloat64:
			ch <- c.metric(name, prometheus.GaugeValue, m.Value())
		case metrics.Meter:
			s := m.Snapshot()
			ch <- c.metric(name+"_total", prometheus.CounterValue, float64(s.Count()))
			ch <- c.metric(name+"_rate1", prometheus.GaugeValue, s.Rate1())
		}
	})
}

func (c *Collector) metric(name string, t prometheus.ValueType, v float64) prometheus.Metric {
	desc := prometheus.NewDesc(c.fqName(name), "go-metrics "+name, nil, nil)
	return prometheus.MustNewConstMetric(desc, t, v)
}

func (c *Collector) fqName(name string) string {
	return prometheus.BuildFQName(c.namespace, "", strings.NewReplacer(".", "_", "-", "_").Replace(name))
}
