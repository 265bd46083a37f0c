package prometheus

import (
	"github.com/goliatone/go-container/core"
	"github.com/prometheus/client_golang/prometheus"
)

// DeploymentSource is satisfied by *core.Container.
type DeploymentSource interface {
	ListDeployments() []core.DeploymentInfo
}

// PoolCollector exports per-component instance pool gauges at scrape time.
type PoolCollector struct {
	source DeploymentSource

	idle      *prometheus.Desc
	acquired  *prometheus.Desc
	total     *prometheus.Desc
	max       *prometheus.Desc
	created   *prometheus.Desc
	discarded *prometheus.Desc
	released  *prometheus.Desc
}

func NewPoolCollector(source DeploymentSource) *PoolCollector {
	labels := []string{"component_id"}
	desc := func(name string, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(defaultNamespace, "pool", name), help, labels, nil)
	}
	return &PoolCollector{
		source:    source,
		idle:      desc("idle_instances", "Instances waiting in the pool."),
		acquired:  desc("acquired_instances", "Instances checked out by running calls."),
		total:     desc("instances", "Instances currently owned by the pool."),
		max:       desc("max_instances", "Configured pool capacity."),
		created:   desc("created_total", "Instances created since the pool started."),
		discarded: desc("discarded_total", "Instances discarded after system faults."),
		released:  desc("released_total", "Instances returned to the pool."),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range []*prometheus.Desc{c.idle, c.acquired, c.total, c.max, c.created, c.discarded, c.released} {
		ch <- desc
	}
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}
	for _, info := range c.source.ListDeployments() {
		stats := info.Pool
		id := info.ComponentID
		ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.Idle), id)
		ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(stats.Acquired), id)
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(stats.Total), id)
		ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(stats.Max), id)
		ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(stats.Created), id)
		ch <- prometheus.MustNewConstMetric(c.discarded, prometheus.CounterValue, float64(stats.Discarded), id)
		ch <- prometheus.MustNewConstMetric(c.released, prometheus.CounterValue, float64(stats.Released), id)
	}
}

var _ prometheus.Collector = (*PoolCollector)(nil)
