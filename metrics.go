package teflib

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a tracer's Stats as Prometheus metrics. Values are read
// at scrape time, so nothing is added to the recording path.
type Collector struct {
	tracer *Tracer

	recorded       *prometheus.Desc
	dropped        *prometheus.Desc
	drained        *prometheus.Desc
	completedSinks *prometheus.Desc
	activeSinks    *prometheus.Desc
	bufferedEvents *prometheus.Desc
	metaEvents     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for tracer. constLabels are attached to
// every metric.
func NewCollector(tracer *Tracer, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("teflib", "", name), help, nil, constLabels)
	}
	return &Collector{
		tracer:         tracer,
		recorded:       desc("events_recorded_total", "Events accepted into the buffer."),
		dropped:        desc("events_dropped_total", "Events rejected for an unsupported phase."),
		drained:        desc("events_drained_total", "Events serialized and delivered by drains."),
		completedSinks: desc("sinks_completed_total", "Sinks that were finished."),
		activeSinks:    desc("sinks_active", "Sinks currently receiving events."),
		bufferedEvents: desc("buffered_events", "Events waiting for the next drain."),
		metaEvents:     desc("meta_events", "Meta-events recorded."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.recorded
	ch <- c.dropped
	ch <- c.drained
	ch <- c.completedSinks
	ch <- c.activeSinks
	ch <- c.bufferedEvents
	ch <- c.metaEvents
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.tracer.Stats()
	ch <- prometheus.MustNewConstMetric(c.recorded, prometheus.CounterValue, float64(s.Recorded))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.drained, prometheus.CounterValue, float64(s.Drained))
	ch <- prometheus.MustNewConstMetric(c.completedSinks, prometheus.CounterValue, float64(s.CompletedSinks))
	ch <- prometheus.MustNewConstMetric(c.activeSinks, prometheus.GaugeValue, float64(s.ActiveSinks))
	ch <- prometheus.MustNewConstMetric(c.bufferedEvents, prometheus.GaugeValue, float64(s.BufferedEvents))
	ch <- prometheus.MustNewConstMetric(c.metaEvents, prometheus.GaugeValue, float64(s.MetaEvents))
}
