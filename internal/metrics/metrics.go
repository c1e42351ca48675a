// Package metrics exposes operational gauges and counters for Prometheus
// scraping. Providers are queried lazily at scrape time so the collector
// holds no state of its own.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActiveCallsProvider exposes the number of in-flight calls.
type ActiveCallsProvider interface {
	ActiveCallCount() int
}

// EngineStatusProvider reports whether the manager connection is up.
type EngineStatusProvider interface {
	Connected() bool
}

// CDRDispositionCounter returns call record counts grouped by disposition.
type CDRDispositionCounter interface {
	CountByDisposition(ctx context.Context) (map[string]int64, error)
}

// ObserverCounter reports the number of live WebSocket observers.
type ObserverCounter interface {
	Count() int
}

// Collector is a prometheus.Collector gathering GonoPBX metrics at
// scrape time. Any provider may be nil if unavailable.
type Collector struct {
	activeCalls ActiveCallsProvider
	engine      EngineStatusProvider
	cdrs        CDRDispositionCounter
	observers   ObserverCounter
	startTime   time.Time

	activeCallsDesc *prometheus.Desc
	engineUpDesc    *prometheus.Desc
	callsTotalDesc  *prometheus.Desc
	observersDesc   *prometheus.Desc
	uptimeDesc      *prometheus.Desc
}

// NewCollector creates a collector over the given providers.
func NewCollector(
	activeCalls ActiveCallsProvider,
	engine EngineStatusProvider,
	cdrs CDRDispositionCounter,
	observers ObserverCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		activeCalls: activeCalls,
		engine:      engine,
		cdrs:        cdrs,
		observers:   observers,
		startTime:   startTime,

		activeCallsDesc: prometheus.NewDesc(
			"gonopbx_active_calls",
			"Number of in-flight calls tracked by the correlator",
			nil, nil,
		),
		engineUpDesc: prometheus.NewDesc(
			"gonopbx_ami_connected",
			"Whether the manager connection to Asterisk is established (1=yes)",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"gonopbx_calls_total",
			"Total number of finalized call records by disposition",
			[]string{"disposition"}, nil,
		),
		observersDesc: prometheus.NewDesc(
			"gonopbx_ws_observers",
			"Number of connected WebSocket observers",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"gonopbx_uptime_seconds",
			"Seconds since the GonoPBX process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.engineUpDesc
	ch <- c.callsTotalDesc
	ch <- c.observersDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.activeCalls != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue,
			float64(c.activeCalls.ActiveCallCount()),
		)
	}

	if c.engine != nil {
		up := 0.0
		if c.engine.Connected() {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.engineUpDesc, prometheus.GaugeValue, up)
	}

	if c.cdrs != nil {
		counts, err := c.cdrs.CountByDisposition(ctx)
		if err != nil {
			slog.Error("metrics: failed to count cdrs by disposition", "error", err)
		} else {
			for disposition, count := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(count), disposition,
				)
			}
		}
	}

	if c.observers != nil {
		ch <- prometheus.MustNewConstMetric(
			c.observersDesc, prometheus.GaugeValue,
			float64(c.observers.Count()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
