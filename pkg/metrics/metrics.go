// Package metrics exposes prometheus collectors for chronicle operations.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chronicle"

type Collector struct {
	writes        *prometheus.CounterVec
	merges        *prometheus.CounterVec
	loads         *prometheus.CounterVec
	syncMessages  *prometheus.CounterVec
	snapshotBytes prometheus.Histogram
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_writes_total",
				Help:      "Total number of full state writes",
			},
			[]string{"outcome"},
		),
		merges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merges_total",
				Help:      "Total number of snapshot merges",
			},
			[]string{"outcome"},
		),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Total number of snapshot loads",
			},
			[]string{"outcome"},
		),
		syncMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_messages_total",
				Help:      "Sync messages generated or received",
			},
			[]string{"direction", "outcome"},
		),
		snapshotBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_bytes",
				Help:      "Size of saved document snapshots",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
			},
		),
	}
	for _, col := range []prometheus.Collector{c.writes, c.merges, c.loads, c.syncMessages, c.snapshotBytes} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return c, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collector) ObserveWrite(err error) {
	if c == nil {
		return
	}
	c.writes.WithLabelValues(outcome(err)).Inc()
}

func (c *Collector) ObserveMerge(err error) {
	if c == nil {
		return
	}
	c.merges.WithLabelValues(outcome(err)).Inc()
}

func (c *Collector) ObserveLoad(err error) {
	if c == nil {
		return
	}
	c.loads.WithLabelValues(outcome(err)).Inc()
}

// ObserveGenerate records one generate call. "empty" means the peer was already convergent.
func (c *Collector) ObserveGenerate(hasMessage bool, err error) {
	if c == nil {
		return
	}
	o := outcome(err)
	if err == nil && !hasMessage {
		o = "empty"
	}
	c.syncMessages.WithLabelValues("generated", o).Inc()
}

func (c *Collector) ObserveReceive(err error) {
	if c == nil {
		return
	}
	c.syncMessages.WithLabelValues("received", outcome(err)).Inc()
}

func (c *Collector) ObserveSnapshot(size int) {
	if c == nil {
		return
	}
	c.snapshotBytes.Observe(float64(size))
}
