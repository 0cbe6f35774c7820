// Package metrics adapts core component events onto Prometheus collectors.
// Internal: the core packages depend only on observability.Sink; this
// package is one concrete implementation, wired in by cmd/substrate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector counts and times events emitted by the bus, admission queue,
// provider router, and content cache, grouped by event name.
type Collector struct {
	eventsTotal   *prometheus.CounterVec
	deliveryMs    *prometheus.HistogramVec
	queueGauge    *prometheus.GaugeVec
	cacheOutcomes *prometheus.CounterVec
}

// NewCollector registers the collector's metrics under namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of core events emitted, by event name.",
			},
			[]string{"event"},
		),
		deliveryMs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_ms",
				Help:      "Elapsed milliseconds for message_delivered events.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{"recipient"},
		),
		queueGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_size",
				Help:      "Holding-area size observed at message_enqueued time.",
			},
			[]string{"priority"},
		),
		cacheOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_outcomes_total",
				Help:      "Cache get outcomes, by hit/miss.",
			},
			[]string{"outcome"},
		),
	}
}

// Emit implements observability.Sink.
func (c *Collector) Emit(event string, fields map[string]any) {
	c.eventsTotal.WithLabelValues(event).Inc()

	switch event {
	case "message_delivered":
		recipient, _ := fields["recipient"].(string)
		if ms, ok := toFloat(fields["elapsedMs"]); ok {
			c.deliveryMs.WithLabelValues(recipient).Observe(ms)
		}
	case "message_enqueued":
		priority, _ := fields["priority"].(string)
		if size, ok := toFloat(fields["queueSize"]); ok {
			c.queueGauge.WithLabelValues(priority).Set(size)
		}
	case "cache_hit":
		c.cacheOutcomes.WithLabelValues("hit").Inc()
	case "cache_miss":
		c.cacheOutcomes.WithLabelValues("miss").Inc()
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case time.Duration:
		return float64(n.Milliseconds()), true
	default:
		return 0, false
	}
}
