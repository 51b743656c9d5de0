// Package metrics collects and exposes Prometheus metrics for the poll loop
// and the notification pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll outcomes recorded by RecordPoll.
const (
	OutcomeSuccess     = "success"
	OutcomeNotModified = "not_modified"
	OutcomeRateLimited = "rate_limited"
	OutcomeTransient   = "transient_error"
	OutcomeAuthError   = "auth_error"
)

// Collector gathers counters for the poller and the dispatcher.
// A nil *Collector is valid and records nothing, so tests can pass nil.
type Collector struct {
	polls        *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	httpStatus   *prometheus.CounterVec

	shown     prometheus.Counter
	activated prometheus.Counter
	dropped   prometheus.Counter

	dedupSize prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghnotifyd_polls_total",
			Help: "Feed polls by outcome.",
		}, []string{"outcome"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ghnotifyd_fetch_latency_seconds",
			Help:    "Feed fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghnotifyd_http_status_total",
			Help: "Feed responses by HTTP status code.",
		}, []string{"status_code"}),
		shown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghnotifyd_notifications_shown_total",
			Help: "Desktop notifications successfully displayed.",
		}),
		activated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghnotifyd_notifications_activated_total",
			Help: "Displayed notifications the user activated.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghnotifyd_notifications_dropped_total",
			Help: "Notifications dropped because the surface was unavailable.",
		}),
		dedupSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ghnotifyd_dedup_seen_ids",
			Help: "Current size of the seen-id set.",
		}),
	}

	reg.MustRegister(
		c.polls,
		c.fetchLatency,
		c.httpStatus,
		c.shown,
		c.activated,
		c.dropped,
		c.dedupSize,
	)

	return c
}

func (c *Collector) RecordPoll(outcome string) {
	if c == nil {
		return
	}
	c.polls.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordFetchLatency(d time.Duration) {
	if c == nil {
		return
	}
	c.fetchLatency.Observe(d.Seconds())
}

func (c *Collector) RecordHTTPStatus(code int) {
	if c == nil {
		return
	}
	c.httpStatus.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (c *Collector) RecordNotificationShown() {
	if c == nil {
		return
	}
	c.shown.Inc()
}

func (c *Collector) RecordNotificationActivated() {
	if c == nil {
		return
	}
	c.activated.Inc()
}

func (c *Collector) RecordNotificationDropped() {
	if c == nil {
		return
	}
	c.dropped.Inc()
}

func (c *Collector) SetDedupSize(n int) {
	if c == nil {
		return
	}
	c.dedupSize.Set(float64(n))
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
