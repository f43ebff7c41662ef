package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records matchmaking, session and connection metrics.
// Every method is safe on a nil *Collector so components can run without metrics.
type Collector struct {
	queueWaiting      prometheus.Gauge
	matchesTotal      prometheus.Counter
	matchCancelled    prometheus.Counter
	waitSeconds       prometheus.Histogram
	debatesActive     prometheus.Gauge
	debatesConcluded  *prometheus.CounterVec
	turnsTotal        *prometheus.CounterVec
	deliveryFailures  prometheus.Counter
	connectionsActive prometheus.Gauge
	inboundMessages   *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		queueWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "debate_queue_waiting",
			Help: "Users currently waiting in the matchmaking queue",
		}),
		matchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "debate_matches_total",
			Help: "Pairs formed by the matchmaker",
		}),
		matchCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "debate_matches_cancelled_total",
			Help: "Pairs discarded because a match notification could not be delivered",
		}),
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "debate_queue_wait_seconds",
			Help:    "Time users spent in the queue before being paired",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		debatesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "debate_sessions_active",
			Help: "Live debate sessions",
		}),
		debatesConcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debate_sessions_concluded_total",
			Help: "Concluded debate sessions by reason",
		}, []string{"reason"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debate_turns_total",
			Help: "Recorded turns, split by whether the turn was forfeited",
		}, []string{"skipped"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "debate_delivery_failures_total",
			Help: "Outbound messages that could not be delivered",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "debate_connections_active",
			Help: "Open websocket connections",
		}),
		inboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debate_inbound_messages_total",
			Help: "Inbound websocket messages by type",
		}, []string{"type"}),
	}

	reg.MustRegister(
		c.queueWaiting,
		c.matchesTotal,
		c.matchCancelled,
		c.waitSeconds,
		c.debatesActive,
		c.debatesConcluded,
		c.turnsTotal,
		c.deliveryFailures,
		c.connectionsActive,
		c.inboundMessages,
	)

	return c
}

func (c *Collector) SetQueueWaiting(n int) {
	if c == nil {
		return
	}
	c.queueWaiting.Set(float64(n))
}

// RecordMatch counts a formed pair and the wait of both members.
func (c *Collector) RecordMatch(waitA, waitB time.Duration) {
	if c == nil {
		return
	}
	c.matchesTotal.Inc()
	c.waitSeconds.Observe(waitA.Seconds())
	c.waitSeconds.Observe(waitB.Seconds())
}

func (c *Collector) RecordMatchCancelled() {
	if c == nil {
		return
	}
	c.matchCancelled.Inc()
}

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.debatesActive.Inc()
}

func (c *Collector) SessionConcluded(reason string) {
	if c == nil {
		return
	}
	c.debatesActive.Dec()
	c.debatesConcluded.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordTurn(skipped bool) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(strconv.FormatBool(skipped)).Inc()
}

func (c *Collector) RecordDeliveryFailure() {
	if c == nil {
		return
	}
	c.deliveryFailures.Inc()
}

func (c *Collector) SetConnections(n int) {
	if c == nil {
		return
	}
	c.connectionsActive.Set(float64(n))
}

func (c *Collector) RecordInbound(msgType string) {
	if c == nil {
		return
	}
	c.inboundMessages.WithLabelValues(msgType).Inc()
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
