// Package metrics exposes the kernel's Prometheus series: queue depth and
// drops, dispatch latency, permission denials, and scheduler ticks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the kernel updates. Each
// Metrics owns a private registry rather than registering against
// prometheus.DefaultRegisterer, so multiple Kernel instances (as tests
// routinely construct) never collide on duplicate collector names.
type Metrics struct {
	Registry *prometheus.Registry

	QueueDepth    *prometheus.GaugeVec
	QueueEnqueued *prometheus.CounterVec
	QueueDropped  *prometheus.CounterVec
	QueueRejected *prometheus.CounterVec

	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	PermissionDenials *prometheus.CounterVec

	SchedulerTicks     *prometheus.CounterVec
	SchedulerProcessed *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec

	ResponsesPending prometheus.Gauge
	ResponseTimeouts prometheus.Counter

	Uptime    prometheus.Gauge
	startTime time.Time
	stop      chan struct{}
}

// New constructs a Metrics with its own private registry and registers
// every collector against it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	m := &Metrics{
		Registry:  reg,
		startTime: time.Now(),

		QueueDepth: fac.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mycelia_queue_depth",
				Help: "Current number of entries waiting in a subsystem queue",
			},
			[]string{"subsystem"},
		),
		QueueEnqueued: fac.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_queue_enqueued_total",
				Help: "Total entries accepted onto a subsystem queue",
			},
			[]string{"subsystem"},
		),
		QueueDropped: fac.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_queue_dropped_total",
				Help: "Total entries silently dropped under drop-newest/drop-oldest",
			},
			[]string{"subsystem", "policy"},
		),
		QueueRejected: fac.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_queue_rejected_total",
				Help: "Total entries rejected with QueueFull under the reject policy",
			},
			[]string{"subsystem"},
		),

		DispatchTotal: fac.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_dispatch_total",
				Help: "Total sendProtected dispatches, by outcome",
			},
			[]string{"subsystem", "outcome"},
		),
		DispatchDuration: fac.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mycelia_dispatch_duration_seconds",
				Help:    "Handler invocation duration",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"subsystem"},
		),

		PermissionDenials: fac.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_permission_denials_total",
				Help: "Total Layer-1/Layer-2 permission denials",
			},
			[]string{"subsystem", "layer"},
		),

		SchedulerTicks: fac.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_scheduler_ticks_total",
				Help: "Total time slices granted to a subsystem",
			},
			[]string{"subsystem"},
		),
		SchedulerProcessed: fac.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_scheduler_processed_total",
				Help: "Total messages drained from a subsystem's queue",
			},
			[]string{"subsystem"},
		),

		BreakerState: fac.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mycelia_breaker_state",
				Help: "Circuit breaker state per subsystem (0=closed, 1=half-open, 2=open)",
			},
			[]string{"subsystem"},
		),

		ResponsesPending: fac.NewGauge(
			prometheus.GaugeOpts{
				Name: "mycelia_responses_pending",
				Help: "Number of one-shot reply bindings currently outstanding",
			},
		),
		ResponseTimeouts: fac.NewCounter(
			prometheus.CounterOpts{
				Name: "mycelia_response_timeouts_total",
				Help: "Total one-shot replies settled by timeout rather than delivery",
			},
		),

		Uptime: fac.NewGauge(
			prometheus.GaugeOpts{
				Name: "mycelia_uptime_seconds",
				Help: "Kernel process uptime in seconds",
			},
		),
	}

	m.stop = make(chan struct{})
	go m.updateUptime()
	return m
}

// Handler returns an http.Handler serving this Metrics' collectors in
// the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Close stops the background uptime ticker. Safe to call once per
// Metrics; a Kernel calls this from Stop so short-lived kernels (as
// tests construct by the dozen) don't leak a goroutine apiece.
func (m *Metrics) Close() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// RecordDispatch records one sendProtected dispatch outcome and its
// handler duration.
func (m *Metrics) RecordDispatch(subsystem, outcome string, duration time.Duration) {
	m.DispatchTotal.WithLabelValues(subsystem, outcome).Inc()
	m.DispatchDuration.WithLabelValues(subsystem).Observe(duration.Seconds())
}

// RecordPermissionDenial records a Layer-1 ("route") or Layer-2
// ("resource") permission denial.
func (m *Metrics) RecordPermissionDenial(subsystem, layer string) {
	m.PermissionDenials.WithLabelValues(subsystem, layer).Inc()
}

// RecordQueueAccept updates depth/enqueued series after a successful
// Enqueue.
func (m *Metrics) RecordQueueAccept(subsystem string, depth int) {
	m.QueueEnqueued.WithLabelValues(subsystem).Inc()
	m.QueueDepth.WithLabelValues(subsystem).Set(float64(depth))
}

// RecordQueueDrop records a silent drop-newest/drop-oldest discard.
func (m *Metrics) RecordQueueDrop(subsystem, policy string) {
	m.QueueDropped.WithLabelValues(subsystem, policy).Inc()
}

// RecordQueueReject records a reject-policy QueueFull.
func (m *Metrics) RecordQueueReject(subsystem string) {
	m.QueueRejected.WithLabelValues(subsystem).Inc()
}

// RecordSchedulerSlice records one RunSlice tick and how many entries it
// drained.
func (m *Metrics) RecordSchedulerSlice(subsystem string, processed int) {
	m.SchedulerTicks.WithLabelValues(subsystem).Inc()
	m.SchedulerProcessed.WithLabelValues(subsystem).Add(float64(processed))
}

// SetBreakerState reports a subsystem breaker's current state as a gauge
// (0=closed, 1=half-open, 2=open).
func (m *Metrics) SetBreakerState(subsystem string, state int) {
	m.BreakerState.WithLabelValues(subsystem).Set(float64(state))
}

// SetResponsesPending updates the outstanding reply-binding gauge.
func (m *Metrics) SetResponsesPending(n int) {
	m.ResponsesPending.Set(float64(n))
}

// IncResponseTimeouts increments the reaper-settled timeout counter.
func (m *Metrics) IncResponseTimeouts() {
	m.ResponseTimeouts.Inc()
}
