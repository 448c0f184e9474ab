// Package uwbmetrics implements uwbsessiond's uwb.MetricsReporter with
// Prometheus collectors.
package uwbmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/uwbsessiond/internal/uwb"
)

const (
	namespace = "uwbsessiond"
	subsystem = "session"
)

const (
	labelProtocol  = "protocol"
	labelReason    = "reason"
	labelOperation = "operation"
)

// Collector holds every Prometheus metric the session manager core emits
// through uwb.MetricsReporter.
type Collector struct {
	// SessionsOpen tracks the number of currently open ranging sessions.
	SessionsOpen *prometheus.GaugeVec

	// SessionsClosedTotal counts session closures, labeled by the reason
	// that closed them.
	SessionsClosedTotal *prometheus.CounterVec

	// AdmissionRejectedTotal counts AdmissionController rejections, labeled
	// by the reason (spec §4.2).
	AdmissionRejectedTotal *prometheus.CounterVec

	// CommandTimeoutsTotal counts per-operation deadlines that elapsed
	// before the corresponding UCI notification arrived (spec §5).
	CommandTimeoutsTotal *prometheus.CounterVec

	// RxBufferDroppedTotal counts data payloads dropped by the bounded
	// per-peer rx buffer (spec §4.6).
	RxBufferDroppedTotal *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it against reg. If reg is
// nil, prometheus.DefaultRegisterer is used, mirroring the teacher's
// NewCollector(reg).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionsOpen,
		c.SessionsClosedTotal,
		c.AdmissionRejectedTotal,
		c.CommandTimeoutsTotal,
		c.RxBufferDroppedTotal,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		SessionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "open",
			Help:      "Number of currently open UWB ranging sessions.",
		}, []string{labelProtocol}),

		SessionsClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "closed_total",
			Help:      "Total UWB ranging sessions closed, by protocol and reason.",
		}, []string{labelProtocol, labelReason}),

		AdmissionRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "admission_rejected_total",
			Help:      "Total session open requests rejected by admission control.",
		}, []string{labelProtocol, labelReason}),

		CommandTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "command_timeouts_total",
			Help:      "Total per-operation deadlines elapsed before the UCI notification arrived.",
		}, []string{labelOperation}),

		RxBufferDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rx_buffer_dropped_total",
			Help:      "Total data payloads dropped by the bounded per-peer rx buffer.",
		}, []string{labelProtocol}),
	}
}

// SessionOpened implements uwb.MetricsReporter.
func (c *Collector) SessionOpened(protocol uwb.Protocol) {
	c.SessionsOpen.WithLabelValues(protocol.String()).Inc()
}

// SessionClosed implements uwb.MetricsReporter.
func (c *Collector) SessionClosed(protocol uwb.Protocol, reason uwb.Reason) {
	c.SessionsOpen.WithLabelValues(protocol.String()).Dec()
	c.SessionsClosedTotal.WithLabelValues(protocol.String(), reason.String()).Inc()
}

// AdmissionRejected implements uwb.MetricsReporter.
func (c *Collector) AdmissionRejected(protocol uwb.Protocol, reason uwb.Reason) {
	c.AdmissionRejectedTotal.WithLabelValues(protocol.String(), reason.String()).Inc()
}

// CommandTimeout implements uwb.MetricsReporter.
func (c *Collector) CommandTimeout(operation uwb.Operation) {
	c.CommandTimeoutsTotal.WithLabelValues(operation.String()).Inc()
}

// RxBufferDropped implements uwb.MetricsReporter.
func (c *Collector) RxBufferDropped(protocol uwb.Protocol) {
	c.RxBufferDroppedTotal.WithLabelValues(protocol.String()).Inc()
}

var _ uwb.MetricsReporter = (*Collector)(nil)
