package uwb

// MetricsReporter is the narrow metrics-emission surface the core depends
// on; the core never imports prometheus directly, mirroring the teacher's
// MetricsReporter/noopMetrics split in internal/bfd/session.go. The
// internal/metrics package provides the production implementation backed
// by github.com/prometheus/client_golang.
type MetricsReporter interface {
	SessionOpened(protocol Protocol)
	SessionClosed(protocol Protocol, reason Reason)
	AdmissionRejected(protocol Protocol, reason Reason)
	CommandTimeout(operation Operation)
	RxBufferDropped(protocol Protocol)
}

// noopMetrics discards everything; it is the EventLoop's default so a
// caller that doesn't wire internal/metrics still gets a fully functional
// core.
type noopMetrics struct{}

// NewNoopMetrics returns a MetricsReporter that discards every observation.
func NewNoopMetrics() MetricsReporter { return noopMetrics{} }

func (noopMetrics) SessionOpened(Protocol)             {}
func (noopMetrics) SessionClosed(Protocol, Reason)     {}
func (noopMetrics) AdmissionRejected(Protocol, Reason) {}
func (noopMetrics) CommandTimeout(Operation)           {}
func (noopMetrics) RxBufferDropped(Protocol)           {}
