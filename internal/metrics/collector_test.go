package uwbmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	uwbmetrics "github.com/dantte-lp/uwbsessiond/internal/metrics"
	"github.com/dantte-lp/uwbsessiond/internal/uwb"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := uwbmetrics.NewCollector(reg)

	if c.SessionsOpen == nil {
		t.Error("SessionsOpen is nil")
	}
	if c.SessionsClosedTotal == nil {
		t.Error("SessionsClosedTotal is nil")
	}
	if c.AdmissionRejectedTotal == nil {
		t.Error("AdmissionRejectedTotal is nil")
	}
	if c.CommandTimeoutsTotal == nil {
		t.Error("CommandTimeoutsTotal is nil")
	}
	if c.RxBufferDroppedTotal == nil {
		t.Error("RxBufferDroppedTotal is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestCollectorSessionOpenedAndClosed(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := uwbmetrics.NewCollector(reg)

	c.SessionOpened(uwb.ProtocolFiRa)
	c.SessionOpened(uwb.ProtocolFiRa)
	if got := gaugeValue(t, c.SessionsOpen, "FiRa"); got != 2 {
		t.Errorf("SessionsOpen after two opens = %v, want 2", got)
	}

	c.SessionClosed(uwb.ProtocolFiRa, uwb.ReasonLocalApi)
	if got := gaugeValue(t, c.SessionsOpen, "FiRa"); got != 1 {
		t.Errorf("SessionsOpen after one close = %v, want 1", got)
	}
	if got := counterValue(t, c.SessionsClosedTotal, "FiRa", "LocalApi"); got != 1 {
		t.Errorf("SessionsClosedTotal = %v, want 1", got)
	}
}

func TestCollectorAdmissionRejected(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := uwbmetrics.NewCollector(reg)

	c.AdmissionRejected(uwb.ProtocolCcc, uwb.ReasonMaxSessionsReached)
	c.AdmissionRejected(uwb.ProtocolCcc, uwb.ReasonMaxSessionsReached)

	if got := counterValue(t, c.AdmissionRejectedTotal, "Ccc", "MaxSessionsReached"); got != 2 {
		t.Errorf("AdmissionRejectedTotal = %v, want 2", got)
	}
}

func TestCollectorCommandTimeout(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := uwbmetrics.NewCollector(reg)

	c.CommandTimeout(uwb.OperationStart)

	if got := counterValue(t, c.CommandTimeoutsTotal, uwb.OperationStart.String()); got != 1 {
		t.Errorf("CommandTimeoutsTotal = %v, want 1", got)
	}
}

func TestCollectorRxBufferDropped(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := uwbmetrics.NewCollector(reg)

	c.RxBufferDropped(uwb.ProtocolFiRa)
	c.RxBufferDropped(uwb.ProtocolFiRa)
	c.RxBufferDropped(uwb.ProtocolFiRa)

	if got := counterValue(t, c.RxBufferDroppedTotal, "FiRa"); got != 3 {
		t.Errorf("RxBufferDroppedTotal = %v, want 3", got)
	}
}

// gaugeValue reads the current value of a GaugeVec with the given labels.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
