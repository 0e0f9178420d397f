package rdpmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dantte-lp/gordp/internal/rdp"

	rdpmetrics "github.com/dantte-lp/gordp/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rdpmetrics.NewCollector(reg)

	if c.PDUsSent == nil {
		t.Error("PDUsSent is nil")
	}
	if c.PDUsReceived == nil {
		t.Error("PDUsReceived is nil")
	}
	if c.BytesSent == nil {
		t.Error("BytesSent is nil")
	}
	if c.BytesReceived == nil {
		t.Error("BytesReceived is nil")
	}
	if c.MACMismatches == nil {
		t.Error("MACMismatches is nil")
	}
	if c.DecryptFailures == nil {
		t.Error("DecryptFailures is nil")
	}
	if c.DecompressFailures == nil {
		t.Error("DecompressFailures is nil")
	}
	if c.PhaseTransitions == nil {
		t.Error("PhaseTransitions is nil")
	}
	if c.Disconnects == nil {
		t.Error("Disconnects is nil")
	}

	// Verify all metrics are registered by gathering them.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestPDUCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rdpmetrics.NewCollector(reg)

	c.OnPDUSent(uint8(rdp.PDUTypeData), 10)
	c.OnPDUSent(uint8(rdp.PDUTypeData), 20)
	c.OnPDURecv(uint8(rdp.PDUTypeData), 15)

	sent := counterValue(t, c.PDUsSent, "7")
	if sent != 2 {
		t.Errorf("PDUsSent = %v, want 2", sent)
	}

	sentBytes := counterValue(t, c.BytesSent, "7")
	if sentBytes != 30 {
		t.Errorf("BytesSent = %v, want 30", sentBytes)
	}

	recv := counterValue(t, c.PDUsReceived, "7")
	if recv != 1 {
		t.Errorf("PDUsReceived = %v, want 1", recv)
	}

	recvBytes := counterValue(t, c.BytesReceived, "7")
	if recvBytes != 15 {
		t.Errorf("BytesReceived = %v, want 15", recvBytes)
	}
}

func TestFailureCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rdpmetrics.NewCollector(reg)

	c.OnMACMismatch()
	c.OnMACMismatch()
	c.OnDecryptFailure()
	c.OnDecompressFailure()
	c.OnDecompressFailure()
	c.OnDecompressFailure()

	if v := plainCounterValue(t, c.MACMismatches); v != 2 {
		t.Errorf("MACMismatches = %v, want 2", v)
	}
	if v := plainCounterValue(t, c.DecryptFailures); v != 1 {
		t.Errorf("DecryptFailures = %v, want 1", v)
	}
	if v := plainCounterValue(t, c.DecompressFailures); v != 3 {
		t.Errorf("DecompressFailures = %v, want 3", v)
	}
}

func TestPhaseTransitionsAndDisconnect(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rdpmetrics.NewCollector(reg)

	c.OnPhaseTransition(rdp.PhaseNego, rdp.PhaseMCSConnect)
	c.OnPhaseTransition(rdp.PhaseNego, rdp.PhaseMCSConnect)
	c.OnPhaseTransition(rdp.PhaseCapability, rdp.PhaseFinalization)
	c.OnDisconnect("test")

	v := counterValue(t, c.PhaseTransitions, rdp.PhaseNego.String(), rdp.PhaseMCSConnect.String())
	if v != 2 {
		t.Errorf("PhaseTransitions(Nego->MCSConnect) = %v, want 2", v)
	}

	v = counterValue(t, c.PhaseTransitions, rdp.PhaseCapability.String(), rdp.PhaseFinalization.String())
	if v != 1 {
		t.Errorf("PhaseTransitions(Capability->Finalization) = %v, want 1", v)
	}

	if v := plainCounterValue(t, c.Disconnects); v != 1 {
		t.Errorf("Disconnects = %v, want 1", v)
	}
}

func TestCollectorSatisfiesRecorder(t *testing.T) {
	t.Parallel()

	var _ rdp.Recorder = rdpmetrics.NewCollector(prometheus.NewRegistry())
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

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

// plainCounterValue reads the current value of a bare prometheus.Counter.
func plainCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
