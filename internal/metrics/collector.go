package rdpmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/gordp/internal/rdp"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gordp"
	subsystem = "rdp"
)

// Label names for RDP metrics.
const (
	labelPDUType   = "pdu_type"
	labelFromPhase = "from_phase"
	labelToPhase   = "to_phase"
)

// -------------------------------------------------------------------------
// Collector — Prometheus RDP Metrics, implementing rdp.Recorder
// -------------------------------------------------------------------------

// Collector holds all RDP client Prometheus metrics and implements
// rdp.Recorder, so a Session can be wired directly to it (spec.md §3's
// Recorder collaborator).
//
// Metrics are designed for production observability:
//   - PDU counters track send/receive volume per PDU type.
//   - Byte counters track wire-level throughput.
//   - MAC/decrypt/decompress failure counters flag protocol or
//     implementation issues.
//   - Phase transition counters record connection state machine progress.
type Collector struct {
	// PDUsSent counts outbound PDUs per Share Control/Data type.
	PDUsSent *prometheus.CounterVec

	// PDUsReceived counts inbound PDUs per Share Control/Data type.
	PDUsReceived *prometheus.CounterVec

	// BytesSent counts outbound bytes per PDU type.
	BytesSent *prometheus.CounterVec

	// BytesReceived counts inbound bytes per PDU type.
	BytesReceived *prometheus.CounterVec

	// MACMismatches counts legacy MAC verification failures (spec.md §9
	// Security note): observable even when non-fatal.
	MACMismatches prometheus.Counter

	// DecryptFailures counts FIPS/legacy decrypt failures.
	DecryptFailures prometheus.Counter

	// DecompressFailures counts MPPC-family decompress failures.
	DecompressFailures prometheus.Counter

	// PhaseTransitions counts connection state machine transitions,
	// labeled with the old and new phase for alerting on stalls.
	PhaseTransitions *prometheus.CounterVec

	// Disconnects counts session disconnects.
	Disconnects prometheus.Counter
}

// NewCollector creates a Collector with all RDP metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PDUsSent,
		c.PDUsReceived,
		c.BytesSent,
		c.BytesReceived,
		c.MACMismatches,
		c.DecryptFailures,
		c.DecompressFailures,
		c.PhaseTransitions,
		c.Disconnects,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	pduLabels := []string{labelPDUType}
	transitionLabels := []string{labelFromPhase, labelToPhase}

	return &Collector{
		PDUsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pdus_sent_total",
			Help:      "Total Share Control/Share Data PDUs transmitted, by PDU type.",
		}, pduLabels),

		PDUsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pdus_received_total",
			Help:      "Total Share Control/Share Data PDUs received, by PDU type.",
		}, pduLabels),

		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Total bytes transmitted, by PDU type.",
		}, pduLabels),

		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Total bytes received, by PDU type.",
		}, pduLabels),

		MACMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "legacy_mac_mismatches_total",
			Help:      "Total legacy security MAC verification failures.",
		}),

		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decrypt_failures_total",
			Help:      "Total FIPS or legacy decrypt failures.",
		}),

		DecompressFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decompress_failures_total",
			Help:      "Total MPPC-family decompress failures.",
		}),

		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_transitions_total",
			Help:      "Total connection state machine phase transitions.",
		}, transitionLabels),

		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "disconnects_total",
			Help:      "Total session disconnects.",
		}),
	}
}

// -------------------------------------------------------------------------
// rdp.Recorder implementation
// -------------------------------------------------------------------------

// OnPDUSent implements rdp.Recorder.
func (c *Collector) OnPDUSent(pduType uint8, n int) {
	label := strconv.Itoa(int(pduType))
	c.PDUsSent.WithLabelValues(label).Inc()
	c.BytesSent.WithLabelValues(label).Add(float64(n))
}

// OnPDURecv implements rdp.Recorder.
func (c *Collector) OnPDURecv(pduType uint8, n int) {
	label := strconv.Itoa(int(pduType))
	c.PDUsReceived.WithLabelValues(label).Inc()
	c.BytesReceived.WithLabelValues(label).Add(float64(n))
}

// OnMACMismatch implements rdp.Recorder.
func (c *Collector) OnMACMismatch() {
	c.MACMismatches.Inc()
}

// OnDecryptFailure implements rdp.Recorder.
func (c *Collector) OnDecryptFailure() {
	c.DecryptFailures.Inc()
}

// OnDecompressFailure implements rdp.Recorder.
func (c *Collector) OnDecompressFailure() {
	c.DecompressFailures.Inc()
}

// OnPhaseTransition implements rdp.Recorder.
func (c *Collector) OnPhaseTransition(from, to rdp.Phase) {
	c.PhaseTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// OnDisconnect implements rdp.Recorder.
func (c *Collector) OnDisconnect(_ string) {
	c.Disconnects.Inc()
}

var _ rdp.Recorder = (*Collector)(nil)
