package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sequence anomaly kinds.
const (
	SequenceUnexpected = "unexpected"
	SequenceDuplicate  = "duplicate"
)

// ForwardMetrics holds all Prometheus metrics for the packet forwarder.
// A nil *ForwardMetrics is valid and records nothing.
type ForwardMetrics struct {
	PacketsTotal          prometheus.Counter
	EventsTotal           prometheus.Counter
	EventsDiscardedTotal  prometheus.Counter
	SequenceAnomalies     *prometheus.CounterVec
	RestartsTotal         prometheus.Counter
	TimelinesTotal        prometheus.Counter
	TimelineSwitchesTotal prometheus.Counter
	DecodeErrorsTotal     prometheus.Counter
	ConnectAttemptsTotal  *prometheus.CounterVec
}

// NewForwardMetrics initializes the metrics and registers them with reg.
func NewForwardMetrics(reg prometheus.Registerer) *ForwardMetrics {
	factory := promauto.With(reg)
	return &ForwardMetrics{
		PacketsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "forward",
			Name:      "packets_total",
			Help:      "Total number of packets handled.",
		}),
		EventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "forward",
			Name:      "events_total",
			Help:      "Total number of events sent to the backend.",
		}),
		EventsDiscardedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "forward",
			Name:      "events_discarded_total",
			Help:      "Total number of events the device reported as discarded.",
		}),
		SequenceAnomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "forward",
			Name:      "sequence_anomalies_total",
			Help:      "Packet sequence number anomalies by kind.",
		}, []string{"kind"}), // kind: unexpected, duplicate
		RestartsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "forward",
			Name:      "restarts_total",
			Help:      "Total number of detected trace restarts.",
		}),
		TimelinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "forward",
			Name:      "timelines_total",
			Help:      "Total number of timelines allocated.",
		}),
		TimelineSwitchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "forward",
			Name:      "timeline_switches_total",
			Help:      "Total number of backend timeline switches.",
		}),
		DecodeErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "forward",
			Name:      "decode_errors_total",
			Help:      "Total number of packet decode failures.",
		}),
		ConnectAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctf_relay",
			Subsystem: "session",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by result.",
		}, []string{"result"}), // result: ok, error
	}
}

func (m *ForwardMetrics) Packet() {
	if m != nil {
		m.PacketsTotal.Inc()
	}
}

func (m *ForwardMetrics) Event() {
	if m != nil {
		m.EventsTotal.Inc()
	}
}

func (m *ForwardMetrics) Discarded(n uint64) {
	if m != nil {
		m.EventsDiscardedTotal.Add(float64(n))
	}
}

func (m *ForwardMetrics) SequenceAnomaly(kind string) {
	if m != nil {
		m.SequenceAnomalies.WithLabelValues(kind).Inc()
	}
}

func (m *ForwardMetrics) Restart() {
	if m != nil {
		m.RestartsTotal.Inc()
	}
}

func (m *ForwardMetrics) Timeline() {
	if m != nil {
		m.TimelinesTotal.Inc()
	}
}

func (m *ForwardMetrics) Switch() {
	if m != nil {
		m.TimelineSwitchesTotal.Inc()
	}
}

func (m *ForwardMetrics) DecodeError() {
	if m != nil {
		m.DecodeErrorsTotal.Inc()
	}
}

// ConnectAttempt records one dial outcome.
func (m *ForwardMetrics) ConnectAttempt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ConnectAttemptsTotal.WithLabelValues(result).Inc()
}
