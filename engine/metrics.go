package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rigado/rfcomm/frame"
)

// Metrics exports protocol counters to Prometheus. It implements
// session.Metrics. All methods are nil-safe.
type Metrics struct {
	// FramesReceived counts valid frames by type.
	FramesReceived *prometheus.CounterVec

	// FramesSent counts frames handed to the lower layer, by type.
	FramesSent *prometheus.CounterVec

	// FramesDropped counts discarded frames by reason.
	// Reason values: "fcs", "malformed", "state", "closed", "type".
	FramesDropped *prometheus.CounterVec

	// CreditsGrantedTotal counts receive credits granted to peers.
	CreditsGrantedTotal prometheus.Counter

	// DLCsActive tracks connected channels across all sessions.
	DLCsActive prometheus.Gauge

	// SessionsActive tracks sessions not yet disconnected.
	SessionsActive prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rfcomm",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Total number of valid RFCOMM frames received",
		}, []string{"type"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rfcomm",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Total number of RFCOMM frames sent",
		}, []string{"type"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rfcomm",
			Subsystem: "frames",
			Name:      "dropped_total",
			Help:      "Total number of RFCOMM frames discarded",
		}, []string{"reason"}),
		CreditsGrantedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rfcomm",
			Subsystem: "flow",
			Name:      "credits_granted_total",
			Help:      "Total number of receive credits granted to peers",
		}),
		DLCsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rfcomm",
			Subsystem: "dlc",
			Name:      "active",
			Help:      "Current number of connected channels",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rfcomm",
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of multiplexer sessions",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.FramesReceived,
			m.FramesSent,
			m.FramesDropped,
			m.CreditsGrantedTotal,
			m.DLCsActive,
			m.SessionsActive,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) FrameReceived(t frame.Type) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) FrameSent(t frame.Type) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) CreditsGranted(n int) {
	if m == nil {
		return
	}
	m.CreditsGrantedTotal.Add(float64(n))
}

func (m *Metrics) DLCConnected() {
	if m == nil {
		return
	}
	m.DLCsActive.Inc()
}

func (m *Metrics) DLCDisconnected() {
	if m == nil {
		return
	}
	m.DLCsActive.Dec()
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}
