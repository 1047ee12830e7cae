package txsigner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors of the signing backends.
// A nil *Metrics records nothing.
type Metrics struct {
	Operations            *prometheus.CounterVec
	DeviceCommandDuration *prometheus.HistogramVec
	DeviceSessionsOpened  prometheus.Counter
}

// NewMetrics registers the collectors with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the collectors with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenkit_signer_operations_total",
				Help: "Signer operations by backend, operation and outcome",
			},
			[]string{"kind", "op", "outcome"},
		),
		DeviceCommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokenkit_device_command_duration_seconds",
				Help:    "Time spent waiting for the hardware device, including user confirmation",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"command"},
		),
		DeviceSessionsOpened: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tokenkit_device_sessions_opened_total",
				Help: "Hardware device sessions opened",
			},
		),
	}
}

func (m *Metrics) observeOperation(kind Kind, op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(string(kind), op, outcome(err)).Inc()
}

func (m *Metrics) observeDeviceCommand(command string, took time.Duration) {
	if m == nil {
		return
	}
	m.DeviceCommandDuration.WithLabelValues(command).Observe(took.Seconds())
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.DeviceSessionsOpened.Inc()
}
