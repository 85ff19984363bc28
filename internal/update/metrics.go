package update

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/shell-updater/internal/shell"
)

const metricsNamespace = "shellupdater"

// Metrics exposes update and device counters to Prometheus.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	bytes         *prometheus.CounterVec
	devicePresent prometheus.Gauge
	inFlight      prometheus.Gauge
}

// NewMetrics creates and registers the update metrics on reg. When stats
// is non-nil the connector counters are exported as well.
func NewMetrics(reg prometheus.Registerer, stats func() shell.ConnectorStats) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "update",
				Name:      "requests_total",
				Help:      "Update requests by target, outcome and failure kind.",
			},
			[]string{"target", "outcome", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "update",
				Name:      "duration_seconds",
				Help:      "Update request duration in seconds.",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"target", "outcome"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "update",
				Name:      "transferred_bytes_total",
				Help:      "Payload bytes accepted by the device.",
			},
			[]string{"target"},
		),
		devicePresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "device",
			Name:      "present",
			Help:      "1 while a device is attached.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "update",
			Name:      "in_flight",
			Help:      "1 while an update request is running.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.bytes, m.devicePresent, m.inFlight)

	if stats != nil {
		reg.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "device",
				Name:      "sessions_total",
				Help:      "Device sessions opened.",
			}, func() float64 { return float64(stats().Sessions) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "device",
				Name:      "open_failures_total",
				Help:      "Failed device open attempts that were retried.",
			}, func() float64 { return float64(stats().OpenFailures) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "device",
				Name:      "open_cancelled_total",
				Help:      "Device opens declined by the user.",
			}, func() float64 { return float64(stats().OpenCancelled) }),
		)
	}
	return m
}

// ObserveResult counts a finished request.
func (m *Metrics) ObserveResult(res Result) {
	kind := ""
	if res.Outcome == OutcomeFailed {
		kind = res.Kind.String()
	}
	target := string(res.Target)
	outcome := res.Outcome.String()

	m.requests.WithLabelValues(target, outcome, kind).Inc()
	m.duration.WithLabelValues(target, outcome).Observe(res.Duration().Seconds())
	m.bytes.WithLabelValues(target).Add(float64(res.Transferred))
}

// SetDevicePresent records hotplug state.
func (m *Metrics) SetDevicePresent(present bool) {
	m.devicePresent.Set(boolGauge(present))
}

// SetInFlight records whether an update is running.
func (m *Metrics) SetInFlight(running bool) {
	m.inFlight.Set(boolGauge(running))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
