// Package metrics exports HAL sampling state to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "baro"

// Metrics is the set of collectors the HAL service updates.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reading      *prometheus.GaugeVec
	measurements *prometheus.CounterVec
	errors       *prometheus.CounterVec
	retries      *prometheus.CounterVec
	devices      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Last reading per device and kind (hPa, m or °C).",
		}, []string{"device", "kind"}),
		measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_total",
			Help:      "Completed measurement cycles by outcome.",
		}, []string{"device", "result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurement_errors_total",
			Help:      "Failed measurement cycles by error code.",
		}, []string{"device", "code"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_retries_total",
			Help:      "Collect attempts that found no data ready.",
		}, []string{"device"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices currently configured.",
		}),
	}
	reg.MustRegister(m.reading, m.measurements, m.errors, m.retries, m.devices)
	return m
}

func (m *Metrics) ObserveReading(device, kind string, v float64) {
	if m == nil {
		return
	}
	m.reading.WithLabelValues(device, kind).Set(v)
}

func (m *Metrics) ObserveResult(device string, retries int, code string) {
	if m == nil {
		return
	}
	if retries > 0 {
		m.retries.WithLabelValues(device).Add(float64(retries))
	}
	if code == "" {
		m.measurements.WithLabelValues(device, "ok").Inc()
		return
	}
	m.measurements.WithLabelValues(device, "error").Inc()
	m.errors.WithLabelValues(device, code).Inc()
}

func (m *Metrics) SetDevices(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}

// Forget drops per-device series for a removed device.
func (m *Metrics) Forget(device string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"device": device}
	m.reading.DeletePartialMatch(labels)
	m.measurements.DeletePartialMatch(labels)
	m.errors.DeletePartialMatch(labels)
	m.retries.DeletePartialMatch(labels)
}
