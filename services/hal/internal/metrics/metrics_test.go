package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveReading("baro0", "pressure", 1013.25)
	m.ObserveResult("baro0", 2, "")
	m.ObserveResult("baro0", 0, "timeout")
	m.SetDevices(1)

	assert.Equal(t, 1013.25, testutil.ToFloat64(m.reading.WithLabelValues("baro0", "pressure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.measurements.WithLabelValues("baro0", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.measurements.WithLabelValues("baro0", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("baro0", "timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("baro0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.devices))

	m.Forget("baro0")
	assert.Equal(t, 0, testutil.CollectAndCount(m.reading))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveReading("d", "k", 1)
	m.ObserveResult("d", 1, "x")
	m.SetDevices(3)
	m.Forget("d")
}
