package sim

import (
	"bytes"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetrics_CountsPerLabel(t *testing.T) {
	m := NewRunMetrics()
	m.observeLaunch("even", time.Microsecond)
	m.observeLaunch("even", time.Microsecond)
	m.observeLaunch("odd", time.Microsecond)
	m.BufferFull("LIF_probe")

	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.launches.WithLabelValues("even")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.launches.WithLabelValues("odd")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.bufferFull.WithLabelValues("LIF_probe")))
	n, err := promtestutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Equal(t, 5, n, "two parities, one histogram, divisions, one probe")
}

func TestRunMetrics_SeparateRegistries(t *testing.T) {
	// two simulations in one process never share counters
	a, b := NewRunMetrics(), NewRunMetrics()
	a.divisions.Inc()
	assert.Equal(t, 1.0, promtestutil.ToFloat64(a.divisions))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(b.divisions))
}

func TestRunMetrics_Print(t *testing.T) {
	m := NewRunMetrics()
	m.observeLaunch("even", 2*time.Millisecond)
	m.divisions.Inc()

	var buf bytes.Buffer
	require.NoError(t, m.Print(&buf))
	out := buf.String()

	assert.Contains(t, out, "=== Run Metrics ===")
	assert.Contains(t, out, `clegans_kernel_launches_total{parity="even"}`)
	assert.Contains(t, out, "clegans_kernel_launch_seconds")
	assert.Contains(t, out, "count=1")
	assert.Contains(t, out, "clegans_divisions_total")
}
