// Tracks run-wide execution counters such as kernel launches per parity,
// completed divisions and probe buffer flushes.

package sim

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// RunMetrics aggregates execution statistics of a Simulation across all its
// runs. Each Simulation owns a private registry so that several simulations
// in one process never collide.
type RunMetrics struct {
	registry *prometheus.Registry

	launches      *prometheus.CounterVec
	launchSeconds prometheus.Histogram
	divisions     prometheus.Counter
	bufferFull    *prometheus.CounterVec
}

// NewRunMetrics creates zeroed metrics on a fresh registry.
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &RunMetrics{
		registry: reg,
		launches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clegans_kernel_launches_total",
			Help: "Kernel launches by timestep parity",
		}, []string{"parity"}),
		launchSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "clegans_kernel_launch_seconds",
			Help:    "Host-side duration of one kernel launch",
			Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1},
		}),
		divisions: f.NewCounter(prometheus.CounterOpts{
			Name: "clegans_divisions_total",
			Help: "Divisions run to completion",
		}),
		bufferFull: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clegans_probe_buffer_full_total",
			Help: "Probe buffer-full notifications by probe",
		}, []string{"probe"}),
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

func (m *RunMetrics) observeLaunch(parity string, d time.Duration) {
	m.launches.WithLabelValues(parity).Inc()
	m.launchSeconds.Observe(d.Seconds())
}

// BufferFull counts one buffer-full notification of the named probe.
func (m *RunMetrics) BufferFull(probe string) {
	m.bufferFull.WithLabelValues(probe).Inc()
}

// Print writes every collected metric to w, one line per series.
func (m *RunMetrics) Print(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering run metrics: %w", err)
	}
	fmt.Fprintln(w, "=== Run Metrics ===")
	for _, mf := range families {
		series := make([]string, 0, len(mf.GetMetric()))
		for _, metric := range mf.GetMetric() {
			series = append(series, formatSeries(mf.GetName(), mf.GetType(), metric))
		}
		sort.Strings(series)
		for _, s := range series {
			fmt.Fprintln(w, s)
		}
	}
	return nil
}

func formatSeries(name string, typ dto.MetricType, metric *dto.Metric) string {
	labels := make([]string, 0, len(metric.GetLabel()))
	for _, lp := range metric.GetLabel() {
		labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	if len(labels) > 0 {
		name += "{" + strings.Join(labels, ",") + "}"
	}
	switch typ {
	case dto.MetricType_HISTOGRAM:
		h := metric.GetHistogram()
		return fmt.Sprintf("%-56s count=%d sum=%.6fs", name, h.GetSampleCount(), h.GetSampleSum())
	case dto.MetricType_GAUGE:
		return fmt.Sprintf("%-56s %g", name, metric.GetGauge().GetValue())
	default:
		return fmt.Sprintf("%-56s %g", name, metric.GetCounter().GetValue())
	}
}
