package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetMetricValue reads a series of the default registry. Counters and gauges
// return their value, histograms their sample count. Series that were never
// touched read as 0. Labels not named in labelFilter are ignored; when several
// series match, their values are summed.
func GetMetricValue(t *testing.T, metricName string, labelFilter map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	var total float64
	for _, family := range families {
		if family.GetName() != metricName {
			continue
		}
		for _, m := range family.GetMetric() {
			if hasLabels(m, labelFilter) {
				total += sampleValue(m)
			}
		}
	}
	return total
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	for name, value := range want {
		found := false
		for _, pair := range m.GetLabel() {
			if pair.GetName() == name && pair.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AssertMetricDelta runs fn and asserts the series moved by exactly expectedDelta.
func AssertMetricDelta(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, metricName, labels)
	fn()
	after := GetMetricValue(t, metricName, labels)

	assert.Equal(t, expectedDelta, after-before, "metric %s%v delta mismatch", metricName, labels)
}

// AssertHistogramRecorded asserts the histogram holds at least one observation.
func AssertHistogramRecorded(t *testing.T, metricName string, labels map[string]string) {
	t.Helper()

	assert.Greater(t, GetMetricValue(t, metricName, labels), 0.0,
		"histogram %s%v should have recorded samples", metricName, labels)
}

// RequireMetricEventually waits until cond holds for the series value. Used for
// metrics filled in by background samplers such as the pool monitors.
func RequireMetricEventually(t *testing.T, metricName string, labels map[string]string, cond func(v float64) bool, msg string) {
	t.Helper()

	require.Eventually(t, func() bool {
		return cond(GetMetricValue(t, metricName, labels))
	}, 3*time.Second, 20*time.Millisecond, "%s (metric %s%v)", msg, metricName, labels)
}
