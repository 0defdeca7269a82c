package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *PrometheusMetrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics()

	m.Counter(MetricAppointmentsBooked, 1, T("kind", "repair"))
	m.Counter(MetricAppointmentsBooked, 1, T("kind", "repair"))
	m.Counter(MetricAppointmentsBooked, 1)
	m.Gauge(MetricBreakerState, 2, T("breaker", "weather"))
	m.Timing(MetricProviderDuration, 150*time.Millisecond, T("provider", "routing"))
	m.Histogram(MetricCandidatesGenerated, 12)

	body := scrape(t, m)

	assert.Contains(t, body, `crewplan_scheduling_booked_total{kind="repair"} 2`)
	assert.Contains(t, body, `crewplan_provider_breaker_state{breaker="weather"} 2`)
	assert.Contains(t, body, `crewplan_provider_duration_seconds_count{provider="routing"} 1`)
	assert.Contains(t, body, `crewplan_scheduling_candidates_count 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestPrometheusMetrics_IgnoresUnknownLabels(t *testing.T) {
	m := NewPrometheusMetrics()

	m.Counter(MetricCancellations, 1, T("reason", "customer"))
	assert.NotPanics(t, func() {
		m.Counter(MetricCancellations, 1, T("reason", "customer"), T("region", "west"))
	})

	assert.Contains(t, scrape(t, m), `crewplan_scheduling_cancellations_total{reason="customer"} 2`)
}
