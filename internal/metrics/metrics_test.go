package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultipleInstancesDoNotCollide(t *testing.T) {
	// Each Metrics owns a private registry, so constructing many (as
	// kernel.New does once per test across the suite) must never panic
	// with a duplicate collector registration.
	for i := 0; i < 5; i++ {
		m := New()
		require.NotNil(t, m.Registry)
		m.Close()
	}
}

func TestRecordDispatchUpdatesCounters(t *testing.T) {
	m := New()
	defer m.Close()

	m.RecordDispatch("echo", "ok", 5*time.Millisecond)
	m.RecordQueueAccept("echo", 3)
	m.RecordQueueDrop("echo", "drop-newest")
	m.RecordQueueReject("echo")
	m.RecordPermissionDenial("echo", "route")
	m.RecordSchedulerSlice("echo", 2)
	m.SetBreakerState("echo", 1)
	m.SetResponsesPending(4)
	m.IncResponseTimeouts()

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	counters := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				counters[f.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), counters["mycelia_dispatch_total"])
	assert.Equal(t, float64(1), counters["mycelia_queue_enqueued_total"])
	assert.Equal(t, float64(2), counters["mycelia_scheduler_processed_total"])
}

func TestHandlerServesExpositionFormat(t *testing.T) {
	m := New()
	defer m.Close()
	assert.NotNil(t, m.Handler())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# TYPE mycelia_uptime_seconds gauge")
}

func TestCloseIsIdempotent(t *testing.T) {
	m := New()
	m.Close()
	assert.NotPanics(t, m.Close)
}
