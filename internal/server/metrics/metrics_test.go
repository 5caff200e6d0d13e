package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveRequest("GET", "/api/folders", 200, 15*time.Millisecond)
	m.ObserveRequest("GET", "/api/folders", 200, 5*time.Millisecond)
	m.ObserveRequest("POST", "/api/transcribe", 409, time.Millisecond)
	m.ObserveTranscription("completed")
	m.ObserveTranscription("conflict")
	m.ObserveTranscription("completed")
	m.ObserveReaped(3)
	m.ObserveReaped(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/folders", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/transcribe", "409")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transcriptions.WithLabelValues("completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reaped))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveTranscription("failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `scribe_transcriptions_total{outcome="failed"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", "/", 200, time.Second)
		m.ObserveTranscription("completed")
		m.ObserveReaped(1)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
