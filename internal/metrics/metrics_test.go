package metrics

import (
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

	m.JobSubmitted()
	m.JobSubmitted()
	m.JobRejected(ReasonNotAnImage)
	m.JobStarted()
	m.JobStarted()
	m.JobFinished("completed", 120*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.submitted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejected.WithLabelValues(ReasonNotAnImage)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.inFlight))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.finished.WithLabelValues("completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.processingDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobSubmitted()
		m.JobRejected(ReasonInternal)
		m.JobStarted()
		m.JobFinished("failed", time.Second)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.JobSubmitted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "faceswap_jobs_submitted_total 1")
}
