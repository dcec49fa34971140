package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(submissionsTotal.WithLabelValues("ok"))
	ObserveSubmission("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(submissionsTotal.WithLabelValues("ok")))

	before = testutil.ToFloat64(decisionsTotal.WithLabelValues("ascents", "approve", "PRECONDITION_FAILED"))
	ObserveDecision("ascents", "approve", "PRECONDITION_FAILED")
	assert.Equal(t, before+1, testutil.ToFloat64(decisionsTotal.WithLabelValues("ascents", "approve", "PRECONDITION_FAILED")))

	ObserveExport("http", "ok")
	assert.GreaterOrEqual(t, testutil.ToFloat64(exportsTotal.WithLabelValues("http", "ok")), 1.0)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveRequest(http.MethodGet, "/api/health", http.StatusOK, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "climbs_http_request_duration_seconds"), "histogram missing from exposition")
}
