package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Resolutions.WithLabelValues(OutcomeLoaded).Inc()
	m.Resolutions.WithLabelValues(OutcomeLoaded).Inc()
	m.CacheRequests.WithLabelValues("hit").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Resolutions.WithLabelValues(OutcomeLoaded)))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `crystalviewer_resolutions_total{outcome="loaded"} 2`)
	assert.Contains(t, body, `crystalviewer_cache_requests_total{result="hit"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Resolutions.WithLabelValues(OutcomeIdle).Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Resolutions.WithLabelValues(OutcomeIdle)))
}
