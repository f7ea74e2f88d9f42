package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.RecordTransition("accepted")
	c.RecordTransition("rejected")
	c.RecordTransition("rejected")
	c.RecordConflict()
	c.RecordCascade(2, 1)
	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()

	body := scrape(t, c)
	assert.Contains(t, body, `shramsaathi_application_transitions_total{status="rejected"} 2`)
	assert.Contains(t, body, "shramsaathi_acceptance_conflicts_total 1")
	assert.Contains(t, body, `shramsaathi_cascade_rejections_total{result="failed"} 1`)
	assert.Contains(t, body, "shramsaathi_realtime_connections 1")
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.ObserveHTTP(http.MethodGet, "/api/jobs", http.StatusOK, 15*time.Millisecond)

	assert.Contains(t, scrape(t, c), `shramsaathi_http_requests_total{method="GET",route="/api/jobs",status="200"} 1`)
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTransition("accepted")
		c.ObserveHTTP(http.MethodGet, "/", 200, time.Second)
		c.ConnectionOpened()
	})
}
