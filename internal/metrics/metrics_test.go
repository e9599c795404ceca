package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.WriteResult("ok")
		m.QueueDepth(3)
		m.EventSkipped("feedback")
		m.Command("publish", "ok")
		m.Vote("up")
		m.Resources(1)
		m.SSEClientsDelta(1)
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.WriteResult("ok")
	m.WriteResult("ok")
	m.WriteResult("rejected")
	m.EventSkipped("resources")
	m.Vote("retract")
	m.Resources(4)

	assert.InDelta(t, 2, testutil.ToFloat64(m.StoreWrites.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreWrites.WithLabelValues("rejected")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsSkipped.WithLabelValues("resources")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Votes.WithLabelValues("retract")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.CatalogResources), 0)
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/resources", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `openbay_api_request_duration_seconds_count{method="GET",status="418"} 1`)
	assert.InDelta(t, 0, testutil.ToFloat64(m.RequestsInFlight), 0)
}

func TestMiddleware_ImplicitStatusAndFlush(t *testing.T) {
	m := New(prometheus.NewRegistry())

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			return
		}
		_, _ = w.Write([]byte("data: hello\n\n"))
		assert.NoError(t, http.NewResponseController(w).Flush())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.True(t, rec.Flushed)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/empty", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration), "both requests share one series")
	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, out.Body.String(), `openbay_api_request_duration_seconds_count{method="GET",status="200"} 2`)
}
