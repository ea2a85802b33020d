package monitor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTick(OutcomeOK, time.Millisecond)
		m.PublishFailed()
		m.SetPeers(3)
	})
}

func TestObserveTick(t *testing.T) {
	m := NewMetrics()

	m.ObserveTick(OutcomeOK, time.Millisecond)
	m.ObserveTick(OutcomeOK, 2*time.Millisecond)
	m.ObserveTick(OutcomeParseError, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ticks.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ticks.WithLabelValues(OutcomeParseError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TickDuration))
}

func TestPublishFailedAndPeers(t *testing.T) {
	m := NewMetrics()

	m.PublishFailed()
	m.SetPeers(4)
	m.SetPeers(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PeersConnected))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveTick(OutcomeShmError, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `bridge_ticks_total{outcome="shm_error"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for range 2 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/healthz", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.True(t, m.Registry().Unregister(m.PeersConnected))
}
