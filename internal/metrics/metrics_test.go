package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taengine/internal/checkpoint"
)

func newTestMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	return m, reg
}

func TestObserveBar(t *testing.T) {
	m, _ := newTestMetrics()
	m.ObserveBar(time.Millisecond, time.Unix(1699999990, 0), 5, 0, false)
	m.ObserveBar(time.Millisecond, time.Time{}, 3, 2, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BarsTotal))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.ResultsTotal.WithLabelValues("confirmed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResultsTotal.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndicatorErrors))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.BarLag))
}

func TestCheckpointObserver(t *testing.T) {
	m, _ := newTestMetrics()
	var obs checkpoint.Observer = m

	obs.CheckpointSaved("redis", time.Millisecond, nil)
	obs.CheckpointSaved("sqlite", time.Millisecond, errors.New("disk full"))
	obs.Restored(checkpoint.Source{Store: "sqlite", Series: 4})
	obs.Restored(checkpoint.Source{})

	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastCheckpoint.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckpointErrors.WithLabelValues("sqlite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restores.WithLabelValues("sqlite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restores.WithLabelValues("cold")))
}

func TestBreakerChanged(t *testing.T) {
	m, _ := newTestMetrics()
	m.BreakerChanged("redis-results", 1)
	m.BreakerChanged("redis-results", 2)
	m.BreakerChanged("redis-results", 0)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("redis-results")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTrips.WithLabelValues("redis-results")))
}

func TestHealthz(t *testing.T) {
	_, reg := newTestMetrics()
	h := NewHealthStatus(false)
	mux := NewMux(reg, h)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetRedisConnected(true)
	h.SetRestoredFrom("redis")
	h.ObserveBar(time.Now(), "1-0", 3)
	rec = get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1-0", body["cursor"])
	assert.Equal(t, "redis", body["restored_from"])

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "taengine_bars_total"))
}

func TestHealthSQLiteRequired(t *testing.T) {
	h := NewHealthStatus(true)
	h.SetRedisConnected(true)
	r, code := h.report()
	assert.Equal(t, "degraded", r.Status)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	h.SetRedisConnected(false)
	h.SetSQLiteOK(true)
	r, _ = h.report()
	assert.Equal(t, "degraded", r.Status)
}
