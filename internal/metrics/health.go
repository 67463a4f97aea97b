package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus tracks dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	redisConnected  bool
	redisLatencyMs  float64
	sqliteEnabled   bool
	sqliteOK        bool
	sqliteLatencyMs float64
	lastBarTime     time.Time
	cursor          string
	series          int
	restoredFrom    string
	lastCheckAt     time.Time
	startedAt       time.Time
}

// NewHealthStatus returns a health status; sqliteEnabled says whether the
// SQLite store counts towards overall health.
func NewHealthStatus(sqliteEnabled bool) *HealthStatus {
	return &HealthStatus{sqliteEnabled: sqliteEnabled, startedAt: time.Now()}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.redisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.sqliteOK = v
	h.mu.Unlock()
}

// SetRestoredFrom records the snapshot store used at startup, "cold" if none.
func (h *HealthStatus) SetRestoredFrom(store string) {
	h.mu.Lock()
	h.restoredFrom = store
	h.mu.Unlock()
}

// ObserveBar records the latest bar position.
func (h *HealthStatus) ObserveBar(ts time.Time, cursor string, series int) {
	h.mu.Lock()
	h.lastBarTime = ts
	h.cursor = cursor
	h.series = series
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.redisConnected = err == nil
	h.redisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.sqliteOK = err == nil
	h.sqliteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Either handle may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

type healthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastBarTime     string  `json:"last_bar_time,omitempty"`
	BarAge          string  `json:"bar_age,omitempty"`
	Cursor          string  `json:"cursor,omitempty"`
	Series          int     `json:"series"`
	RestoredFrom    string  `json:"restored_from"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

func (h *HealthStatus) report() (healthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sqliteOK := h.sqliteOK || !h.sqliteEnabled
	status, code := "healthy", http.StatusOK
	if !h.redisConnected || !sqliteOK {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if !h.redisConnected && !(h.sqliteEnabled && h.sqliteOK) {
		status = "unhealthy"
	}

	r := healthReport{
		Status:          status,
		Uptime:          time.Since(h.startedAt).Round(time.Second).String(),
		RedisConnected:  h.redisConnected,
		RedisLatencyMs:  h.redisLatencyMs,
		SQLiteOK:        h.sqliteOK,
		SQLiteLatencyMs: h.sqliteLatencyMs,
		Cursor:          h.cursor,
		Series:          h.series,
		RestoredFrom:    h.restoredFrom,
	}
	if !h.lastBarTime.IsZero() {
		r.LastBarTime = h.lastBarTime.Format(time.RFC3339)
		r.BarAge = time.Since(h.lastBarTime).Round(time.Millisecond).String()
	}
	if !h.lastCheckAt.IsZero() {
		r.LastCheckAt = h.lastCheckAt.Format(time.RFC3339)
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r, code := h.report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(r)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates an HTTP server for handler, usually built by NewMux.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second},
	}
}

// NewMux routes /metrics and /healthz.
func NewMux(gatherer prometheus.Gatherer, health *HealthStatus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	return mux
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("server listening", "component", "metrics", "addr", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "component", "metrics", "error", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
