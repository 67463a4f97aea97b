// Package indengine runs the indicator engine as a service: bars in from
// Redis, results out to Redis and SQLite, state checkpointed to both.
package indengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"taengine/config"
	"taengine/internal/checkpoint"
	"taengine/internal/indicator"
	"taengine/internal/logger"
	"taengine/internal/metrics"
	"taengine/internal/model"
	"taengine/internal/numeric"
	redisstore "taengine/internal/store/redis"
	sqlitestore "taengine/internal/store/sqlite"
)

// Sink is a named result destination.
type Sink struct {
	Name   string
	Writer model.ResultWriter
}

// ConfigSource delivers indicator set updates as comma separated specs.
type ConfigSource interface {
	Listen(ctx context.Context, fn func(payload string)) error
}

// Deps are the service's adapters. Only NewBarSource is required.
type Deps struct {
	// NewBarSource opens the confirmed bar source positioned after the
	// given cursor ("0" reads from the beginning).
	NewBarSource func(after string) model.BarSource
	Live         model.BarSource // forming bars for previews
	Configs      ConfigSource
	Sinks        []Sink
	Stores       []checkpoint.Store // restore priority order
	Registry     *prometheus.Registry
	Health       *metrics.HealthStatus
	Closers      []func() error
}

// Service is the top-level orchestrator for the indicator engine.
// The engine is single-goroutine; mu serialises the bar loop with
// checkpoints and reloads.
type Service struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger

	prom         *metrics.Metrics
	restorer     *checkpoint.Restorer
	checkpointer *checkpoint.Checkpointer

	mu     sync.Mutex
	engine *indicator.Engine
	cursor string
}

// New connects to Redis and SQLite and wires the service.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := numeric.Configure(numeric.Options{Scale: cfg.NumericScale}); err != nil {
		return nil, err
	}

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	deps := Deps{
		Registry: reg,
		Health:   metrics.NewHealthStatus(cfg.SQLitePath != ""),
		Closers:  []func() error{rdb.Close},
	}
	deps.Health.SetRedisConnected(true)

	resultBreaker := redisstore.NewBreaker("redis-results", 5, 10*time.Second)
	snapshotBreaker := redisstore.NewBreaker("redis-snapshot", 3, 30*time.Second)
	results := redisstore.NewResultWriter(rdb, resultBreaker, redisstore.ResultOptions{
		Prefix: cfg.ResultPrefix,
		MaxLen: cfg.ResultMaxLen,
	})

	var svc *Service
	deps.NewBarSource = func(after string) model.BarSource {
		c := redisstore.NewBarConsumer(rdb, cfg.BarStream, after)
		c.OnBadEntry = func(string, error) { svc.prom.BadEntriesTotal.Inc() }
		return c
	}
	if cfg.LiveChannel != "" {
		deps.Live = redisstore.NewLiveBarSubscriber(rdb, cfg.LiveChannel)
	}
	if cfg.ConfigChannel != "" {
		deps.Configs = redisstore.NewConfigSubscriber(rdb, cfg.ConfigChannel)
	}
	deps.Sinks = append(deps.Sinks, Sink{Name: "redis", Writer: results})
	deps.Stores = append(deps.Stores, checkpoint.NewJSONStore(
		redisstore.NewSnapshotStore(rdb, cfg.SnapshotKey, cfg.SnapshotTTL, snapshotBreaker)))

	var sqlDB *sqlitestore.Store
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
		sqlDB, err = sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath, KeepSnapshots: cfg.SnapshotKeep})
		if err != nil {
			rdb.Close()
			return nil, err
		}
		deps.Health.SetSQLiteOK(true)
		deps.Sinks = append(deps.Sinks, Sink{Name: "sqlite", Writer: sqlDB})
		deps.Stores = append(deps.Stores, checkpoint.NewJSONStore(sqlDB))
	}

	svc, err = NewWithDeps(cfg, deps)
	if err != nil {
		if sqlDB != nil {
			sqlDB.Close()
		}
		rdb.Close()
		return nil, err
	}

	for _, b := range []*redisstore.Breaker{resultBreaker, snapshotBreaker} {
		b.OnStateChange(func(name string, from, to redisstore.BreakerState) {
			svc.prom.BreakerChanged(name, int(to))
			svc.log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		})
	}
	var db *sql.DB
	if sqlDB != nil {
		db = sqlDB.DB()
	}
	deps.Health.StartLivenessChecker(ctx, rdb, db, 15*time.Second)
	return svc, nil
}

// NewWithDeps wires the service around existing adapters.
func NewWithDeps(cfg *config.Config, deps Deps) (*Service, error) {
	if deps.NewBarSource == nil {
		return nil, errors.New("indengine: no bar source")
	}
	if err := indicator.ValidateSpecs(cfg.Indicators); err != nil {
		return nil, err
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.Health == nil {
		deps.Health = metrics.NewHealthStatus(false)
	}
	prom := metrics.New(deps.Registry)
	return &Service{
		cfg:          cfg,
		deps:         deps,
		log:          slog.Default().With("component", "indengine"),
		prom:         prom,
		restorer:     checkpoint.NewRestorer(cfg.Indicators, prom, deps.Stores...),
		checkpointer: checkpoint.NewCheckpointer(prom, deps.Stores...),
	}, nil
}

// Handler returns the HTTP handler serving /metrics, /healthz, /reload,
// /series and /reset.
func (svc *Service) Handler() http.Handler {
	mux := metrics.NewMux(svc.deps.Registry, svc.deps.Health)
	mux.HandleFunc("/reload", svc.handleReload)
	mux.HandleFunc("/series", svc.handleSeries)
	mux.HandleFunc("/reset", svc.handleReset)
	return mux
}

// Run restores the engine, then processes bars until ctx is cancelled or
// the bar source fails. A final checkpoint is written on the way out.
func (svc *Service) Run(ctx context.Context) error {
	engine, src, err := svc.restorer.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	svc.mu.Lock()
	svc.engine, svc.cursor = engine, src.Cursor
	svc.mu.Unlock()

	restored := src.Store
	if src.Cold() {
		restored = "cold"
	}
	svc.deps.Health.SetRestoredFrom(restored)

	after := svc.startCursor(src)
	svc.log.Info("starting indicator engine",
		"indicators", len(svc.cfg.Indicators), "restored_from", restored, "after", after,
		"snapshot_interval", svc.cfg.SnapshotInterval)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bars := make(chan model.Bar, 5000)
	live := make(chan model.Bar, 1000)
	failed := make(chan error, 1)
	var wg sync.WaitGroup

	source := svc.deps.NewBarSource(after)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.ConsumeBars(runCtx, bars); err != nil && !errors.Is(err, context.Canceled) {
			failed <- fmt.Errorf("bar source: %w", err)
		}
	}()

	if svc.deps.Live != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.deps.Live.ConsumeBars(runCtx, live); err != nil && !errors.Is(err, context.Canceled) {
				svc.log.Warn("live bar subscription ended", "error", err)
			}
		}()
	}

	if svc.deps.Configs != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.deps.Configs.Listen(runCtx, func(payload string) {
				if _, _, err := svc.Reload(payload); err != nil {
					svc.log.Warn("indicator reload rejected", "payload", payload, "error", err)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				svc.log.Warn("config subscription ended", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.checkpointer.Loop(runCtx, svc.cfg.SnapshotInterval, svc.capture)
	}()

	runErr := svc.processLoop(runCtx, bars, live, failed)
	cancel()
	wg.Wait()

	svc.shutdown(source)
	return runErr
}

func (svc *Service) startCursor(src checkpoint.Source) string {
	switch {
	case svc.cfg.BarStartID != "":
		return svc.cfg.BarStartID
	case src.Cursor != "":
		return src.Cursor
	default:
		return "0"
	}
}

func (svc *Service) processLoop(ctx context.Context, bars, live <-chan model.Bar, failed <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return err
		case bar := <-bars:
			svc.handleBar(ctx, bar, false)
		case bar := <-live:
			svc.handleBar(ctx, bar, true)
		}
	}
}

func (svc *Service) handleBar(ctx context.Context, bar model.Bar, live bool) {
	ctx = logger.WithTraceID(ctx, logger.BarTraceID(bar.Series, bar.TS))

	start := time.Now()
	svc.mu.Lock()
	var (
		results []model.IndicatorResult
		err     error
	)
	if live {
		results, err = svc.engine.ProcessPeek(bar)
	} else {
		results, err = svc.engine.Process(bar)
		if bar.Cursor != "" {
			svc.cursor = bar.Cursor
		}
	}
	nSeries := len(svc.engine.Series())
	cursor := svc.cursor
	svc.mu.Unlock()
	took := time.Since(start)

	if err != nil {
		svc.log.Warn("indicator update failed", append(logger.LogWithTrace(ctx), "error", err)...)
	}
	if live {
		svc.prom.ObserveBar(took, time.Time{}, 0, len(results), err != nil)
	} else {
		svc.prom.ObserveBar(took, bar.TS, len(results), 0, err != nil)
		svc.prom.SeriesTracked.Set(float64(nSeries))
		svc.deps.Health.ObserveBar(bar.TS, cursor, nSeries)
	}

	if len(results) > 0 {
		svc.writeResults(ctx, results)
	}
}

func (svc *Service) writeResults(ctx context.Context, results []model.IndicatorResult) {
	for _, s := range svc.deps.Sinks {
		start := time.Now()
		err := s.Writer.WriteResults(ctx, results)
		svc.prom.ObserveSink(s.Name, time.Since(start), err)
		if err != nil {
			svc.log.Error("result write failed", append(logger.LogWithTrace(ctx), "sink", s.Name, "error", err)...)
		}
		if rw, ok := s.Writer.(*redisstore.ResultWriter); ok {
			svc.prom.BufferedTotal.Set(float64(rw.Buffered()))
		}
	}
}

// capture snapshots the engine for the checkpoint loop.
func (svc *Service) capture() (*indicator.EngineSnapshot, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return indicator.SnapshotEngine(svc.engine, svc.cursor)
}

// Reload replaces the indicator set from comma separated specs, keeping
// the state of indicators whose key is unchanged.
func (svc *Service) Reload(specs string) (preserved, created int, err error) {
	parsed, err := config.ParseIndicatorSpecs(specs)
	if err != nil {
		return 0, 0, err
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.engine == nil {
		return 0, 0, errors.New("indengine: not running")
	}
	return svc.engine.ReloadSpecs(parsed)
}

func (svc *Service) shutdown(source model.BarSource) {
	svc.log.Info("shutting down, saving final snapshot")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if snap, err := svc.capture(); err != nil {
		svc.log.Error("final snapshot failed", "error", err)
	} else if err := svc.checkpointer.SaveSnapshot(ctx, snap); err != nil {
		svc.log.Error("final checkpoint failed", "error", err)
	}

	if err := source.Close(); err != nil {
		svc.log.Warn("close bar source", "error", err)
	}
	for _, s := range svc.deps.Sinks {
		if err := s.Writer.Close(); err != nil {
			svc.log.Warn("close sink", "sink", s.Name, "error", err)
		}
	}
	for _, c := range svc.deps.Closers {
		c()
	}
	svc.log.Info("shutdown complete")
}

var _ model.BarSource = (*redisstore.BarConsumer)(nil)
var _ model.BarSource = (*redisstore.LiveBarSubscriber)(nil)
var _ model.ResultWriter = (*redisstore.ResultWriter)(nil)
var _ model.ResultWriter = (*sqlitestore.Store)(nil)
var _ model.SnapshotStore = (*sqlitestore.Store)(nil)
var _ model.SnapshotStore = (*redisstore.SnapshotStore)(nil)
