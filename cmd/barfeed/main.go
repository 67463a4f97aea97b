// cmd/barfeed publishes simulated bars for running the indicator engine
// without a market data feed.
//
// Every tick the forming bar of each series is published on LIVE_BAR_CHANNEL
// (when set); every bar period the completed bar is appended to BAR_STREAM
// and, when SQLITE_PATH is set, archived for backtests.
//
// Usage:
//
//	go run ./cmd/barfeed --series=NSE:99926000,NSE:2885 --bar=1m --tick=1s
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"taengine/config"
	"taengine/internal/logger"
	"taengine/internal/model"
	"taengine/internal/replay"
	redisstore "taengine/internal/store/redis"
	sqlitestore "taengine/internal/store/sqlite"
)

func main() {
	seriesFlag := flag.String("series", "NSE:99926000", "Comma separated series to simulate")
	price := flag.Float64("price", 25660, "Starting price")
	barEvery := flag.Duration("bar", time.Minute, "Bar period")
	tickEvery := flag.Duration("tick", time.Second, "Tick interval")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	maxLen := flag.Int64("maxlen", 100000, "Approximate bar stream cap")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.Init("barfeed", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Error("redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var archive *sqlitestore.Store
	if cfg.SQLitePath != "" {
		if archive, err = sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath}); err != nil {
			log.Error("sqlite", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
	}

	var walkers []*replay.Walker
	for i, s := range strings.Split(*seriesFlag, ",") {
		if s = strings.TrimSpace(s); s != "" {
			walkers = append(walkers, replay.NewWalker(s, *price, *seed+int64(i)))
		}
	}
	if len(walkers) == 0 {
		log.Error("no series configured")
		os.Exit(1)
	}

	f := &feed{
		rdb:      rdb,
		producer: redisstore.NewBarProducer(rdb, cfg.BarStream, *maxLen),
		live:     cfg.LiveChannel,
		archive:  archive,
		walkers:  walkers,
		log:      log,
	}
	log.Info("publishing bars", "series", len(walkers), "stream", cfg.BarStream,
		"live_channel", cfg.LiveChannel, "bar", *barEvery, "tick", *tickEvery)
	f.run(ctx, *barEvery, *tickEvery)
}

type feed struct {
	rdb      *goredis.Client
	producer *redisstore.BarProducer
	live     string
	archive  *sqlitestore.Store
	walkers  []*replay.Walker
	log      *slog.Logger
}

func (f *feed) run(ctx context.Context, barEvery, tickEvery time.Duration) {
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	barStart := time.Now().UTC().Truncate(barEvery)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			now = now.UTC()
			if next := barStart.Add(barEvery); !now.Before(next) {
				f.closeBars(ctx)
				barStart = now.Truncate(barEvery)
			}
			f.tick(ctx, barStart)
		}
	}
}

func (f *feed) tick(ctx context.Context, barStart time.Time) {
	for _, w := range f.walkers {
		forming, err := w.Tick(barStart)
		if err != nil {
			f.log.Warn("tick", "series", w.Series, "error", err)
			continue
		}
		if f.live == "" {
			continue
		}
		if err := redisstore.PublishLiveBar(ctx, f.rdb, f.live, forming); err != nil {
			f.log.Warn("publish live bar", "series", w.Series, "error", err)
		}
	}
}

func (f *feed) closeBars(ctx context.Context) {
	var done []model.Bar
	for _, w := range f.walkers {
		b, ok, err := w.Close()
		if err != nil {
			f.log.Warn("close bar", "series", w.Series, "error", err)
			continue
		}
		if ok {
			done = append(done, b)
		}
	}
	if len(done) == 0 {
		return
	}

	ids, err := f.producer.PublishBars(ctx, done)
	if err != nil {
		f.log.Error("publish bars", "error", err)
	} else {
		f.log.Info("bars published", "count", len(ids), "last_id", ids[len(ids)-1])
	}
	if f.archive != nil {
		if err := f.archive.InsertBars(ctx, done); err != nil {
			f.log.Error("archive bars", "error", err)
		}
	}
}
