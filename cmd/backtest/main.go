// cmd/backtest replays historical bars from a CSV file or the SQLite bar
// archive through the indicator engine, offline.
//
// Usage:
//
//	go run ./cmd/backtest --csv=data/nifty.csv --series=NSE:99926000
//	go run ./cmd/backtest --db=data/taengine.db --from=2024-03-01T00:00:00Z --out=data/results.db
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/schollz/progressbar/v3"

	"taengine/config"
	"taengine/internal/indicator"
	"taengine/internal/logger"
	"taengine/internal/model"
	"taengine/internal/numeric"
	"taengine/internal/replay"
	sqlitestore "taengine/internal/store/sqlite"
)

func main() {
	csvPath := flag.String("csv", "", "CSV file of bars (series,ts,open,high,low,close,volume)")
	dbPath := flag.String("db", "", "SQLite database holding archived bars")
	series := flag.String("series", "", "Series to replay; default series for CSV files without one")
	from := flag.String("from", "", "Replay bars after this time (RFC 3339 or unix ms)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	indicators := flag.String("indicators", config.DefaultIndicators, "Indicator specs: TYPE[:P...],...")
	scale := flag.Int("scale", int(numeric.DefaultScale), "Decimal places kept after rounding")
	outPath := flag.String("out", "", "SQLite database to store confirmed results in")
	snapPath := flag.String("snapshot", "", "Write the final engine snapshot as JSON to this file")
	every := flag.Int("print", 0, "Print every N-th bar's results (0=none)")
	flag.Parse()

	log := logger.Init("backtest", slog.LevelWarn)
	fail := func(msg string, err error) {
		log.Error(msg, "error", err)
		os.Exit(1)
	}

	if err := numeric.Configure(numeric.Options{Scale: int32(*scale)}); err != nil {
		fail("numeric scale", err)
	}
	specs, err := config.ParseIndicatorSpecs(*indicators)
	if err != nil {
		fail("indicators", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars, err := loadBars(ctx, *csvPath, *dbPath, *series, *from)
	if err != nil {
		fail("load bars", err)
	}

	engine, err := indicator.NewEngine(specs)
	if err != nil {
		fail("engine init", err)
	}

	var sink *sqlitestore.Store
	if *outPath != "" {
		if sink, err = sqlitestore.Open(sqlitestore.Config{DBPath: *outPath}); err != nil {
			fail("open results db", err)
		}
		defer sink.Close()
	}

	replayer := replay.New(bars, *speed)
	progress := progressbar.Default(int64(replayer.Len()), "replaying")
	replayer.OnBar = func(model.Bar) { progress.Add(1) }

	barCh := make(chan model.Bar, 1024)
	go func() {
		if err := replayer.ConsumeBars(ctx, barCh); err != nil {
			log.Warn("replay stopped", "error", err)
		}
		close(barCh)
	}()

	sum := newSummary()
	processed := 0
	for bar := range barCh {
		results, err := engine.Process(bar)
		processed++
		if err != nil {
			sum.failures++
			log.Warn("indicator update failed", "series", bar.Series, "ts", bar.TS, "error", err)
		}
		for _, r := range results {
			sum.add(r)
		}
		if *every > 0 && processed%*every == 0 {
			printResults(bar, results)
		}
		if sink != nil && len(results) > 0 {
			if err := sink.WriteResults(ctx, results); err != nil {
				fail("write results", err)
			}
		}
	}
	progress.Finish()
	fmt.Println()

	if *snapPath != "" {
		if err := writeSnapshot(engine, *snapPath); err != nil {
			fail("write snapshot", err)
		}
	}
	sum.render(os.Stdout, processed, len(engine.Series()))
}

func loadBars(ctx context.Context, csvPath, dbPath, series, from string) ([]model.Bar, error) {
	var after time.Time
	if from != "" {
		t, err := model.ParseBarTime(from)
		if err != nil {
			return nil, err
		}
		after = t
	}

	switch {
	case csvPath != "":
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		all, err := replay.ReadCSV(f, series)
		if err != nil {
			return nil, err
		}
		bars := all[:0]
		for _, b := range all {
			if b.TS.After(after) && (series == "" || b.Series == series) {
				bars = append(bars, b)
			}
		}
		return bars, nil
	case dbPath != "":
		db, err := sqlitestore.Open(sqlitestore.Config{DBPath: dbPath})
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.ReadBars(ctx, series, after)
	default:
		return nil, fmt.Errorf("one of --csv or --db is required")
	}
}

func writeSnapshot(engine *indicator.Engine, path string) error {
	snap, err := indicator.SnapshotEngine(engine, "backtest")
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printResults(bar model.Bar, results []model.IndicatorResult) {
	for _, r := range results {
		lines := make([]string, 0, len(r.Values))
		for k := range r.Values {
			lines = append(lines, k)
		}
		sort.Strings(lines)
		fmt.Printf("  [%s] %s %s", bar.TS.Format(time.RFC3339), bar.Series, r.Name)
		for _, k := range lines {
			fmt.Printf(" %s=%s", k, r.Values[k].StringFixed(4))
		}
		fmt.Printf(" (%s)\n", r.Phase)
	}
}

// summary tracks the last value and phase of every indicator per series.
type summary struct {
	last     map[string]model.IndicatorResult
	failures int
}

func newSummary() *summary {
	return &summary{last: make(map[string]model.IndicatorResult)}
}

func (s *summary) add(r model.IndicatorResult) {
	s.last[r.Series+"\x00"+r.Name] = r
}

func (s *summary) render(w *os.File, bars, series int) {
	keys := make([]string, 0, len(s.last))
	for k := range s.last {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BACKTEST COMPLETE")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Series", "Indicator", "Phase", "Last value"})
	for _, k := range keys {
		r := s.last[k]
		lines := make([]string, 0, len(r.Values))
		for name, v := range r.Values {
			lines = append(lines, name+"="+v.StringFixed(4))
		}
		sort.Strings(lines)
		t.AppendRow(table.Row{r.Series, r.Name, r.Phase, fmt.Sprint(lines)})
	}
	t.AppendFooter(table.Row{"bars", bars, "series", series})
	t.AppendFooter(table.Row{"failed bars", s.failures, "", ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft},
	})
	t.Render()
}
