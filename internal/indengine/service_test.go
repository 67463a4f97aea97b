package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taengine/config"
	"taengine/internal/checkpoint"
	"taengine/internal/indicator"
	"taengine/internal/model"
	"taengine/internal/numeric"
)

// sliceSource delivers its bars, then waits for cancellation.
type sliceSource struct {
	bars   []model.Bar
	err    error
	gate   chan struct{} // if set, bars are sent once it is closed
	closed bool
}

func (s *sliceSource) ConsumeBars(ctx context.Context, out chan<- model.Bar) error {
	if s.err != nil {
		return s.err
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, b := range s.bars {
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *sliceSource) Close() error { s.closed = true; return nil }

type memSink struct {
	mu      sync.Mutex
	results []model.IndicatorResult
}

func (m *memSink) WriteResults(_ context.Context, rs []model.IndicatorResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, rs...)
	return nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) snapshot() []model.IndicatorResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.IndicatorResult(nil), m.results...)
}

func (m *memSink) last(name string, live bool) (model.IndicatorResult, bool) {
	rs := m.snapshot()
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].Name == name && rs[i].Live == live {
			return rs[i], true
		}
	}
	return model.IndicatorResult{}, false
}

type memSnapshots struct {
	mu   sync.Mutex
	data []byte
}

func (m *memSnapshots) Name() string { return "mem" }

func (m *memSnapshots) SaveSnapshotJSON(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memSnapshots) ReadLatestSnapshotJSON(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

var t0 = time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)

func bars(t *testing.T, from int, closes ...int64) []model.Bar {
	t.Helper()
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		item, err := model.PriceItem(numeric.FromInt(c))
		require.NoError(t, err)
		n := from + i
		out[i] = model.Bar{
			Series: "NSE:1",
			TS:     t0.Add(time.Duration(n) * time.Minute),
			Item:   item,
			Cursor: strconv.Itoa(n) + "-0",
		}
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	specs, err := config.ParseIndicatorSpecs("SMA:3,EMA:3")
	require.NoError(t, err)
	return &config.Config{Indicators: specs, SnapshotInterval: time.Hour}
}

type harness struct {
	svc    *Service
	sink   *memSink
	source *sliceSource
	after  chan string
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, cfg *config.Config, snaps *memSnapshots, source *sliceSource, live model.BarSource) *harness {
	t.Helper()
	h := &harness{sink: &memSink{}, source: source, after: make(chan string, 1), done: make(chan error, 1)}
	svc, err := NewWithDeps(cfg, Deps{
		NewBarSource: func(after string) model.BarSource {
			h.after <- after
			return source
		},
		Live:   live,
		Sinks:  []Sink{{Name: "mem", Writer: h.sink}},
		Stores: []checkpoint.Store{checkpoint.NewJSONStore(snaps)},
	})
	require.NoError(t, err)
	h.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- svc.Run(ctx) }()
	return h
}

func (h *harness) waitResults(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.sink.snapshot()) >= n }, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceColdStartAndResume(t *testing.T) {
	snaps := &memSnapshots{}

	h := start(t, testConfig(t), snaps, &sliceSource{bars: bars(t, 1, 10, 11, 12, 13, 14)}, nil)
	h.waitResults(t, 10)
	h.stop(t)

	assert.Equal(t, "0", <-h.after, "cold start reads the stream from the beginning")
	assert.True(t, h.source.closed)
	sma, ok := h.sink.last("SMA(3)", false)
	require.True(t, ok)
	assert.True(t, sma.Values[indicator.LineValue].Equal(numeric.FromInt(13)))
	assert.True(t, sma.Ready)

	var snap indicator.EngineSnapshot
	require.NoError(t, json.Unmarshal(snaps.data, &snap))
	assert.Equal(t, "5-0", snap.Cursor)
	require.Len(t, snap.Series, 1)

	h = start(t, testConfig(t), snaps, &sliceSource{bars: bars(t, 6, 15)}, nil)
	h.waitResults(t, 2)
	h.stop(t)

	assert.Equal(t, "5-0", <-h.after, "restart resumes after the checkpoint cursor")
	sma, ok = h.sink.last("SMA(3)", false)
	require.True(t, ok)
	assert.True(t, sma.Values[indicator.LineValue].Equal(numeric.FromInt(14)), "got %s", sma.Values[indicator.LineValue])
}

func TestServiceStartIDOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.BarStartID = "$"
	h := start(t, cfg, &memSnapshots{}, &sliceSource{}, nil)
	assert.Equal(t, "$", <-h.after)
	h.stop(t)
}

func TestServiceSourceFailure(t *testing.T) {
	boom := errors.New("stream gone")
	h := start(t, testConfig(t), &memSnapshots{}, &sliceSource{err: boom}, nil)
	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	h.cancel()
}

func TestServiceLivePreview(t *testing.T) {
	snaps := &memSnapshots{}
	live := &sliceSource{bars: bars(t, 99, 100), gate: make(chan struct{})}
	live.bars[0].Cursor = ""

	h := start(t, testConfig(t), snaps, &sliceSource{bars: bars(t, 1, 10, 11, 12)}, live)
	h.waitResults(t, 6)
	close(live.gate)
	require.Eventually(t, func() bool {
		_, ok := h.sink.last("SMA(3)", true)
		return ok && len(h.sink.snapshot()) >= 8
	}, 2*time.Second, 5*time.Millisecond)
	h.stop(t)

	var snap indicator.EngineSnapshot
	require.NoError(t, json.Unmarshal(snaps.data, &snap))
	assert.Equal(t, "3-0", snap.Cursor, "previews do not move the cursor")

	confirmed, ok := h.sink.last("SMA(3)", false)
	require.True(t, ok)
	assert.True(t, confirmed.Values[indicator.LineValue].Equal(numeric.FromInt(11)))
}

func TestServiceHTTP(t *testing.T) {
	h := start(t, testConfig(t), &memSnapshots{}, &sliceSource{bars: bars(t, 1, 10, 11, 12)}, nil)
	defer h.stop(t)
	h.waitResults(t, 6)

	srv := httptest.NewServer(h.svc.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/reload", "application/json", strings.NewReader(`["SMA:3","RSI"]`))
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["preserved"])
	assert.Equal(t, 1.0, body["created"])

	resp, err = http.Post(srv.URL+"/reload", "text/plain", strings.NewReader("SMA:3,BOGUS"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/series")
	require.NoError(t, err)
	var series map[string][]indicatorState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&series))
	resp.Body.Close()
	require.Len(t, series["NSE:1"], 2)
	assert.Equal(t, "SMA(3)", series["NSE:1"][0].Name)
	assert.Equal(t, "steady", series["NSE:1"][0].Phase)
	assert.Equal(t, "fresh", series["NSE:1"][1].Phase)

	resp, err = http.Post(srv.URL+"/reset?series=NSE:1", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/reset?series=NSE:404", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReloadBeforeRun(t *testing.T) {
	svc, err := NewWithDeps(testConfig(t), Deps{
		NewBarSource: func(string) model.BarSource { return &sliceSource{} },
	})
	require.NoError(t, err)
	_, _, err = svc.Reload("SMA:3")
	assert.Error(t, err)
}

func TestNewWithDepsValidation(t *testing.T) {
	_, err := NewWithDeps(testConfig(t), Deps{})
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Indicators = append(cfg.Indicators, cfg.Indicators[0])
	_, err = NewWithDeps(cfg, Deps{NewBarSource: func(string) model.BarSource { return &sliceSource{} }})
	assert.ErrorIs(t, err, indicator.ErrInvalidParameter)
}
