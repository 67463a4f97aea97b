package replay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

var t0 = time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)

func bar(t *testing.T, series string, min int) model.Bar {
	t.Helper()
	item, err := model.PriceItem(numeric.FromInt(int64(100 + min)))
	require.NoError(t, err)
	return model.Bar{Series: series, TS: t0.Add(time.Duration(min) * time.Minute), Item: item}
}

func drain(t *testing.T, r *Replayer) []model.Bar {
	t.Helper()
	out := make(chan model.Bar, r.Len())
	require.NoError(t, r.ConsumeBars(context.Background(), out))
	close(out)
	var got []model.Bar
	for b := range out {
		got = append(got, b)
	}
	return got
}

func TestReplayOrder(t *testing.T) {
	r := New([]model.Bar{bar(t, "B", 1), bar(t, "A", 2), bar(t, "A", 1), bar(t, "A", 0)}, 0)
	var seen int
	r.OnBar = func(model.Bar) { seen++ }

	got := drain(t, r)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"A", "A", "B", "A"}, []string{got[0].Series, got[1].Series, got[2].Series, got[3].Series})
	assert.True(t, got[3].TS.Equal(t0.Add(2*time.Minute)))
	assert.Equal(t, 4, seen)
}

func TestReplaySpeedScalesGaps(t *testing.T) {
	r := New([]model.Bar{bar(t, "A", 0), bar(t, "A", 1), bar(t, "A", 61)}, 60)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	drain(t, r)
	assert.Equal(t, []time.Duration{time.Second, maxGap}, slept)
}

func TestReplayCancel(t *testing.T) {
	r := New([]model.Bar{bar(t, "A", 0), bar(t, "A", 1)}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.ConsumeBars(ctx, make(chan model.Bar))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadCSV(t *testing.T) {
	in := `ts,open,high,low,close,volume
1709543700000,100,101.5,99.25,101,1200
2024-03-04T09:16:00Z,101,102,100.5,101.75,800
`
	bars, err := ReadCSV(strings.NewReader(in), "NSE:1")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "NSE:1", bars[0].Series)
	assert.True(t, bars[0].TS.Equal(t0))
	assert.True(t, bars[1].TS.Equal(t0.Add(time.Minute)))
	assert.True(t, bars[1].Item.Close().Equal(numeric.MustParse("101.75")))
}

func TestReadCSVWithSeriesColumn(t *testing.T) {
	in := "Series, TS, Open, High, Low, Close, Volume\nX,1709543700000,1,2,1,2,5\n"
	bars, err := ReadCSV(strings.NewReader(in), "")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "X", bars[0].Series)
}

func TestReadCSVErrors(t *testing.T) {
	cases := map[string]string{
		"missing column": "ts,open,high,low,close\n1,1,1,1,1\n",
		"bad number":     "ts,open,high,low,close,volume\n1,1,x,1,1,1\n",
		"invalid item":   "ts,open,high,low,close,volume\n1,1,1,5,1,1\n",
		"bad time":       "ts,open,high,low,close,volume\nnoon,1,1,1,1,1\n",
		"short row":      "ts,open,high,low,close,volume\n1,1,1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in), "S")
			assert.Error(t, err)
		})
	}
}

func TestWalkerBuildsValidBars(t *testing.T) {
	w := NewWalker("SIM:1", 25660, 42)

	_, ok, err := w.Close()
	require.NoError(t, err)
	assert.False(t, ok, "no bar before the first tick")

	for b := 0; b < 5; b++ {
		start := t0.Add(time.Duration(b) * time.Minute)
		var forming model.Bar
		for i := 0; i < 20; i++ {
			forming, err = w.Tick(start)
			require.NoError(t, err)
		}
		done, ok, err := w.Close()
		require.NoError(t, err)
		require.True(t, ok)

		assert.True(t, done.TS.Equal(start))
		assert.Equal(t, "SIM:1", done.Series)
		assert.True(t, done.Item.Close().Equal(forming.Item.Close()))
		assert.True(t, done.Item.Low().LessThanOrEqual(done.Item.High()))
		assert.True(t, done.Item.Volume().GreaterThanOrEqual(numeric.FromInt(20)))
	}
}

func TestWalkerIsReproducible(t *testing.T) {
	a, b := NewWalker("S", 100, 7), NewWalker("S", 100, 7)
	for i := 0; i < 50; i++ {
		x, err := a.Tick(t0)
		require.NoError(t, err)
		y, err := b.Tick(t0)
		require.NoError(t, err)
		require.True(t, x.Item.Close().Equal(y.Item.Close()))
	}
}
