package sqlite

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

func openTemp(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(Config{DBPath: filepath.Join(t.TempDir(), "test.db"), KeepSnapshots: keep})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)

func TestSnapshotsLatestAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 3)

	data, err := s.ReadLatestSnapshotJSON(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.SaveSnapshotJSON(ctx, []byte(`{"n":`+strconv.Itoa(i)+`}`)))
	}

	data, err = s.ReadLatestSnapshotJSON(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":5}`, string(data))

	n, err := s.SnapshotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "sqlite", s.Name())
}

func TestResultsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 0)

	var batch []model.IndicatorResult
	for i := 0; i < 4; i++ {
		batch = append(batch, model.IndicatorResult{
			Name:   "BB(20, 2)",
			Series: "NSE:1",
			TS:     t0.Add(time.Duration(i) * time.Minute),
			Values: map[string]numeric.Value{
				"average": numeric.FromInt(int64(100 + i)),
				"upper":   numeric.MustParse("104.123456789012345678"),
			},
			Phase: "warming",
		})
	}
	batch[3].Phase = "steady"
	live := batch[3]
	live.TS = t0.Add(time.Hour)
	live.Live = true
	batch = append(batch, live)
	require.NoError(t, s.WriteResults(ctx, batch))

	got, err := s.ReadResults(ctx, "BB(20, 2)", "NSE:1", 0)
	require.NoError(t, err)
	require.Len(t, got, 4, "live previews are not stored")
	assert.True(t, got[0].TS.Equal(t0))
	assert.True(t, got[3].Ready)
	assert.True(t, got[3].Values["average"].Equal(numeric.FromInt(103)))
	assert.True(t, got[0].Values["upper"].Equal(numeric.MustParse("104.123456789012345678")))

	last, err := s.ReadResults(ctx, "BB(20, 2)", "NSE:1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.True(t, last[1].TS.Equal(t0.Add(3*time.Minute)))
}

func TestResultsReplaceSameKey(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 0)
	r := model.IndicatorResult{Name: "SMA(9)", Series: "X", TS: t0, Phase: "warming",
		Values: map[string]numeric.Value{"value": numeric.One}}
	require.NoError(t, s.WriteResults(ctx, []model.IndicatorResult{r}))
	r.Values = map[string]numeric.Value{"value": numeric.Two}
	require.NoError(t, s.WriteResults(ctx, []model.IndicatorResult{r}))

	got, err := s.ReadResults(ctx, "SMA(9)", "X", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Values["value"].Equal(numeric.Two))
}

func TestBarsArchive(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 0)

	mk := func(series string, min int, last string) model.Bar {
		p := numeric.MustParse(last)
		item, err := model.NewDataItem(p, p.Add(numeric.One), p.Sub(numeric.One), p, numeric.FromInt(10))
		require.NoError(t, err)
		return model.Bar{Series: series, TS: t0.Add(time.Duration(min) * time.Minute), Item: item}
	}
	require.NoError(t, s.InsertBars(ctx, []model.Bar{
		mk("B", 1, "20.5"), mk("A", 1, "10.25"), mk("A", 0, "10"), mk("A", 2, "11"),
	}))

	all, err := s.ReadBars(ctx, "", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "A", all[0].Series)
	assert.Equal(t, "A", all[1].Series)
	assert.Equal(t, "B", all[2].Series)
	assert.True(t, all[1].Item.Close().Equal(numeric.MustParse("10.25")))

	onlyA, err := s.ReadBars(ctx, "A", t0)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.True(t, onlyA[0].TS.Equal(t0.Add(time.Minute)))
}
