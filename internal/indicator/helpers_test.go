package indicator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func dec(s string) numeric.Value { return numeric.MustParse(s) }

func decs(ss ...string) []numeric.Value {
	out := make([]numeric.Value, len(ss))
	for i, s := range ss {
		out[i] = dec(s)
	}
	return out
}

func price(t *testing.T, p string) model.DataItem {
	t.Helper()
	it, err := model.PriceItem(dec(p))
	require.NoError(t, err)
	return it
}

// ohlcv builds a bar; open is set to close.
func ohlcv(t *testing.T, high, low, last, volume string) model.DataItem {
	t.Helper()
	it, err := model.NewDataItem(dec(last), dec(high), dec(low), dec(last), dec(volume))
	require.NoError(t, err)
	return it
}

func bar(series string, item model.DataItem) model.Bar {
	return model.Bar{Series: series, TS: time.Unix(1_700_000_000, 0).UTC(), Item: item}
}

// requireDec compares got rounded to places against want.
func requireDec(t *testing.T, want string, got numeric.Value, places int32, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, got.Round(places).Equal(dec(want)), "got %s, want %s (rounded to %d places) %v", got, want, places, msgAndArgs)
}

// requireNear compares against expectations published at fewer places,
// where the last digit may round either way.
func requireNear(t *testing.T, want string, got numeric.Value, delta float64, msgAndArgs ...any) {
	t.Helper()
	require.InDeltaf(t, dec(want).Float64(), got.Float64(), delta, "got %s, want %s %v", got, want, msgAndArgs)
}

func requireOutputEqual(t *testing.T, want, got Output, msgAndArgs ...any) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	for k, w := range want {
		g, ok := got[k]
		require.Truef(t, ok, "missing line %q %v", k, msgAndArgs)
		require.Truef(t, w.Equal(g), "line %q: got %s, want %s %v", k, g, w, msgAndArgs)
	}
}

// randomItems returns a deterministic walk of valid bars with two decimals.
func randomItems(t *testing.T, seed int64, n int) []model.DataItem {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	items := make([]model.DataItem, n)
	last := int64(10000) // hundredths
	for i := range items {
		last += rng.Int63n(401) - 200
		if last < 100 {
			last = 100
		}
		high := last + rng.Int63n(150)
		low := last - rng.Int63n(min(150, last))
		open := low + rng.Int63n(high-low+1)
		vol := rng.Int63n(10000)
		it, err := model.NewDataItem(cents(open), cents(high), cents(low), cents(last), numeric.FromInt(vol))
		require.NoError(t, err)
		items[i] = it
	}
	return items
}

func cents(n int64) numeric.Value {
	c := numeric.NewCalc()
	return c.Div(numeric.FromInt(n), numeric.Hundred)
}

// allSpecs covers every indicator type with small periods.
func allSpecs() []Spec {
	return []Spec{
		{Type: TypeSMA, Period: 4},
		{Type: TypeEMA, Period: 4},
		{Type: TypeSMMA, Period: 4},
		{Type: TypeRSI, Period: 5},
		{Type: TypeMACD, Fast: 3, Slow: 6, Signal: 4},
		{Type: TypeStochastic, Period: 5, DPeriod: 3},
		{Type: TypeMin, Period: 4},
		{Type: TypeMax, Period: 4},
		{Type: TypeSD, Period: 4},
		{Type: TypeBollinger, Period: 4, Multiplier: dec("2.5")},
		{Type: TypeTrueRange},
		{Type: TypeATR, Period: 4},
		{Type: TypeROC, Period: 3},
		{Type: TypeKeltner, Period: 4, Multiplier: numeric.Two},
		{Type: TypePPO, Fast: 3, Slow: 6, Signal: 4},
		{Type: TypeOBV},
		{Type: TypeER, Period: 3},
	}
}

func mustNew(t *testing.T, s Spec) Indicator {
	t.Helper()
	ind, err := New(s)
	require.NoError(t, err)
	return ind
}

func feed(t *testing.T, ind Indicator, items []model.DataItem) []Output {
	t.Helper()
	outs := make([]Output, len(items))
	for i, it := range items {
		o, err := ind.Update(it)
		require.NoError(t, err, "%s item %d", ind.Name(), i)
		outs[i] = o
	}
	return outs
}
