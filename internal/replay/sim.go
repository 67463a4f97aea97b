package replay

import (
	"math/rand"
	"time"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// Walker simulates bars for one series with a random walk of at most
// ±0.1% per tick, rounded to the tick size.
type Walker struct {
	Series string

	rng   *rand.Rand
	price float64
	tick  float64

	open, high, low, last float64
	volume                int64
	start                 time.Time
}

// NewWalker starts a walk at price. seed makes the walk reproducible.
func NewWalker(series string, price float64, seed int64) *Walker {
	return &Walker{Series: series, rng: rand.New(rand.NewSource(seed)), price: price, tick: 0.05}
}

// Tick moves the price once and folds it into the forming bar, which it
// returns. The bar starts at start on the first tick after Close.
func (w *Walker) Tick(start time.Time) (model.Bar, error) {
	pct := (w.rng.Float64()*0.2 - 0.1) / 100
	w.price += w.price * pct
	if w.price < w.tick {
		w.price = w.tick
	}
	p := roundTo(w.price, w.tick)

	if w.start.IsZero() {
		w.start = start
		w.open, w.high, w.low = p, p, p
		w.volume = 0
	}
	if p > w.high {
		w.high = p
	}
	if p < w.low {
		w.low = p
	}
	w.last = p
	w.volume += int64(w.rng.Intn(100) + 1)
	return w.bar()
}

// Close returns the completed bar and starts a new one on the next tick.
func (w *Walker) Close() (model.Bar, bool, error) {
	if w.start.IsZero() {
		return model.Bar{}, false, nil
	}
	b, err := w.bar()
	w.start = time.Time{}
	return b, err == nil, err
}

func (w *Walker) bar() (model.Bar, error) {
	vals := make([]numeric.Value, 4)
	for i, f := range []float64{w.open, w.high, w.low, w.last} {
		v, err := numeric.FromFloat(f)
		if err != nil {
			return model.Bar{}, err
		}
		vals[i] = v.Round(2)
	}
	item, err := model.NewDataItem(vals[0], vals[1], vals[2], vals[3], numeric.FromInt(w.volume))
	if err != nil {
		return model.Bar{}, err
	}
	return model.Bar{Series: w.Series, TS: w.start, Item: item}, nil
}

func roundTo(v, step float64) float64 {
	n := int64(v/step + 0.5)
	return float64(n) * step
}
