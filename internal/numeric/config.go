package numeric

import (
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

const (
	// DefaultScale is the number of fractional digits kept after rounding.
	DefaultScale int32 = 20

	// MaxScale bounds the configurable scale.
	MaxScale int32 = 28
)

// maxAbs is the largest magnitude a Value may hold (2^96 - 1).
var maxAbs = decimal.RequireFromString("79228162514264337593543950335")

var scale atomic.Int32

func init() {
	scale.Store(DefaultScale)
}

// Options configures rounding for every Calc created after Configure returns.
type Options struct {
	// Scale is the number of fractional digits results are rounded to
	// (half away from zero). Must be within [0, MaxScale].
	Scale int32
}

// Configure sets the process-wide rounding scale. Call it once at startup,
// before any indicator is constructed.
func Configure(opts Options) error {
	if opts.Scale < 0 || opts.Scale > MaxScale {
		return fmt.Errorf("numeric: scale %d outside [0, %d]", opts.Scale, MaxScale)
	}
	scale.Store(opts.Scale)
	return nil
}

// Scale returns the configured rounding scale.
func Scale() int32 { return scale.Load() }

func inRange(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(maxAbs)
}
