package numeric

import "errors"

var (
	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errors.New("numeric: division by zero")

	// ErrOverflow is returned when a result leaves the representable range
	// or a float input is NaN or infinite.
	ErrOverflow = errors.New("numeric: overflow")

	// ErrPrecisionLoss is returned when an input carries more fractional
	// digits than the configured scale.
	ErrPrecisionLoss = errors.New("numeric: precision loss")

	// ErrNegativeSqrt is returned for the square root of a negative value.
	ErrNegativeSqrt = errors.New("numeric: square root of negative value")

	// ErrInvalidPeriod is returned when a value is not a positive integer period.
	ErrInvalidPeriod = errors.New("numeric: not a positive integer period")
)
