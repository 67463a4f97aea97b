package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"taengine/internal/numeric"
)

// Spec describes one indicator to compute. Only the fields the type uses
// are meaningful: Period for single-period types, Fast/Slow/Signal for MACD
// and PPO, Period/DPeriod for STOCH, Period/Multiplier for BB and KC.
type Spec struct {
	Type       string        `json:"type"`
	Period     int           `json:"period,omitempty"`
	Fast       int           `json:"fast,omitempty"`
	Slow       int           `json:"slow,omitempty"`
	Signal     int           `json:"signal,omitempty"`
	DPeriod    int           `json:"d_period,omitempty"`
	Multiplier numeric.Value `json:"multiplier"`
}

// Key identifies the indicator by type and parameters, e.g. "SMA:9",
// "MACD:12:26:9", "BB:20:2". Specs with the same key share state on restore.
func (s Spec) Key() string {
	switch s.Type {
	case TypeMACD, TypePPO:
		return fmt.Sprintf("%s:%d:%d:%d", s.Type, s.Fast, s.Slow, s.Signal)
	case TypeStochastic:
		return fmt.Sprintf("%s:%d:%d", s.Type, s.Period, s.DPeriod)
	case TypeBollinger, TypeKeltner:
		return fmt.Sprintf("%s:%d:%s", s.Type, s.Period, s.Multiplier)
	case TypeTrueRange, TypeOBV:
		return s.Type
	default:
		return s.Type + ":" + strconv.Itoa(s.Period)
	}
}

func (s Spec) String() string { return s.Key() }

// New builds a fresh indicator from a spec.
func New(s Spec) (Indicator, error) {
	switch s.Type {
	case TypeSMA:
		return NewSMA(s.Period)
	case TypeEMA:
		return NewEMA(s.Period)
	case TypeSMMA:
		return NewSMMA(s.Period)
	case TypeRSI:
		return NewRSI(s.Period)
	case TypeMACD:
		return NewMACD(s.Fast, s.Slow, s.Signal)
	case TypeStochastic:
		return NewStochastic(s.Period, s.DPeriod)
	case TypeMin:
		return NewMinimum(s.Period)
	case TypeMax:
		return NewMaximum(s.Period)
	case TypeSD:
		return NewStandardDeviation(s.Period)
	case TypeBollinger:
		return NewBollingerBands(s.Period, s.Multiplier)
	case TypeTrueRange:
		return NewTrueRange(), nil
	case TypeATR:
		return NewATR(s.Period)
	case TypeROC:
		return NewROC(s.Period)
	case TypeKeltner:
		return NewKeltnerChannel(s.Period, s.Multiplier)
	case TypePPO:
		return NewPPO(s.Fast, s.Slow, s.Signal)
	case TypeOBV:
		return NewOBV(), nil
	case TypeER:
		return NewEfficiencyRatio(s.Period)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
}

// ValidateSpecs checks that every spec builds and that no key repeats.
func ValidateSpecs(specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if _, err := New(s); err != nil {
			return fmt.Errorf("indicator %s: %w", s.Key(), err)
		}
		k := s.Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate indicator %s", ErrInvalidParameter, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func specFromSnapshot(snap IndicatorSnapshot) Spec {
	return Spec{
		Type:       snap.Type,
		Period:     snap.Period,
		Fast:       snap.Fast,
		Slow:       snap.Slow,
		Signal:     snap.Signal,
		DPeriod:    snap.DPeriod,
		Multiplier: snap.Multiplier,
	}
}

// defaultSpecs fill in parameters omitted from a textual spec.
var defaultSpecs = map[string]Spec{
	TypeSMA:        {Type: TypeSMA, Period: 9},
	TypeEMA:        {Type: TypeEMA, Period: 9},
	TypeSMMA:       {Type: TypeSMMA, Period: 14},
	TypeRSI:        {Type: TypeRSI, Period: 14},
	TypeMACD:       {Type: TypeMACD, Fast: 12, Slow: 26, Signal: 9},
	TypeStochastic: {Type: TypeStochastic, Period: 14, DPeriod: 3},
	TypeMin:        {Type: TypeMin, Period: 14},
	TypeMax:        {Type: TypeMax, Period: 14},
	TypeSD:         {Type: TypeSD, Period: 9},
	TypeBollinger:  {Type: TypeBollinger, Period: 9, Multiplier: numeric.Two},
	TypeTrueRange:  {Type: TypeTrueRange},
	TypeATR:        {Type: TypeATR, Period: 14},
	TypeROC:        {Type: TypeROC, Period: 9},
	TypeKeltner:    {Type: TypeKeltner, Period: 10, Multiplier: numeric.Two},
	TypePPO:        {Type: TypePPO, Fast: 12, Slow: 26, Signal: 9},
	TypeOBV:        {Type: TypeOBV},
	TypeER:         {Type: TypeER, Period: 14},
}

// ParseSpec parses "TYPE[:P[:P...]]", e.g. "SMA:20", "MACD:12:26:9",
// "BB:20:2.5" or "RSI" for the default RSI(14). Omitted trailing
// parameters take their defaults.
func ParseSpec(text string) (Spec, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	typ := strings.ToUpper(strings.TrimSpace(parts[0]))
	s, ok := defaultSpecs[typ]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	args := parts[1:]

	ints := make([]*int, 0, 3)
	var mult *numeric.Value
	switch typ {
	case TypeMACD, TypePPO:
		ints = append(ints, &s.Fast, &s.Slow, &s.Signal)
	case TypeStochastic:
		ints = append(ints, &s.Period, &s.DPeriod)
	case TypeBollinger, TypeKeltner:
		ints = append(ints, &s.Period)
		mult = &s.Multiplier
	case TypeTrueRange, TypeOBV:
	default:
		ints = append(ints, &s.Period)
	}

	maxArgs := len(ints)
	if mult != nil {
		maxArgs++
	}
	if len(args) > maxArgs {
		return Spec{}, fmt.Errorf("%w: %q takes at most %d parameters", ErrInvalidParameter, text, maxArgs)
	}
	for i, a := range args {
		a = strings.TrimSpace(a)
		if i < len(ints) {
			n, err := strconv.Atoi(a)
			if err != nil {
				return Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidParameter, text, err)
			}
			*ints[i] = n
			continue
		}
		v, err := numeric.FromString(a)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidParameter, text, err)
		}
		*mult = v
	}
	if _, err := New(s); err != nil {
		return Spec{}, err
	}
	return s, nil
}
