package redis

import (
	"errors"
	"fmt"
	"strconv"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// Bar stream entry fields.
const (
	fieldSeries = "series"
	fieldTS     = "ts" // unix milliseconds
	fieldOpen   = "open"
	fieldHigh   = "high"
	fieldLow    = "low"
	fieldClose  = "close"
	fieldVolume = "volume"
)

// ErrBadEntry is returned for stream entries that do not describe a bar.
var ErrBadEntry = errors.New("redis: malformed bar entry")

// EncodeBar converts a bar into stream entry fields. Prices travel as
// decimal strings so no precision is lost.
func EncodeBar(bar model.Bar) map[string]interface{} {
	it := bar.Item
	return map[string]interface{}{
		fieldSeries: bar.Series,
		fieldTS:     strconv.FormatInt(bar.TS.UnixMilli(), 10),
		fieldOpen:   it.Open().String(),
		fieldHigh:   it.High().String(),
		fieldLow:    it.Low().String(),
		fieldClose:  it.Close().String(),
		fieldVolume: it.Volume().String(),
	}
}

// DecodeBar parses stream entry fields into a bar. The entry ID becomes
// the bar's cursor. The ts field may be unix milliseconds or RFC 3339.
func DecodeBar(id string, values map[string]interface{}) (model.Bar, error) {
	str := func(k string) (string, error) {
		v, ok := values[k]
		if !ok {
			return "", fmt.Errorf("%w %s: missing %q", ErrBadEntry, id, k)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w %s: %q is %T", ErrBadEntry, id, k, v)
		}
		return s, nil
	}
	num := func(k string) (numeric.Value, error) {
		s, err := str(k)
		if err != nil {
			return numeric.Zero, err
		}
		v, err := numeric.FromString(s)
		if err != nil {
			return numeric.Zero, fmt.Errorf("%w %s: %q: %v", ErrBadEntry, id, k, err)
		}
		return v, nil
	}

	series, err := str(fieldSeries)
	if err != nil {
		return model.Bar{}, err
	}
	if series == "" {
		return model.Bar{}, fmt.Errorf("%w %s: empty series", ErrBadEntry, id)
	}
	rawTS, err := str(fieldTS)
	if err != nil {
		return model.Bar{}, err
	}
	ts, err := model.ParseBarTime(rawTS)
	if err != nil {
		return model.Bar{}, fmt.Errorf("%w %s: %v", ErrBadEntry, id, err)
	}

	b := model.NewItemBuilder()
	for _, f := range []struct {
		key string
		set func(numeric.Value) *model.ItemBuilder
	}{
		{fieldOpen, b.Open}, {fieldHigh, b.High}, {fieldLow, b.Low}, {fieldClose, b.Close}, {fieldVolume, b.Volume},
	} {
		v, err := num(f.key)
		if err != nil {
			return model.Bar{}, err
		}
		f.set(v)
	}
	item, err := b.Build()
	if err != nil {
		return model.Bar{}, fmt.Errorf("%s: %w", id, err)
	}
	return model.Bar{Series: series, TS: ts, Item: item, Cursor: id}, nil
}

// latestKey is where the most recent confirmed result of an indicator lives.
func latestKey(prefix string, r *model.IndicatorResult) string {
	return prefix + ":latest:" + r.Name + ":" + r.Series
}

// pubSubChannel carries every result, live previews included.
func pubSubChannel(prefix string, r *model.IndicatorResult) string {
	return "pub:" + r.StreamKey(prefix)
}
