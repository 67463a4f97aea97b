package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"taengine/internal/numeric"
)

// Bar is a DataItem tagged with the series it belongs to and its bar time.
type Bar struct {
	Series string    `json:"series"` // e.g. "NSE:99926000"
	TS     time.Time `json:"ts"`     // bar start time (UTC)
	Item   DataItem  `json:"-"`
	Cursor string    `json:"-"` // source position, e.g. the stream entry ID
}

// IndicatorResult holds the output of one indicator after one bar.
type IndicatorResult struct {
	Name   string                   `json:"name"` // e.g. "SMA(20)", "MACD(12, 26, 9)"
	Series string                   `json:"series"`
	TS     time.Time                `json:"ts"`
	Values map[string]numeric.Value `json:"values"` // line name -> value
	Phase  string                   `json:"phase"`  // fresh, warming, steady
	Ready  bool                     `json:"ready"`  // true once steady
	Live   bool                     `json:"live"`   // true for previews that did not mutate state
}

// StreamKey returns the result stream key: "{prefix}:{name}:{series}".
func (r *IndicatorResult) StreamKey(prefix string) string {
	return prefix + ":" + r.Name + ":" + r.Series
}

// JSON returns the JSON-encoded result (ignoring errors for hot-path usage).
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// ParseBarTime accepts unix milliseconds or RFC 3339 and returns UTC.
func ParseBarTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bar time %q: want unix ms or RFC 3339", s)
	}
	return t.UTC(), nil
}
