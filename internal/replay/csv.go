package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

var csvColumns = []string{"series", "ts", "open", "high", "low", "close", "volume"}

// ReadCSV parses bars from CSV with a header naming at least the columns
// series, ts, open, high, low, close and volume, in any order. ts is unix
// milliseconds or RFC 3339. When the series column is absent every row
// belongs to defaultSeries.
func ReadCSV(r io.Reader, defaultSeries string) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range csvColumns {
		if _, ok := col[c]; ok {
			continue
		}
		if c == "series" && defaultSeries != "" {
			continue
		}
		return nil, fmt.Errorf("csv header: missing column %q", c)
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return bars, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		bar, err := parseRow(rec, col, defaultSeries)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
}

func parseRow(rec []string, col map[string]int, defaultSeries string) (model.Bar, error) {
	field := func(name string) string { return strings.TrimSpace(rec[col[name]]) }

	series := defaultSeries
	if _, ok := col["series"]; ok {
		series = field("series")
	}
	ts, err := model.ParseBarTime(field("ts"))
	if err != nil {
		return model.Bar{}, err
	}

	var vals [5]numeric.Value
	for i, name := range csvColumns[2:] {
		v, err := numeric.FromString(field(name))
		if err != nil {
			return model.Bar{}, fmt.Errorf("%s: %w", name, err)
		}
		vals[i] = v
	}
	item, err := model.NewDataItem(vals[0], vals[1], vals[2], vals[3], vals[4])
	if err != nil {
		return model.Bar{}, err
	}
	return model.Bar{Series: series, TS: ts, Item: item}, nil
}
