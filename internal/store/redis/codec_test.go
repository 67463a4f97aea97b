package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

func testBar(t *testing.T) model.Bar {
	t.Helper()
	item, err := model.NewDataItem(
		numeric.MustParse("101.5"), numeric.MustParse("103.25"),
		numeric.MustParse("100.75"), numeric.MustParse("102"), numeric.MustParse("1500"))
	require.NoError(t, err)
	return model.Bar{
		Series: "NSE:99926000",
		TS:     time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC),
		Item:   item,
	}
}

func stringValues(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func TestBarRoundTrip(t *testing.T) {
	in := testBar(t)
	got, err := DecodeBar("1709543700000-0", stringValues(EncodeBar(in)))
	require.NoError(t, err)

	assert.Equal(t, in.Series, got.Series)
	assert.True(t, in.TS.Equal(got.TS))
	assert.Equal(t, "1709543700000-0", got.Cursor)
	assert.True(t, got.Item.High().Equal(numeric.MustParse("103.25")))
	assert.True(t, got.Item.Close().Equal(numeric.MustParse("102")))
	assert.True(t, got.Item.Volume().Equal(numeric.MustParse("1500")))
}

func TestDecodeBarRFC3339(t *testing.T) {
	v := stringValues(EncodeBar(testBar(t)))
	v[fieldTS] = "2024-03-04T14:45:00+05:30"
	got, err := DecodeBar("1-0", v)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC), got.TS)
}

func TestDecodeBarRejects(t *testing.T) {
	cases := map[string]func(map[string]interface{}){
		"missing close": func(v map[string]interface{}) { delete(v, fieldClose) },
		"empty series":  func(v map[string]interface{}) { v[fieldSeries] = "" },
		"bad number":    func(v map[string]interface{}) { v[fieldHigh] = "1.2.3" },
		"bad ts":        func(v map[string]interface{}) { v[fieldTS] = "yesterday" },
		"not a string":  func(v map[string]interface{}) { v[fieldLow] = 7 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			v := stringValues(EncodeBar(testBar(t)))
			mutate(v)
			_, err := DecodeBar("1-0", v)
			assert.ErrorIs(t, err, ErrBadEntry)
		})
	}
}

func TestDecodeBarInvalidItem(t *testing.T) {
	v := stringValues(EncodeBar(testBar(t)))
	v[fieldLow] = "200"
	_, err := DecodeBar("1-0", v)
	assert.ErrorIs(t, err, model.ErrInvalidDataItem)
}

func TestResultKeys(t *testing.T) {
	r := &model.IndicatorResult{Name: "SMA(9)", Series: "NSE:1"}
	assert.Equal(t, "ind:latest:SMA(9):NSE:1", latestKey("ind", r))
	assert.Equal(t, "pub:ind:SMA(9):NSE:1", pubSubChannel("ind", r))
}

func TestLiveBarRoundTrip(t *testing.T) {
	in := testBar(t)
	in.Cursor = "5-0"
	payload, err := EncodeLiveBar(in)
	require.NoError(t, err)

	got, err := DecodeLiveBar(payload)
	require.NoError(t, err)
	assert.Equal(t, in.Series, got.Series)
	assert.Empty(t, got.Cursor)
	assert.True(t, got.Item.Open().Equal(in.Item.Open()))

	_, err = DecodeLiveBar([]byte("not json"))
	assert.ErrorIs(t, err, ErrBadEntry)
}
