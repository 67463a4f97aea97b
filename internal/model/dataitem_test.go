package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taengine/internal/numeric"
)

func lit(s string) numeric.Value { return numeric.MustParse(s) }

func TestNewDataItem_Valid(t *testing.T) {
	valid := [][5]string{
		{"20", "25", "15", "21", "7500"},
		{"10", "10", "10", "10", "10"},
		{"0", "0", "0", "0", "0"},
	}
	for _, r := range valid {
		item, err := NewDataItem(lit(r[0]), lit(r[1]), lit(r[2]), lit(r[3]), lit(r[4]))
		require.NoError(t, err, "%v", r)
		assert.True(t, item.Close().Equal(lit(r[3])))
	}
}

func TestNewDataItem_Invalid(t *testing.T) {
	invalid := [][5]string{
		{"-1", "25", "15", "21", "7500"},
		{"20", "-1", "15", "21", "7500"},
		{"20", "25", "15", "-1", "7500"},
		{"20", "25", "15", "21", "-1"},
		{"14.9", "25", "15", "21", "7500"},
		{"25.1", "25", "15", "21", "7500"},
		{"20", "25", "15", "14.9", "7500"},
		{"20", "25", "15", "25.1", "7500"},
		{"20", "15", "25", "21", "7500"},
	}
	for _, r := range invalid {
		_, err := NewDataItem(lit(r[0]), lit(r[1]), lit(r[2]), lit(r[3]), lit(r[4]))
		assert.True(t, errors.Is(err, ErrInvalidDataItem), "%v: got %v", r, err)
	}
}

func TestNewDataItem_LowAboveHigh(t *testing.T) {
	_, err := NewDataItem(lit("7"), lit("5"), lit("10"), lit("7"), lit("1"))
	assert.ErrorIs(t, err, ErrInvalidDataItem)
}

func TestItemBuilder(t *testing.T) {
	_, err := NewItemBuilder().Open(lit("1")).High(lit("2")).Build()
	assert.ErrorIs(t, err, ErrIncompleteDataItem)

	item, err := NewItemBuilder().
		Open(lit("1")).High(lit("2")).Low(lit("0.5")).Close(lit("1.5")).Volume(lit("100")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "O=1 H=2 L=0.5 C=1.5 V=100", item.String())
}

func TestPriceItem(t *testing.T) {
	item, err := PriceItem(lit("42"))
	require.NoError(t, err)
	assert.True(t, item.High().Equal(item.Low()))
	assert.True(t, item.Volume().IsZero())

	_, err = PriceItem(lit("-1"))
	assert.ErrorIs(t, err, ErrInvalidDataItem)
}

func TestIndicatorResult_StreamKey(t *testing.T) {
	r := IndicatorResult{Name: "SMA(20)", Series: "NSE:SBIN"}
	assert.Equal(t, "ind:SMA(20):NSE:SBIN", r.StreamKey("ind"))
	assert.Contains(t, string(r.JSON()), `"series":"NSE:SBIN"`)
}

func TestParseBarTime(t *testing.T) {
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	got, err := ParseBarTime("1705314600000")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseBarTime("2024-01-15T16:00:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ParseBarTime("15/01/2024")
	assert.Error(t, err)
}
