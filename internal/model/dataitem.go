// Package model holds the observation and result types shared by the
// indicator core and the storage adapters.
package model

import (
	"errors"
	"fmt"

	"taengine/internal/numeric"
)

var (
	// ErrInvalidDataItem is returned when OHLCV values violate
	// low <= open,close <= high or any value is negative.
	ErrInvalidDataItem = errors.New("invalid data item")

	// ErrIncompleteDataItem is returned by ItemBuilder when a field is unset.
	ErrIncompleteDataItem = errors.New("incomplete data item")
)

// DataItem is one immutable OHLCV observation.
type DataItem struct {
	open   numeric.Value
	high   numeric.Value
	low    numeric.Value
	close  numeric.Value
	volume numeric.Value
}

// NewDataItem validates and builds a DataItem.
func NewDataItem(open, high, low, close, volume numeric.Value) (DataItem, error) {
	switch {
	case open.IsNegative(), high.IsNegative(), low.IsNegative(), close.IsNegative(), volume.IsNegative():
		return DataItem{}, fmt.Errorf("%w: negative value (o=%s h=%s l=%s c=%s v=%s)",
			ErrInvalidDataItem, open, high, low, close, volume)
	case low.GreaterThan(high):
		return DataItem{}, fmt.Errorf("%w: low %s above high %s", ErrInvalidDataItem, low, high)
	case low.GreaterThan(open), low.GreaterThan(close):
		return DataItem{}, fmt.Errorf("%w: low %s above open %s or close %s", ErrInvalidDataItem, low, open, close)
	case high.LessThan(open), high.LessThan(close):
		return DataItem{}, fmt.Errorf("%w: high %s below open %s or close %s", ErrInvalidDataItem, high, open, close)
	}
	return DataItem{open: open, high: high, low: low, close: close, volume: volume}, nil
}

// PriceItem builds a flat item (open = high = low = close = price, no volume)
// so price-only feeds can drive bar-aware indicators.
func PriceItem(price numeric.Value) (DataItem, error) {
	return NewDataItem(price, price, price, price, numeric.Zero)
}

func (d DataItem) Open() numeric.Value   { return d.open }
func (d DataItem) High() numeric.Value   { return d.high }
func (d DataItem) Low() numeric.Value    { return d.low }
func (d DataItem) Close() numeric.Value  { return d.close }
func (d DataItem) Volume() numeric.Value { return d.volume }

func (d DataItem) String() string {
	return fmt.Sprintf("O=%s H=%s L=%s C=%s V=%s", d.open, d.high, d.low, d.close, d.volume)
}

// ItemBuilder assembles a DataItem field by field.
type ItemBuilder struct {
	open, high, low, close, volume *numeric.Value
}

// NewItemBuilder returns an empty builder.
func NewItemBuilder() *ItemBuilder { return &ItemBuilder{} }

func (b *ItemBuilder) Open(v numeric.Value) *ItemBuilder   { b.open = &v; return b }
func (b *ItemBuilder) High(v numeric.Value) *ItemBuilder   { b.high = &v; return b }
func (b *ItemBuilder) Low(v numeric.Value) *ItemBuilder    { b.low = &v; return b }
func (b *ItemBuilder) Close(v numeric.Value) *ItemBuilder  { b.close = &v; return b }
func (b *ItemBuilder) Volume(v numeric.Value) *ItemBuilder { b.volume = &v; return b }

// Build validates the collected fields.
func (b *ItemBuilder) Build() (DataItem, error) {
	if b.open == nil || b.high == nil || b.low == nil || b.close == nil || b.volume == nil {
		return DataItem{}, ErrIncompleteDataItem
	}
	return NewDataItem(*b.open, *b.high, *b.low, *b.close, *b.volume)
}
