package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taengine/internal/model"
)

func results(names ...string) []model.IndicatorResult {
	out := make([]model.IndicatorResult, len(names))
	for i, n := range names {
		out[i] = model.IndicatorResult{Name: n, Series: "NSE:1"}
	}
	return out
}

func openBreaker(t *testing.T) *Breaker {
	t.Helper()
	b := NewBreaker("results", 1, time.Hour)
	_ = b.Do(fail)
	require.Equal(t, BreakerOpen, b.State())
	return b
}

func TestResultWriterBuffersWhileOpen(t *testing.T) {
	w := NewResultWriter(nil, openBreaker(t), ResultOptions{BufferCap: 3})

	batch := results("SMA(9)", "EMA(9)")
	batch = append(batch, model.IndicatorResult{Name: "RSI(14)", Series: "NSE:1", Live: true})
	require.NoError(t, w.WriteResults(context.Background(), batch))
	assert.Equal(t, 2, w.Buffered(), "live previews are not buffered")
}

func TestResultWriterBufferDropsOldest(t *testing.T) {
	w := NewResultWriter(nil, openBreaker(t), ResultOptions{BufferCap: 2})
	require.NoError(t, w.WriteResults(context.Background(), results("a", "b", "c")))

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.pending, 2)
	assert.Equal(t, "b", w.pending[0].Name)
	assert.Equal(t, "c", w.pending[1].Name)
	assert.Equal(t, 1, w.dropped)
}

func TestResultWriterFlushKeepsBatchOnFailure(t *testing.T) {
	w := NewResultWriter(nil, openBreaker(t), ResultOptions{BufferCap: 10})
	require.NoError(t, w.WriteResults(context.Background(), results("a", "b")))

	assert.ErrorIs(t, w.Close(), ErrBreakerOpen)
	assert.Equal(t, 2, w.Buffered())
}

func TestResultWriterEmptyBatch(t *testing.T) {
	w := NewResultWriter(nil, nil, ResultOptions{})
	assert.NoError(t, w.WriteResults(context.Background(), nil))
	assert.Equal(t, "ind", w.opts.Prefix)
}
