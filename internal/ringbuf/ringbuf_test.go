package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_BasicPush(t *testing.T) {
	w := New[int](3)

	_, evicted := w.Push(1)
	assert.False(t, evicted)
	w.Push(2)

	assert.Equal(t, 2, w.Len())
	assert.False(t, w.Full())
	first, ok := w.First()
	require.True(t, ok)
	assert.Equal(t, 1, first)

	_, ok = w.Oldest()
	assert.False(t, ok, "no eviction candidate until full")
}

func TestWindow_Eviction(t *testing.T) {
	w := New[int](2)
	w.Push(1)
	w.Push(2)

	oldest, ok := w.Oldest()
	require.True(t, ok)
	assert.Equal(t, 1, oldest)

	old, evicted := w.Push(3)
	assert.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, 2, w.At(0))
	assert.Equal(t, 3, w.At(1))
}

func TestWindow_Wraparound(t *testing.T) {
	w := New[int](4)

	// Fill past capacity several times to test wraparound
	for i := 0; i < 23; i++ {
		w.Push(i)
		n := w.Len()
		for j := 0; j < n; j++ {
			assert.Equal(t, i-n+1+j, w.At(j), "after push %d, At(%d)", i, j)
		}
	}
	assert.Equal(t, 4, w.Len())
	assert.Equal(t, 4, w.Cap())
}

func TestWindow_Reset(t *testing.T) {
	w := New[int](3)
	for i := 0; i < 5; i++ {
		w.Push(i)
	}
	w.Reset()

	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0, w.Slot())
	_, ok := w.First()
	assert.False(t, ok)
}

func TestWindow_RawLoadRoundTrip(t *testing.T) {
	w := New[int](3)
	for i := 1; i <= 4; i++ {
		w.Push(i)
	}
	buf, idx, count := w.Raw()

	w2 := New[int](3)
	require.NoError(t, w2.Load(buf, idx, count))
	for i := 5; i < 9; i++ {
		a, _ := w.Push(i)
		b, _ := w2.Push(i)
		assert.Equal(t, a, b)
	}

	buf[0] = 99
	assert.NotEqual(t, 99, w.Get(0), "Raw returns a copy")
}

func TestWindow_LoadRejectsBadState(t *testing.T) {
	w := New[int](3)
	w.Push(7)

	cases := []struct {
		buf        []int
		idx, count int
	}{
		{[]int{1, 2}, 0, 2},
		{[]int{1, 2, 3}, 3, 3},
		{[]int{1, 2, 3}, 0, 4},
		{[]int{1, 2, 3}, 0, 2},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, w.Load(tc.buf, tc.idx, tc.count), ErrBadState)
	}
	assert.Equal(t, 1, w.Len(), "rejected load leaves the window untouched")
	assert.Equal(t, 7, w.At(0))
}
