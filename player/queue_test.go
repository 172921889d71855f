package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int](3)

	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.True(t, q.Push(3))
	assert.True(t, q.Full())
	assert.Equal(t, 3, q.Len())

	// a full push fails without touching the queue
	assert.False(t, q.Push(4))
	assert.Equal(t, 3, q.Len())

	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, 1, front)

	for _, want := range []int{1, 2, 3} {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_Wraparound(t *testing.T) {
	q := NewQueue[int](2)

	var got []int
	for i := 0; i < 5; i++ {
		require.True(t, q.Push(i))
		v, ok := q.Pop()
		require.True(t, ok)
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestQueue_ConsumeFront(t *testing.T) {
	q := NewQueue[int](4)

	assert.False(t, q.ConsumeFront(func(int) bool { return true }))

	q.Push(10)
	q.Push(20)

	// declined items stay queued
	assert.True(t, q.ConsumeFront(func(v int) bool { return v > 10 }))
	assert.Equal(t, 2, q.Len())

	assert.True(t, q.ConsumeFront(func(v int) bool { return v == 10 }))
	v, _ := q.Front()
	assert.Equal(t, 20, v)
}

func TestQueue_Flush(t *testing.T) {
	q := NewQueue[string](3)
	q.Push("a")
	q.Push("b")

	assert.Equal(t, 2, q.Flush())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 3, q.Cap())

	require.True(t, q.Push("c"))
	v, _ := q.Pop()
	assert.Equal(t, "c", v)
}

func TestNewQueue_MinimumCapacity(t *testing.T) {
	q := NewQueue[int](0)
	assert.Equal(t, 1, q.Cap())
}
