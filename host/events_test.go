package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsEmpty(t *testing.T) {
	var e Events
	_, _, ok := e.Pop()
	assert.False(t, ok)
	assert.Zero(t, e.Len())
}

func TestEventsNewestWins(t *testing.T) {
	var e Events
	e.Push(StateNoVbus)
	e.Push(StateDetached)
	e.Push(StateConfiguring)
	require.Equal(t, 3, e.Len())

	s, stale, ok := e.Pop()
	require.True(t, ok)
	assert.Equal(t, StateConfiguring, s)
	assert.Equal(t, 2, stale)
	assert.Zero(t, e.Len())

	_, _, ok = e.Pop()
	assert.False(t, ok)
}

func TestEventsSingle(t *testing.T) {
	var e Events
	e.Push(StateRunning)
	s, stale, ok := e.Pop()
	require.True(t, ok)
	assert.Equal(t, StateRunning, s, "task sub-state survives packing")
	assert.Zero(t, stale)
}

func TestEventsOverwrite(t *testing.T) {
	var e Events
	for i := 0; i < EventCapacity+3; i++ {
		e.Push(StateDetached)
	}
	e.Push(StateNoVbus)

	assert.Equal(t, EventCapacity, e.Len())
	assert.Equal(t, uint32(4), e.Overwritten())

	s, stale, ok := e.Pop()
	require.True(t, ok)
	assert.Equal(t, StateNoVbus, s)
	assert.Equal(t, EventCapacity-1, stale)
}

func TestEventsFlush(t *testing.T) {
	var e Events
	e.Push(StateDetached)
	e.Push(StateConfiguring)
	e.Flush()
	assert.Zero(t, e.Len())
	_, _, ok := e.Pop()
	assert.False(t, ok)

	e.Push(StateNoVbus)
	s, stale, ok := e.Pop()
	require.True(t, ok)
	assert.Equal(t, StateNoVbus, s)
	assert.Zero(t, stale)
}

func TestEventsWrap(t *testing.T) {
	var e Events
	for i := 0; i < 3*EventCapacity; i++ {
		e.Push(StateDetached)
		s, stale, ok := e.Pop()
		require.True(t, ok)
		require.Equal(t, StateDetached, s)
		require.Zero(t, stale)
	}
	assert.Zero(t, e.Overwritten())
}
