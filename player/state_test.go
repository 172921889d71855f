package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateLoading, true},
		{StateIdle, StatePlaying, false},
		{StateLoading, StateBuffering, true},
		{StateLoading, StatePlaying, false},
		{StateBuffering, StatePlaying, true},
		{StatePlaying, StateBuffering, true},
		{StatePlaying, StatePaused, true},
		{StatePaused, StatePlaying, true},
		{StatePaused, StateBuffering, true},
		{StatePlaying, StateLoading, false},
		{StateStopped, StateLoading, true},
		{StateStopped, StatePlaying, false},
		{StateError, StateLoading, true},
		{StateError, StateStopped, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestState_Active(t *testing.T) {
	for _, s := range []State{StateLoading, StateBuffering, StatePlaying, StatePaused} {
		assert.True(t, s.Active(), s.String())
	}
	for _, s := range []State{StateIdle, StateStopped, StateError} {
		assert.False(t, s.Active(), s.String())
	}
	assert.Equal(t, "state(42)", State(42).String())
}

func TestNetStream_SetStateRejectsInvalid(t *testing.T) {
	h := newHarness(t, newFakeSource(true), newFakeBackend(), Options{})

	err := h.ns.setState(StatePlaying)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateIdle, h.ns.State())
	assert.Empty(t, h.rec.states())
}

func TestLevelFor(t *testing.T) {
	errorCodes := []string{StatusPlayStreamNotFound, StatusBufferStreamNotFound, StatusSeekInvalidTime}
	for _, c := range errorCodes {
		assert.Equal(t, LevelError, LevelFor(c), c)
	}

	statusCodes := []string{
		StatusPlayStart, StatusPlayStop, StatusBufferEmpty, StatusBufferFull,
		StatusBufferFlush, StatusSeekNotify, StatusPauseNotify, StatusUnpauseNotify,
	}
	for _, c := range statusCodes {
		assert.Equal(t, LevelStatus, LevelFor(c), c)
	}
}

func TestStatusQueue_CloseDiscards(t *testing.T) {
	var q StatusQueue
	q.Append(StatusPlayStart)
	q.Append(StatusBufferFull)
	assert.Equal(t, 2, q.Len())

	q.Close()
	q.Append(StatusPlayStop)
	assert.Empty(t, q.Drain())

	q.Reopen()
	q.Append(StatusPlayStart)
	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, Status{Code: StatusPlayStart, Level: LevelStatus}, got[0])
}
