package player

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a state change the machine does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the playback state of a NetStream.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateBuffering
	StatePlaying
	StatePaused
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var transitions = map[State][]State{
	StateIdle:      {StateLoading},
	StateLoading:   {StateBuffering, StateStopped, StateError},
	StateBuffering: {StatePlaying, StatePaused, StateStopped, StateError},
	StatePlaying:   {StateBuffering, StatePaused, StateStopped, StateError},
	StatePaused:    {StatePlaying, StateBuffering, StateStopped, StateError},
	StateStopped:   {StateLoading},
	StateError:     {StateLoading},
}

// CanTransition reports whether the machine allows s -> to.
func (s State) CanTransition(to State) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Active reports whether a play session is running in s.
func (s State) Active() bool {
	switch s {
	case StateLoading, StateBuffering, StatePlaying, StatePaused:
		return true
	}
	return false
}

// setStateLocked moves to the given state. The clock runs only while
// Playing. Must hold ns.stateMu.
func (ns *NetStream) setStateLocked(to State) error {
	from := ns.state
	if from == to {
		return nil
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	ns.state = to
	if to == StatePlaying {
		ns.clock.Resume()
	} else {
		ns.clock.Freeze()
	}

	ns.log.Debug("state changed", "from", from, "to", to)
	ns.metrics.StateChanged(to)
	if ns.opts.OnStateChange != nil {
		ns.opts.OnStateChange(from, to)
	}
	return nil
}

func (ns *NetStream) setState(to State) error {
	ns.stateMu.Lock()
	defer ns.stateMu.Unlock()
	return ns.setStateLocked(to)
}

// compareAndSetState moves to the given state only if the current state is from.
func (ns *NetStream) compareAndSetState(from, to State) bool {
	ns.stateMu.Lock()
	defer ns.stateMu.Unlock()

	if ns.state != from {
		return false
	}
	return ns.setStateLocked(to) == nil
}

// State returns the current playback state.
func (ns *NetStream) State() State {
	ns.stateMu.Lock()
	defer ns.stateMu.Unlock()
	return ns.state
}
