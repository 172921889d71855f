package player

import (
	"strings"
	"sync"
)

// Status codes reported through the status handler.
const (
	StatusPlayStart            = "NetStream.Play.Start"
	StatusPlayStop             = "NetStream.Play.Stop"
	StatusPlayStreamNotFound   = "NetStream.Play.StreamNotFound"
	StatusBufferStreamNotFound = "NetStream.Buffer.StreamNotFound"
	StatusBufferEmpty          = "NetStream.Buffer.Empty"
	StatusBufferFull           = "NetStream.Buffer.Full"
	StatusBufferFlush          = "NetStream.Buffer.Flush"
	StatusSeekNotify           = "NetStream.Seek.Notify"
	StatusSeekInvalidTime      = "NetStream.Seek.InvalidTime"
	StatusPauseNotify          = "NetStream.Pause.Notify"
	StatusUnpauseNotify        = "NetStream.Unpause.Notify"
)

// Level is the severity attached to a status code.
type Level string

const (
	LevelStatus Level = "status"
	LevelError  Level = "error"
)

// Status is one dispatched status event.
type Status struct {
	Code  string
	Level Level
}

// LevelFor returns the level for a status code.
func LevelFor(code string) Level {
	if strings.Contains(code, "StreamNotFound") || strings.Contains(code, "InvalidTime") {
		return LevelError
	}
	return LevelStatus
}

// StatusQueue holds status codes until the next Advance drains them. Once
// closed it discards appends until reopened.
type StatusQueue struct {
	mu      sync.Mutex
	pending []Status
	closed  bool
}

// Append queues code.
func (q *StatusQueue) Append(code string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.pending = append(q.pending, Status{Code: code, Level: LevelFor(code)})
}

// Drain removes and returns the queued statuses in order.
func (q *StatusQueue) Drain() []Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of queued statuses.
func (q *StatusQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close clears the queue and discards later appends.
func (q *StatusQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = nil
	q.closed = true
}

// Reopen accepts appends again.
func (q *StatusQueue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}
