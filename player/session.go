package player

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/njyeung/netplay/source"
)

// playSession is everything owned by one Play call: the decode goroutine, the
// source and backend it drives, and the decode-side clocks.
type playSession struct {
	id  string
	url string
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	srcMu sync.Mutex
	src   source.ByteSource

	// decodeMu serializes the backend between the decode loop, Seek and
	// Close, and guards the fields below it.
	decodeMu     sync.Mutex
	backend      Backend
	frameDelay   float64
	videoClock   float64
	audioClock   float64
	pendingVideo *VideoFrame
	pendingAudio *AudioUnit

	// read without decodeMu by Advance
	mediaClock  atomicFloat // videoClock snapshot
	loadedUntil atomic.Int64
	pending     atomic.Bool
	endOfStream atomic.Bool
}

func newPlaySession(url string, log *slog.Logger) *playSession {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &playSession{
		id:     id,
		url:    url,
		log:    log.With("session", id),
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
	}
}

func (s *playSession) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()
	})
}

func (s *playSession) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits for d and reports false if the session was stopped meanwhile.
func (s *playSession) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-s.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// setSource stores src, or closes it and returns false if the session was
// stopped while it was opening.
func (s *playSession) setSource(src source.ByteSource) bool {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()

	if s.stopped() {
		src.Close()
		return false
	}
	s.src = src
	return true
}

func (s *playSession) source() source.ByteSource {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	return s.src
}

// closeSource closes the source, unblocking any read in progress.
func (s *playSession) closeSource() {
	s.srcMu.Lock()
	src := s.src
	s.srcMu.Unlock()

	if src != nil {
		src.Close()
	}
}

func (s *playSession) loadCompleted() bool {
	src := s.source()
	return src != nil && src.LoadCompleted()
}

// sourceErr returns the error that ended the source's download, if any.
func (s *playSession) sourceErr() error {
	if src := s.source(); src != nil {
		return src.Err()
	}
	return nil
}

// clearPendingLocked drops both pending slots. Must hold s.decodeMu.
func (s *playSession) clearPendingLocked() {
	s.pendingVideo = nil
	s.pendingAudio = nil
	s.pending.Store(false)
}

// markLoaded raises the loaded-until mark to end seconds.
func (s *playSession) markLoaded(end float64) {
	ms := int64(math.Round(end * 1000))
	for {
		cur := s.loadedUntil.Load()
		if ms <= cur || s.loadedUntil.CompareAndSwap(cur, ms) {
			return
		}
	}
}

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}
