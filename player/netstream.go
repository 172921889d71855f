package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/njyeung/netplay/source"
)

// PauseMode selects what Pause does.
type PauseMode int

const (
	PauseToggle PauseMode = iota
	PausePause
	PauseResume
)

// Options configures a NetStream. Zero values use defaults.
type Options struct {
	BufferTime     time.Duration
	VideoQueueSize int
	AudioQueueSize int
	SeekScanLimit  int

	// NoAudio skips audio decoding, for hosts without an audio sink.
	NoAudio bool

	// Width and Height bound decoded frames; 0 keeps the source size.
	Width  int
	Height int

	// RenderMode picks the pixel layout frames are decoded to.
	RenderMode func() PixelLayout

	Now         func() time.Time
	OpenSource  func(ctx context.Context, url string) (source.ByteSource, error)
	OpenBackend BackendOpener

	// OnStateChange is called with the state lock held and must not call
	// back into the NetStream.
	OnStateChange func(from, to State)

	Logger  *slog.Logger
	Metrics Metrics
}

// NetStream plays one media stream at a time. A background goroutine decodes
// into bounded video and audio queues; the host drives presentation and
// status dispatch by calling Advance periodically, and an audio sink pulls
// PCM through ReadAudio.
type NetStream struct {
	opts    Options
	log     *slog.Logger
	metrics Metrics

	video    *Queue[*VideoFrame]
	audio    *Queue[*AudioUnit]
	clock    *Clock
	statuses StatusQueue

	stateMu  sync.Mutex
	state    State
	resumeTo State

	// buffering thresholds, in media milliseconds
	bufferBase   atomic.Int64
	bufferFrom   atomic.Int64
	bufferTarget atomic.Int64

	imageMu  sync.Mutex
	image    *VideoFrame
	newFrame bool

	handlerMu sync.Mutex
	onStatus  func(Status)

	sessionMu sync.Mutex
	session   *playSession
}

// NewNetStream creates an idle stream.
func NewNetStream(opts Options) *NetStream {
	if opts.BufferTime <= 0 {
		opts.BufferTime = DefaultBufferTime
	}
	if opts.VideoQueueSize <= 0 {
		opts.VideoQueueSize = DefaultVideoQueueSize
	}
	if opts.AudioQueueSize <= 0 {
		opts.AudioQueueSize = DefaultAudioQueueSize
	}
	if opts.SeekScanLimit <= 0 {
		opts.SeekScanLimit = DefaultSeekScanLimit
	}
	if opts.RenderMode == nil {
		opts.RenderMode = func() PixelLayout { return LayoutRGB }
	}
	if opts.OpenSource == nil {
		opts.OpenSource = source.Open
	}
	if opts.OpenBackend == nil {
		opts.OpenBackend = OpenBackend
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	ns := &NetStream{
		opts:    opts,
		log:     opts.Logger.With("component", "netstream"),
		metrics: opts.Metrics,
		video:   NewQueue[*VideoFrame](opts.VideoQueueSize),
		audio:   NewQueue[*AudioUnit](opts.AudioQueueSize),
		clock:   NewClock(opts.Now),
	}
	ns.bufferBase.Store(opts.BufferTime.Milliseconds())
	ns.bufferTarget.Store(opts.BufferTime.Milliseconds())
	return ns
}

// SetStatusHandler registers the function Advance dispatches statuses to.
func (ns *NetStream) SetStatusHandler(fn func(Status)) {
	ns.handlerMu.Lock()
	defer ns.handlerMu.Unlock()
	ns.onStatus = fn
}

func (ns *NetStream) currentSession() *playSession {
	ns.sessionMu.Lock()
	defer ns.sessionMu.Unlock()
	return ns.session
}

// emit queues a status for the next Advance.
func (ns *NetStream) emit(code string) {
	ns.statuses.Append(code)
}

// Play starts streaming url. On an active stream it only resumes a pause.
func (ns *NetStream) Play(url string) error {
	ns.sessionMu.Lock()
	defer ns.sessionMu.Unlock()

	if old := ns.session; old != nil {
		st := ns.State()
		if st == StatePaused {
			return ns.Pause(PauseResume)
		}
		if st.Active() {
			return nil
		}
		// finished or failed session
		ns.session = nil
		ns.teardown(old)
	}

	if url == "" {
		return ErrEmptyURL
	}

	ns.statuses.Reopen()
	ns.video.Flush()
	ns.audio.Flush()
	ns.clock.Reset()
	ns.setImage(nil)
	ns.bufferFrom.Store(0)
	ns.bufferTarget.Store(ns.bufferBase.Load())

	if err := ns.setState(StateLoading); err != nil {
		return err
	}

	s := newPlaySession(url, ns.log)
	ns.session = s
	s.log.Info("play", "url", url)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ns.run(s)
	}()
	return nil
}

// Pause pauses or resumes playback. Pausing is valid while Playing or
// Buffering; resuming returns to the state paused from.
func (ns *NetStream) Pause(mode PauseMode) error {
	ns.stateMu.Lock()
	defer ns.stateMu.Unlock()

	paused := ns.state == StatePaused
	want := !paused
	switch mode {
	case PausePause:
		want = true
	case PauseResume:
		want = false
	}
	if want == paused {
		return nil
	}

	if want {
		if ns.state != StatePlaying && ns.state != StateBuffering {
			return fmt.Errorf("%w: cannot pause while %s", ErrNotPlaying, ns.state)
		}
		ns.resumeTo = ns.state
		if err := ns.setStateLocked(StatePaused); err != nil {
			return err
		}
		ns.emit(StatusPauseNotify)
		return nil
	}

	if err := ns.setStateLocked(ns.resumeTo); err != nil {
		return err
	}
	ns.emit(StatusUnpauseNotify)
	return nil
}

// Seek repositions playback near seconds, keeping the play or pause state.
// Negative positions clamp to 0. Seek waits for a packet read in flight, which
// can block on a slow network source.
func (ns *NetStream) Seek(seconds float64) error {
	s := ns.currentSession()
	if s == nil {
		return ErrNotPlaying
	}
	switch st := ns.State(); st {
	case StateBuffering, StatePlaying, StatePaused:
	default:
		return fmt.Errorf("%w: cannot seek while %s", ErrNotPlaying, st)
	}
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}

	s.decodeMu.Lock()
	defer s.decodeMu.Unlock()

	if s.backend == nil {
		return ErrNotPlaying
	}

	landed, err := s.backend.Seek(seconds)
	if err != nil {
		s.log.Warn("seek failed", "target", seconds, "error", err)
		ns.metrics.Seeked(false)
		if errors.Is(err, ErrSeekScanLimit) {
			// the backend rewound to the start
			ns.resyncLocked(s, 0)
		}
		ns.emit(StatusSeekInvalidTime)
		return fmt.Errorf("seek to %.3fs: %w", seconds, err)
	}

	ns.resyncLocked(s, landed)
	s.log.Debug("seeked", "target", seconds, "landed", landed)
	ns.metrics.Seeked(true)
	ns.emit(StatusSeekNotify)
	return nil
}

// resyncLocked drops everything decoded and moves both clocks to pos. Must
// hold s.decodeMu.
func (ns *NetStream) resyncLocked(s *playSession, pos float64) {
	ns.video.Flush()
	ns.audio.Flush()
	s.clearPendingLocked()

	s.videoClock = pos
	s.audioClock = pos
	s.mediaClock.Store(pos)
	s.loadedUntil.Store(int64(math.Round(pos * 1000)))
	s.endOfStream.Store(false)
	ns.clock.Anchor(pos)

	ns.stateMu.Lock()
	if ns.state == StateBuffering || (ns.state == StatePaused && ns.resumeTo == StateBuffering) {
		from := int64(math.Round(pos * 1000))
		ns.bufferFrom.Store(from)
		ns.bufferTarget.Store(from + ns.bufferBase.Load())
	}
	ns.stateMu.Unlock()
}

// SetBufferTime sets how much media must be buffered before playback starts
// or resumes after an underrun.
func (ns *NetStream) SetBufferTime(seconds float64) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	ns.bufferBase.Store(ms)

	if ns.State() == StateBuffering {
		ns.bufferTarget.Store(ns.bufferFrom.Load() + ms)
	}
}

// BufferTime returns the configured buffer time in seconds.
func (ns *NetStream) BufferTime() float64 {
	return float64(ns.bufferBase.Load()) / 1000
}

// BufferTarget returns the media position in seconds the current buffering
// phase waits for.
func (ns *NetStream) BufferTarget() float64 {
	return float64(ns.bufferTarget.Load()) / 1000
}

// Advance moves buffering state, presents due video frames and dispatches
// queued statuses. The host calls it periodically.
func (ns *NetStream) Advance() {
	if s := ns.currentSession(); s != nil {
		ns.updateBuffering(s)
		ns.presentFrames()
		ns.metrics.QueueDepth(StreamVideo, ns.video.Len())
		ns.metrics.QueueDepth(StreamAudio, ns.audio.Len())
	}
	ns.dispatchStatuses()
}

func (ns *NetStream) updateBuffering(s *playSession) {
	ns.stateMu.Lock()
	defer ns.stateMu.Unlock()

	switch ns.state {
	case StateBuffering:
		switch {
		case s.loadedUntil.Load() >= ns.bufferTarget.Load(), s.pending.Load():
			// target reached, or a full queue means nothing more can buffer
			if ns.setStateLocked(StatePlaying) == nil {
				s.log.Debug("buffer full", "loaded_ms", s.loadedUntil.Load(), "target_ms", ns.bufferTarget.Load())
				ns.emit(StatusBufferFull)
			}
		case s.endOfStream.Load():
			if ns.setStateLocked(StatePlaying) == nil {
				ns.emit(StatusBufferFlush)
			}
		}

	case StatePlaying:
		if ns.video.Len() > 0 || s.pending.Load() || s.endOfStream.Load() || s.loadCompleted() {
			return
		}
		from := int64(math.Round(s.mediaClock.Load() * 1000))
		ns.bufferFrom.Store(from)
		ns.bufferTarget.Store(from + rebufferMarginMs)
		if ns.setStateLocked(StateBuffering) == nil {
			s.log.Info("buffer empty, rebuffering", "target_ms", from+rebufferMarginMs)
			ns.metrics.Rebuffered()
			ns.emit(StatusBufferEmpty)
		}
	}
}

// presentFrames moves every due video frame to the frame buffer.
func (ns *NetStream) presentFrames() {
	if ns.State() != StatePlaying {
		return
	}
	elapsed := ns.clock.Elapsed()

	for {
		var due *VideoFrame
		ns.video.ConsumeFront(func(f *VideoFrame) bool {
			if elapsed >= f.PTS {
				due = f
				return true
			}
			return false
		})
		if due == nil {
			return
		}
		ns.setImage(due)
		ns.metrics.FramePresented()
	}
}

func (ns *NetStream) dispatchStatuses() {
	statuses := ns.statuses.Drain()
	if len(statuses) == 0 {
		return
	}

	ns.handlerMu.Lock()
	handler := ns.onStatus
	ns.handlerMu.Unlock()

	for _, st := range statuses {
		if st.Level == LevelError {
			ns.log.Warn("status", "code", st.Code)
		} else {
			ns.log.Debug("status", "code", st.Code)
		}
		if handler != nil {
			handler(st)
		}
	}
}

func (ns *NetStream) setImage(f *VideoFrame) {
	ns.imageMu.Lock()
	defer ns.imageMu.Unlock()

	ns.image = f
	ns.newFrame = f != nil
}

// VideoFrame returns the most recently presented frame, or nil.
func (ns *NetStream) VideoFrame() *VideoFrame {
	ns.imageMu.Lock()
	defer ns.imageMu.Unlock()
	return ns.image
}

// NewFrameReady reports whether a frame was presented since the last call.
func (ns *NetStream) NewFrameReady() bool {
	ns.imageMu.Lock()
	defer ns.imageMu.Unlock()

	ready := ns.newFrame
	ns.newFrame = false
	return ready
}

// Time returns the playback position in seconds.
func (ns *NetStream) Time() float64 {
	if ns.currentSession() == nil {
		return 0
	}
	return ns.clock.Elapsed()
}

// BytesLoaded returns how many bytes of the stream have been loaded.
func (ns *NetStream) BytesLoaded() int64 {
	if s := ns.currentSession(); s != nil {
		if src := s.source(); src != nil {
			return src.BytesLoaded()
		}
	}
	return 0
}

// BytesTotal returns the stream size, or 0 when unknown.
func (ns *NetStream) BytesTotal() int64 {
	if s := ns.currentSession(); s != nil {
		if src := s.source(); src != nil {
			return src.BytesTotal()
		}
	}
	return 0
}

// SessionID returns the id of the current play session, or "".
func (ns *NetStream) SessionID() string {
	if s := ns.currentSession(); s != nil {
		return s.id
	}
	return ""
}

// ReadAudio copies queued PCM into dst without blocking. It returns false
// once playback has stopped, failed or never started; outside Playing it
// returns 0 bytes.
func (ns *NetStream) ReadAudio(dst []byte) (int, bool) {
	switch ns.State() {
	case StateIdle, StateStopped, StateError:
		return 0, false
	case StatePlaying:
	default:
		return 0, true
	}

	n := 0
	for n < len(dst) {
		found := ns.audio.ConsumeFront(func(u *AudioUnit) bool {
			c := copy(dst[n:], u.Data[u.pos:])
			u.pos += c
			n += c
			return u.Remaining() == 0
		})
		if !found {
			break
		}
	}
	return n, true
}

// Close stops playback and releases the session. It is safe to call more
// than once; after it returns no further statuses are dispatched.
func (ns *NetStream) Close() {
	ns.sessionMu.Lock()
	s := ns.session
	ns.session = nil
	ns.sessionMu.Unlock()

	if s == nil {
		return
	}

	s.log.Info("closing")
	ns.teardown(s)

	ns.stateMu.Lock()
	if ns.state.Active() {
		ns.setStateLocked(StateStopped)
	}
	ns.stateMu.Unlock()

	ns.statuses.Close()
}

// teardown stops the decode goroutine and releases everything it owned.
func (ns *NetStream) teardown(s *playSession) {
	s.stop()
	s.closeSource()
	s.wg.Wait()

	s.decodeMu.Lock()
	if s.backend != nil {
		s.backend.Close()
		s.backend = nil
	}
	s.clearPendingLocked()
	s.decodeMu.Unlock()

	ns.video.Flush()
	ns.audio.Flush()
}
