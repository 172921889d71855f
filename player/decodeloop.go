package player

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type stepResult int

const (
	stepDecoded stepResult = iota // one packet read and decoded
	stepBlocked                   // a unit is still waiting for queue space
	stepEOF                       // no packet available right now
)

// run is the decode goroutine of one play session.
func (ns *NetStream) run(s *playSession) {
	if err := ns.open(s); err != nil {
		if !s.stopped() {
			s.log.Error("failed to open stream", "error", err)
		}
		return
	}
	ns.loop(s)
	s.log.Debug("decode loop exited")
}

// open connects the source, sniffs the container and opens the backend.
// Failures leave the stream in StateError with a status queued.
func (ns *NetStream) open(s *playSession) error {
	url := strings.TrimPrefix(s.url, "mp3:")

	src, err := ns.opts.OpenSource(s.ctx, url)
	if err != nil {
		return ns.fail(s, StatusPlayStreamNotFound, fmt.Errorf("failed to open source: %w", err))
	}
	if !s.setSource(src) {
		return errors.New("stopped while opening")
	}

	head := make([]byte, 3)
	if _, err := io.ReadFull(src, head); err != nil {
		return ns.fail(s, StatusBufferStreamNotFound, fmt.Errorf("failed to read stream header: %w", err))
	}
	if _, err := src.Seek(0); err != nil {
		return ns.fail(s, StatusBufferStreamNotFound, fmt.Errorf("failed to rewind source: %w", err))
	}

	format := SniffFormat(head)
	backend, err := ns.opts.OpenBackend(s.ctx, src, format, BackendOptions{
		SeekScanLimit: ns.opts.SeekScanLimit,
		NoAudio:       ns.opts.NoAudio,
		Width:         ns.opts.Width,
		Height:        ns.opts.Height,
		Logger:        s.log,
	})
	if err != nil {
		return ns.fail(s, StatusPlayStreamNotFound, fmt.Errorf("failed to open %s backend: %w", format, err))
	}

	s.decodeMu.Lock()
	s.backend = backend
	s.frameDelay = backend.FrameDelay()
	s.decodeMu.Unlock()

	s.log.Info("stream opened", "format", format, "audio", backend.HasAudio(), "frame_delay", s.frameDelay)

	ns.stateMu.Lock()
	defer ns.stateMu.Unlock()
	if err := ns.setStateLocked(StateBuffering); err != nil {
		// closed while opening
		return err
	}
	ns.emit(StatusPlayStart)
	return nil
}

// fail moves to StateError and queues code, unless the session was stopped.
func (ns *NetStream) fail(s *playSession, code string, err error) error {
	if s.stopped() {
		return err
	}
	ns.emit(code)
	ns.setState(StateError)
	return err
}

// loop decodes until the session stops or the stream ends.
func (ns *NetStream) loop(s *playSession) {
	for !s.stopped() {
		switch ns.State() {
		case StatePaused:
			if !s.sleep(pausePollInterval) {
				return
			}
			continue
		case StateIdle, StateStopped, StateError:
			return
		}

		switch ns.step(s) {
		case stepBlocked:
			if !s.sleep(ns.blockedWait()) {
				return
			}
		case stepEOF:
			if err := s.sourceErr(); err != nil {
				// loading stopped early; nothing more will arrive
				s.log.Error("source failed", "error", err)
				ns.fail(s, StatusPlayStreamNotFound, err)
				return
			}
			if ns.finishIfDrained(s) {
				return
			}
			if !s.sleep(eofPollInterval) {
				return
			}
		}
	}
}

// step runs one decode iteration: retry pending units, or read and decode
// one packet.
func (ns *NetStream) step(s *playSession) stepResult {
	s.decodeMu.Lock()
	defer s.decodeMu.Unlock()

	if s.backend == nil {
		return stepEOF
	}
	if !ns.retryPendingLocked(s) {
		return stepBlocked
	}

	pkt, err := s.backend.ReadPacket()
	if err != nil {
		if !errors.Is(err, io.EOF) && !s.stopped() {
			s.log.Warn("failed to read packet", "error", err)
		}
		if s.loadCompleted() {
			s.endOfStream.Store(true)
		}
		return stepEOF
	}
	defer pkt.Free()

	switch pkt.Kind {
	case StreamVideo:
		ns.decodeVideoLocked(s, pkt)
	case StreamAudio:
		ns.decodeAudioLocked(s, pkt)
	}
	return stepDecoded
}

// retryPendingLocked pushes units left over from a full queue and reports
// whether both slots are now empty. Must hold s.decodeMu.
func (ns *NetStream) retryPendingLocked(s *playSession) bool {
	if s.pendingVideo != nil && ns.video.Push(s.pendingVideo) {
		s.pendingVideo = nil
	}
	if s.pendingAudio != nil && ns.audio.Push(s.pendingAudio) {
		s.pendingAudio = nil
	}
	pending := s.pendingVideo != nil || s.pendingAudio != nil
	s.pending.Store(pending)
	return !pending
}

// decodeVideoLocked decodes pkt and assigns the frame its PTS: a valid
// non-zero DTS becomes the media clock, otherwise the clock carries on from
// the previous frame. Must hold s.decodeMu.
func (ns *NetStream) decodeVideoLocked(s *playSession, pkt *Packet) {
	frame, err := s.backend.DecodeVideo(pkt, ns.opts.RenderMode())
	if err != nil {
		s.log.Warn("dropping video packet", "error", err)
		ns.metrics.PacketDropped(StreamVideo)
		return
	}
	if frame == nil {
		return
	}

	if pkt.HasDTS && pkt.DTS != 0 {
		s.videoClock = pkt.DTS
	}
	frame.PTS = s.videoClock

	delay := s.frameDelay
	if delay <= 0 {
		delay = defaultFrameDelay
	}
	s.videoClock += delay * (1 + float64(frame.RepeatPict)/2)
	s.mediaClock.Store(s.videoClock)
	s.markLoaded(frame.PTS + delay)
	ns.metrics.FrameDecoded(StreamVideo)

	if !ns.video.Push(frame) {
		s.pendingVideo = frame
		s.pending.Store(true)
	}
}

// decodeAudioLocked decodes pkt into a PCM unit stamped from the audio
// clock. Must hold s.decodeMu.
func (ns *NetStream) decodeAudioLocked(s *playSession, pkt *Packet) {
	if !s.backend.HasAudio() {
		return
	}

	unit, err := s.backend.DecodeAudio(pkt)
	if err != nil {
		s.log.Warn("dropping audio packet", "error", err)
		ns.metrics.PacketDropped(StreamAudio)
		return
	}
	if unit == nil || len(unit.Data) == 0 {
		return
	}

	if pkt.HasDTS && pkt.DTS != 0 {
		s.audioClock = pkt.DTS
	}
	unit.PTS = s.audioClock
	unit.Duration = float64(len(unit.Data)) / audioBytesPerSecond
	s.audioClock += unit.Duration
	s.markLoaded(unit.PTS + unit.Duration)
	ns.metrics.FrameDecoded(StreamAudio)

	if !ns.audio.Push(unit) {
		s.pendingAudio = unit
		s.pending.Store(true)
	}
}

// finishIfDrained stops playback once a completely loaded stream has been
// fully presented.
func (ns *NetStream) finishIfDrained(s *playSession) bool {
	if !s.endOfStream.Load() {
		return false
	}
	if ns.video.Len() > 0 || ns.audio.Len() > 0 || s.pending.Load() {
		return false
	}
	if !ns.compareAndSetState(StatePlaying, StateStopped) {
		return false
	}
	s.log.Info("playback finished")
	ns.emit(StatusPlayStop)
	return true
}

// blockedWait is how long the loop sleeps while a unit waits for queue space:
// until the front video frame is due, within bounds.
func (ns *NetStream) blockedWait() time.Duration {
	if ns.State() != StatePlaying {
		return eofPollInterval
	}
	f, ok := ns.video.Front()
	if !ok {
		return minBlockedWait
	}

	d := time.Duration((f.PTS - ns.clock.Elapsed()) * float64(time.Second))
	if d < minBlockedWait {
		return minBlockedWait
	}
	if d > maxBlockedWait {
		return maxBlockedWait
	}
	return d
}
