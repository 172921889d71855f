package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/netplay/source"
)

const (
	ioBufferSize = 4096

	// FFmpeg seek whence flags
	avseekSize  = 0x10000
	avseekForce = 0x20000
)

// ioAdapter exposes a ByteSource to FFmpeg's custom IO callbacks.
type ioAdapter struct {
	src source.ByteSource
	pos int64
}

func (a *ioAdapter) read(b []byte) (int, error) {
	n, err := a.src.Read(b)
	a.pos += int64(n)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

func (a *ioAdapter) seek(offset int64, whence int) (int64, error) {
	whence &^= avseekForce

	var abs int64
	switch whence {
	case avseekSize:
		if total := a.src.BytesTotal(); total > 0 {
			return total, nil
		}
		return -1, errors.New("size unknown")
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = a.pos + offset
	case io.SeekEnd:
		total := a.src.BytesTotal()
		if total <= 0 {
			return -1, errors.New("size unknown")
		}
		abs = total + offset
	default:
		return -1, fmt.Errorf("unsupported whence %d", whence)
	}

	pos, err := a.src.Seek(abs)
	if err != nil {
		return -1, err
	}
	a.pos = pos
	return pos, nil
}

// containerBackend demuxes any container FFmpeg can probe, reading through
// the ByteSource with a custom IO context.
type containerBackend struct {
	decoders

	log       *slog.Logger
	io        *ioAdapter
	ioCtx     *astiav.IOContext
	formatCtx *astiav.FormatContext

	videoIdx int
	audioIdx int

	// Time base for PTS conversion
	videoTimeBase astiav.Rational
	audioTimeBase astiav.Rational

	frameDelay float64
	scanLimit  int

	// packet found by the last seek scan, returned by the next read
	replay *Packet

	mu     sync.Mutex
	closed bool
}

func openContainerBackend(ctx context.Context, src source.ByteSource, opts BackendOptions) (*containerBackend, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	b := &containerBackend{
		log:       log,
		io:        &ioAdapter{src: src},
		videoIdx:  -1,
		audioIdx:  -1,
		scanLimit: opts.SeekScanLimit,
	}
	if b.scanLimit <= 0 {
		b.scanLimit = DefaultSeekScanLimit
	}

	b.formatCtx = astiav.AllocFormatContext()
	if b.formatCtx == nil {
		return nil, fmt.Errorf("failed to allocate format context")
	}

	var err error
	b.ioCtx, err = astiav.AllocIOContext(ioBufferSize, false, b.io.read, b.io.seek, nil)
	if err != nil {
		b.formatCtx.Free()
		return nil, fmt.Errorf("failed to allocate io context: %w", err)
	}
	b.formatCtx.SetPb(b.ioCtx)

	if err := b.formatCtx.OpenInput("", nil, nil); err != nil {
		b.ioCtx.Free()
		b.formatCtx.Free()
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	if ctx.Err() != nil {
		b.Close()
		return nil, ctx.Err()
	}

	if err := b.formatCtx.FindStreamInfo(nil); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to find stream info: %w", err)
	}

	var videoStream, audioStream *astiav.Stream
	for _, stream := range b.formatCtx.Streams() {
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if videoStream == nil {
				videoStream = stream
			}
		case astiav.MediaTypeAudio:
			if audioStream == nil {
				audioStream = stream
			}
		}
	}

	if videoStream == nil {
		b.Close()
		return nil, ErrNoVideoStream
	}
	b.videoIdx = videoStream.Index()
	b.videoTimeBase = videoStream.TimeBase()

	b.video, err = NewVideoDecoder(videoStream.CodecParameters())
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create video decoder: %w", err)
	}
	b.video.SetSize(opts.Width, opts.Height)

	b.frameDelay = defaultFrameDelay
	if fr := videoStream.AvgFrameRate(); fr.Num() > 0 && fr.Den() > 0 {
		b.frameDelay = float64(fr.Den()) / float64(fr.Num())
	}

	if audioStream != nil && !opts.NoAudio {
		b.audio, err = NewAudioDecoder(audioStream.CodecParameters())
		if err != nil {
			log.Warn("audio decoder unavailable, playing video only", "codec", audioStream.CodecParameters().CodecID(), "error", err)
		} else {
			b.audioIdx = audioStream.Index()
			b.audioTimeBase = audioStream.TimeBase()
		}
	}

	log.Debug("container backend opened",
		"video_codec", videoStream.CodecParameters().CodecID(),
		"audio", b.audio != nil,
		"frame_delay", b.frameDelay,
	)
	return b, nil
}

// toSeconds converts a timestamp using the time base
func toSeconds(ts int64, tb astiav.Rational) float64 {
	if tb.Den() == 0 {
		return 0
	}
	return float64(ts) * float64(tb.Num()) / float64(tb.Den())
}

// readLocked reads the next packet of the video or audio stream. Must hold b.mu.
func (b *containerBackend) readLocked() (*Packet, error) {
	if b.closed {
		return nil, fmt.Errorf("demuxer closed")
	}

	for {
		raw := astiav.AllocPacket()
		if raw == nil {
			return nil, fmt.Errorf("failed to allocate packet")
		}

		if err := b.formatCtx.ReadFrame(raw); err != nil {
			raw.Free()
			if errors.Is(err, astiav.ErrEof) {
				return nil, io.EOF
			}
			return nil, err
		}

		var kind StreamKind
		var tb astiav.Rational
		switch raw.StreamIndex() {
		case b.videoIdx:
			kind, tb = StreamVideo, b.videoTimeBase
		case b.audioIdx:
			kind, tb = StreamAudio, b.audioTimeBase
		default:
			raw.Free()
			continue
		}

		pkt := &Packet{
			Kind:     kind,
			Duration: toSeconds(raw.Duration(), tb),
			raw:      raw,
		}
		if dts := raw.Dts(); dts != astiav.NoPtsValue {
			pkt.DTS = toSeconds(dts, tb)
			pkt.HasDTS = true
		}
		return pkt, nil
	}
}

func (b *containerBackend) ReadPacket() (*Packet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.replay != nil {
		pkt := b.replay
		b.replay = nil
		return pkt, nil
	}
	return b.readLocked()
}

func (b *containerBackend) FrameDelay() float64 {
	return b.frameDelay
}

// Seek seeks the video stream backward to seconds, then reads forward to the
// first video packet with a non-zero timestamp, which becomes the next packet
// read. The scan gives up after scanLimit packets and rewinds to the start.
func (b *containerBackend) Seek(seconds float64) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("demuxer closed")
	}
	if b.replay != nil {
		b.replay.Free()
		b.replay = nil
	}

	ts := int64(0)
	if num := b.videoTimeBase.Num(); num > 0 {
		ts = int64(seconds * float64(b.videoTimeBase.Den()) / float64(num))
	}
	flags := astiav.NewSeekFlags(astiav.SeekFlagBackward)
	if err := b.formatCtx.SeekFrame(b.videoIdx, ts, flags); err != nil {
		return 0, fmt.Errorf("failed to seek: %w", err)
	}
	if ts == 0 {
		return 0, nil
	}

	for i := 0; i < b.scanLimit; i++ {
		pkt, err := b.readLocked()
		if err != nil {
			return 0, fmt.Errorf("failed to resync after seek: %w", err)
		}
		if pkt.Kind == StreamVideo && pkt.HasDTS && pkt.DTS != 0 {
			b.replay = pkt
			return pkt.DTS, nil
		}
		pkt.Free()
	}

	b.log.Warn("seek resync gave up, rewinding", "target", seconds, "scanned", b.scanLimit)
	if err := b.formatCtx.SeekFrame(b.videoIdx, 0, flags); err != nil {
		return 0, fmt.Errorf("failed to rewind after seek scan: %w", err)
	}
	return 0, ErrSeekScanLimit
}

// Close releases all resources
func (b *containerBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	if b.replay != nil {
		b.replay.Free()
		b.replay = nil
	}
	b.decoders.close()
	if b.formatCtx != nil {
		b.formatCtx.CloseInput()
		b.formatCtx.Free()
		b.formatCtx = nil
	}
	if b.ioCtx != nil {
		b.ioCtx.Free()
		b.ioCtx = nil
	}
}
