package player

import (
	"errors"
	"time"

	"github.com/asticode/go-astiav"
)

func init() {
	// Suppress FFmpeg log messages
	astiav.SetLogLevel(astiav.LogLevelQuiet)
}

var (
	// ErrNoVideoStream is returned when a stream has no decodable video.
	ErrNoVideoStream = errors.New("no video stream found")

	// ErrUnsupportedCodec is returned when no decoder exists for a codec.
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrSeekScanLimit is returned when a seek finds no timestamped video
	// packet within the scan limit.
	ErrSeekScanLimit = errors.New("seek scan limit exceeded")

	// ErrNotPlaying is returned by operations that need an active stream.
	ErrNotPlaying = errors.New("stream not playing")

	// ErrEmptyURL is returned by Play for an empty url.
	ErrEmptyURL = errors.New("empty url")
)

// StreamKind tells which elementary stream a packet belongs to.
type StreamKind int

const (
	StreamVideo StreamKind = iota
	StreamAudio
)

func (k StreamKind) String() string {
	if k == StreamAudio {
		return "audio"
	}
	return "video"
}

// PixelLayout is the pixel layout of decoded video frames.
type PixelLayout int

const (
	LayoutRGB PixelLayout = iota // packed RGB24
	LayoutYUV                    // planar YUV420P
)

func (l PixelLayout) String() string {
	if l == LayoutYUV {
		return "yuv"
	}
	return "rgb"
}

// ParsePixelLayout parses "rgb" or "yuv".
func ParsePixelLayout(s string) (PixelLayout, bool) {
	switch s {
	case "rgb":
		return LayoutRGB, true
	case "yuv":
		return LayoutYUV, true
	}
	return LayoutRGB, false
}

// Packet is one compressed packet read from a backend. It is freed after one
// decode iteration.
type Packet struct {
	Kind     StreamKind
	DTS      float64 // seconds, valid when HasDTS
	HasDTS   bool
	Duration float64 // seconds, 0 when unknown

	raw *astiav.Packet
}

// Free releases the underlying FFmpeg packet.
func (p *Packet) Free() {
	if p.raw != nil {
		p.raw.Free()
		p.raw = nil
	}
}

// VideoFrame is a decoded picture.
type VideoFrame struct {
	Data       []byte // RGB24, or Y, U and V planes back to back
	Width      int
	Height     int
	Layout     PixelLayout
	PTS        float64 // seconds
	RepeatPict int
}

// AudioUnit is a block of decoded s16le stereo PCM at AudioSampleRate. The
// read cursor lets a unit be drained across several pulls.
type AudioUnit struct {
	Data     []byte
	PTS      float64
	Duration float64

	pos int
}

// Remaining returns the bytes not yet drained.
func (u *AudioUnit) Remaining() int {
	return len(u.Data) - u.pos
}

const (
	// AudioSampleRate for resampling
	AudioSampleRate = 44100

	// s16le stereo
	audioBytesPerSecond = AudioSampleRate * 4

	DefaultVideoQueueSize = 30
	DefaultAudioQueueSize = 64
	DefaultBufferTime     = 100 * time.Millisecond
	DefaultSeekScanLimit  = 512

	// Kitty image IDs
	VideoImageID = 1

	// nominal frame spacing when a stream does not report one
	defaultFrameDelay = 0.04

	// added to the video clock when rebuffering after an underrun
	rebufferMarginMs = 1000

	pausePollInterval = 100 * time.Millisecond
	eofPollInterval   = 10 * time.Millisecond
	minBlockedWait    = time.Millisecond
	maxBlockedWait    = 100 * time.Millisecond
)
