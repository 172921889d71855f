package player

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// AudioDecoder decodes audio packets and resamples them to s16le stereo at
// AudioSampleRate.
type AudioDecoder struct {
	codecCtx *astiav.CodecContext
	swrCtx   *astiav.SoftwareResampleContext
	frame    *astiav.Frame

	mu     sync.Mutex
	closed bool
}

// NewAudioDecoder creates a decoder from stream codec parameters.
func NewAudioDecoder(codecParams *astiav.CodecParameters) (*AudioDecoder, error) {
	codec := astiav.FindDecoder(codecParams.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("%w: audio %s", ErrUnsupportedCodec, codecParams.CodecID())
	}
	return openAudioDecoder(codec, func(cc *astiav.CodecContext) error {
		return codecParams.ToCodecContext(cc)
	})
}

// NewAudioDecoderByName creates a decoder for a raw elementary stream with
// the given sample rate and channel count.
func NewAudioDecoderByName(name string, sampleRate int, stereo bool) (*AudioDecoder, error) {
	codec := astiav.FindDecoderByName(name)
	if codec == nil {
		return nil, fmt.Errorf("%w: audio %s", ErrUnsupportedCodec, name)
	}
	return openAudioDecoder(codec, func(cc *astiav.CodecContext) error {
		cc.SetSampleRate(sampleRate)
		if stereo {
			cc.SetChannelLayout(astiav.ChannelLayoutStereo)
		} else {
			cc.SetChannelLayout(astiav.ChannelLayoutMono)
		}
		return nil
	})
}

func openAudioDecoder(codec *astiav.Codec, configure func(*astiav.CodecContext) error) (*AudioDecoder, error) {
	a := &AudioDecoder{}

	a.codecCtx = astiav.AllocCodecContext(codec)
	if a.codecCtx == nil {
		return nil, fmt.Errorf("failed to allocate audio codec context")
	}

	if err := configure(a.codecCtx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to copy audio codec params: %w", err)
	}

	if err := a.codecCtx.Open(codec, nil); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open audio codec: %w", err)
	}

	a.frame = astiav.AllocFrame()

	// configured from the first frame
	a.swrCtx = astiav.AllocSoftwareResampleContext()
	if a.swrCtx == nil {
		a.Close()
		return nil, fmt.Errorf("failed to allocate swr context")
	}
	return a, nil
}

// Decode sends pkt to the decoder and returns the PCM of every frame it
// produced, or nil when the decoder needs more input.
func (a *AudioDecoder) Decode(pkt *astiav.Packet) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, fmt.Errorf("audio decoder closed")
	}

	if err := a.codecCtx.SendPacket(pkt); err != nil {
		return nil, fmt.Errorf("failed to send audio packet: %w", err)
	}

	var pcm []byte
	for {
		if err := a.codecCtx.ReceiveFrame(a.frame); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				break
			}
			return pcm, fmt.Errorf("failed to receive audio frame: %w", err)
		}
		pcm = a.resampleLocked(pcm)
		a.frame.Unref()
	}
	return pcm, nil
}

// resampleLocked converts a.frame and appends the result to pcm. Frames that
// fail to resample are skipped. Must hold a.mu.
func (a *AudioDecoder) resampleLocked(pcm []byte) []byte {
	outFrame := astiav.AllocFrame()
	defer outFrame.Free()

	outFrame.SetSampleFormat(astiav.SampleFormatS16)
	outFrame.SetSampleRate(AudioSampleRate)
	outFrame.SetChannelLayout(astiav.ChannelLayoutStereo)

	// room for the rate change plus resampler delay
	nb := a.frame.NbSamples()
	if in := a.frame.SampleRate(); in > 0 {
		nb = nb*AudioSampleRate/in + 256
	}
	outFrame.SetNbSamples(nb)

	if err := outFrame.AllocBuffer(0); err != nil {
		return pcm
	}
	if err := a.swrCtx.ConvertFrame(a.frame, outFrame); err != nil {
		return pcm
	}

	// plane 0 holds interleaved s16: 2 channels * 2 bytes per sample
	byteSize := outFrame.NbSamples() * 4
	plane, err := outFrame.Data().Bytes(0)
	if err != nil || len(plane) < byteSize {
		return pcm
	}
	return append(pcm, plane[:byteSize]...)
}

// Close releases all resources
func (a *AudioDecoder) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true

	if a.frame != nil {
		a.frame.Free()
		a.frame = nil
	}
	if a.swrCtx != nil {
		a.swrCtx.Free()
		a.swrCtx = nil
	}
	if a.codecCtx != nil {
		a.codecCtx.Free()
		a.codecCtx = nil
	}
}

var (
	speakerOnce sync.Once
	speakerErr  error
)

// InitSpeaker opens the audio device once per process.
func InitSpeaker() error {
	speakerOnce.Do(func() {
		sr := beep.SampleRate(AudioSampleRate)
		speakerErr = speaker.Init(sr, sr.N(50*time.Millisecond))
	})
	return speakerErr
}

// PullFunc fills dst with PCM and reports false once playback has ended.
type PullFunc func(dst []byte) (int, bool)

// AudioSink is a beep.Streamer that pulls s16le stereo PCM from a PullFunc
// and plays it through the speaker with volume control.
type AudioSink struct {
	pull   PullFunc
	buf    []byte
	volume *effects.Volume
}

// NewAudioSink creates a sink. volume is linear in [0, 1].
func NewAudioSink(pull PullFunc, volume float64, muted bool) *AudioSink {
	s := &AudioSink{pull: pull}
	s.volume = &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   linearToExp(volume),
		Silent:   muted || volume <= 0,
	}
	return s
}

// Stream implements beep.Streamer.
func (s *AudioSink) Stream(samples [][2]float64) (n int, ok bool) {
	// 4 bytes = 1 stereo sample
	need := len(samples) * 4
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	got, ok := s.pull(buf)
	if !ok {
		return 0, false
	}

	const maxInt16 = 32767.0
	frames := got / 4
	for i := 0; i < frames; i++ {
		b := buf[i*4:]
		left := int16(uint16(b[0]) | uint16(b[1])<<8)
		right := int16(uint16(b[2]) | uint16(b[3])<<8)
		samples[i][0] = float64(left) / maxInt16
		samples[i][1] = float64(right) / maxInt16
	}

	// nothing queued: play silence but keep streaming
	for i := frames; i < len(samples); i++ {
		samples[i][0] = 0
		samples[i][1] = 0
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (s *AudioSink) Err() error {
	return nil
}

// Start begins audio playback
func (s *AudioSink) Start() {
	speaker.Play(s.volume)
}

// Stop removes the sink from the speaker.
func (s *AudioSink) Stop() {
	speaker.Clear()
}

// ToggleMute flips the mute state and returns the new value.
func (s *AudioSink) ToggleMute() bool {
	speaker.Lock()
	defer speaker.Unlock()

	s.volume.Silent = !s.volume.Silent
	return s.volume.Silent
}

// SetVolume sets a linear volume in [0, 1].
func (s *AudioSink) SetVolume(v float64) {
	speaker.Lock()
	defer speaker.Unlock()

	s.volume.Volume = linearToExp(v)
	s.volume.Silent = v <= 0
}

// linearToExp maps a linear gain to the base-2 exponent effects.Volume uses.
func linearToExp(v float64) float64 {
	if v <= 0 {
		return -10
	}
	if v > 1 {
		v = 1
	}
	return math.Log2(v)
}
