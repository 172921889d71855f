package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/netplay/flv"
	"github.com/njyeung/netplay/source"
)

// errFLVFallback marks FLV streams whose codecs need FFmpeg's own demuxer
// (they carry decoder config in sequence header tags).
var errFLVFallback = errors.New("flv codec needs container demuxer")

var flvVideoDecoders = map[flv.VideoCodec]string{
	flv.VideoH263:     "flv",
	flv.VideoScreen:   "flashsv",
	flv.VideoVP6:      "vp6f",
	flv.VideoVP6Alpha: "vp6a",
	flv.VideoScreenV2: "flashsv2",
}

func flvAudioDecoder(info *flv.AudioInfo) (string, bool) {
	switch info.Codec {
	case flv.AudioPCM, flv.AudioPCMLE:
		if info.Is16Bit {
			return "pcm_s16le", true
		}
		return "pcm_u8", true
	case flv.AudioADPCM:
		return "adpcm_swf", true
	case flv.AudioMP3:
		return "mp3", true
	case flv.AudioNellymoser:
		return "nellymoser", true
	case flv.AudioSpeex:
		return "libspeex", true
	}
	return "", false
}

// flvBackend decodes FLV tags read by the tag parser. It never blocks on the
// source: tags that have not fully loaded read as io.EOF.
type flvBackend struct {
	decoders

	log        *slog.Logger
	parser     *flv.Parser
	videoCodec flv.VideoCodec
	frameDelay float64
}

func openFLVBackend(ctx context.Context, src source.ByteSource, opts BackendOptions) (*flvBackend, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var parser *flv.Parser
	for {
		var err error
		parser, err = flv.NewParser(src)
		if err == nil {
			break
		}
		if !errors.Is(err, flv.ErrNeedMore) {
			return nil, err
		}
		if err := sleepCtx(ctx, eofPollInterval); err != nil {
			return nil, err
		}
	}

	// wait until the first tag of each stream is in
	for {
		ok, err := parser.Probe()
		if err != nil {
			return nil, fmt.Errorf("failed to probe flv: %w", err)
		}
		if ok {
			break
		}
		if err := sleepCtx(ctx, eofPollInterval); err != nil {
			return nil, err
		}
	}

	vinfo := parser.VideoInfo()
	if vinfo == nil {
		return nil, ErrNoVideoStream
	}
	if vinfo.Codec == flv.VideoAVC {
		return nil, fmt.Errorf("%w: avc", errFLVFallback)
	}
	if ainfo := parser.AudioInfo(); ainfo != nil && ainfo.Codec == flv.AudioAAC && !opts.NoAudio {
		return nil, fmt.Errorf("%w: aac", errFLVFallback)
	}

	name, ok := flvVideoDecoders[vinfo.Codec]
	if !ok {
		return nil, fmt.Errorf("%w: flv video codec %d", ErrUnsupportedCodec, vinfo.Codec)
	}
	video, err := NewVideoDecoderByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create video decoder: %w", err)
	}
	video.SetSize(opts.Width, opts.Height)

	b := &flvBackend{
		decoders:   decoders{video: video},
		log:        log,
		parser:     parser,
		videoCodec: vinfo.Codec,
		frameDelay: defaultFrameDelay,
	}
	if d := parser.VideoFrameDelay(); d > 0 {
		b.frameDelay = float64(d) / 1000
	}

	if ainfo := parser.AudioInfo(); ainfo != nil && !opts.NoAudio {
		b.audio, err = openFLVAudio(ainfo)
		if err != nil {
			log.Warn("audio decoder unavailable, playing video only", "codec", ainfo.Codec, "error", err)
		}
	}

	log.Debug("flv backend opened", "video_codec", name, "audio", b.audio != nil, "frame_delay", b.frameDelay)
	return b, nil
}

func openFLVAudio(info *flv.AudioInfo) (*AudioDecoder, error) {
	name, ok := flvAudioDecoder(info)
	if !ok {
		return nil, fmt.Errorf("%w: flv audio codec %d", ErrUnsupportedCodec, info.Codec)
	}
	rate := info.SampleRate
	if info.Codec == flv.AudioSpeex {
		// the rate field is ignored for speex
		rate = 16000
	}
	return NewAudioDecoderByName(name, rate, info.Stereo)
}

func (b *flvBackend) ReadPacket() (*Packet, error) {
	for {
		tag, err := b.parser.NextMediaTag()
		if err != nil {
			if errors.Is(err, flv.ErrNeedMore) {
				return nil, io.EOF
			}
			return nil, err
		}

		kind := StreamVideo
		payload := tag.Data[1:]
		if tag.Type == flv.TagAudio {
			if b.audio == nil {
				continue
			}
			kind = StreamAudio
		} else if b.videoCodec == flv.VideoVP6 || b.videoCodec == flv.VideoVP6Alpha {
			// skip the size adjustment byte
			if len(payload) < 2 {
				continue
			}
			payload = payload[1:]
		}
		if len(payload) == 0 {
			continue
		}

		raw := astiav.AllocPacket()
		if err := raw.FromData(payload); err != nil {
			raw.Free()
			return nil, fmt.Errorf("failed to fill packet: %w", err)
		}

		return &Packet{
			Kind:   kind,
			DTS:    float64(tag.Timestamp) / 1000,
			HasDTS: true,
			raw:    raw,
		}, nil
	}
}

func (b *flvBackend) FrameDelay() float64 {
	return b.frameDelay
}

// Seek lands on the last keyframe at or before seconds among loaded tags.
func (b *flvBackend) Seek(seconds float64) (float64, error) {
	landed, err := b.parser.Seek(flvSeekTime(seconds))
	if err != nil {
		return 0, err
	}
	return float64(landed) / 1000, nil
}

// flvSeekTime converts seconds to an FLV tag timestamp, saturating at the
// ends of the uint32 range.
func flvSeekTime(seconds float64) uint32 {
	ms := math.Round(seconds * 1000)
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0
	case ms >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(ms)
}

func (b *flvBackend) Close() {
	b.decoders.close()
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
