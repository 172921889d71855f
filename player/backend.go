package player

import (
	"context"
	"errors"
	"log/slog"

	"github.com/njyeung/netplay/source"
)

// Backend reads and decodes one opened media stream. It is driven by a single
// decode goroutine; Seek and Close are serialized with it by the caller.
type Backend interface {
	// ReadPacket returns the next packet. io.EOF means no more data is
	// available right now; whether more will come is up to the source.
	ReadPacket() (*Packet, error)

	// DecodeVideo decodes a video packet into a frame, or nil when the
	// decoder needs more input.
	DecodeVideo(pkt *Packet, layout PixelLayout) (*VideoFrame, error)

	// DecodeAudio decodes an audio packet into PCM, or nil when the decoder
	// needs more input.
	DecodeAudio(pkt *Packet) (*AudioUnit, error)

	HasAudio() bool

	// FrameDelay is the nominal video frame duration in seconds.
	FrameDelay() float64

	// Seek repositions near seconds and returns the landed position.
	Seek(seconds float64) (float64, error)

	Close()
}

// ContainerFormat is the result of sniffing the stream header.
type ContainerFormat int

const (
	FormatGeneric ContainerFormat = iota
	FormatFLV
)

func (f ContainerFormat) String() string {
	if f == FormatFLV {
		return "flv"
	}
	return "generic"
}

// SniffFormat picks the container format from the first bytes of a stream.
func SniffFormat(head []byte) ContainerFormat {
	if len(head) >= 3 && string(head[:3]) == "FLV" {
		return FormatFLV
	}
	return FormatGeneric
}

// BackendOptions configures a backend at open time.
type BackendOptions struct {
	// SeekScanLimit bounds how many packets a generic seek reads forward.
	SeekScanLimit int

	// NoAudio skips audio decoding entirely.
	NoAudio bool

	// Width and Height bound the decoded frame size; 0 keeps the source size.
	Width  int
	Height int

	Logger *slog.Logger
}

// BackendOpener opens a backend over src, which is positioned at offset 0.
type BackendOpener func(ctx context.Context, src source.ByteSource, format ContainerFormat, opts BackendOptions) (Backend, error)

// OpenBackend is the default BackendOpener. FLV streams use the tag parser;
// FLV streams carrying codecs the parser path does not decode, and every
// other container, go through FFmpeg's demuxer.
func OpenBackend(ctx context.Context, src source.ByteSource, format ContainerFormat, opts BackendOptions) (Backend, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if format == FormatFLV {
		b, err := openFLVBackend(ctx, src, opts)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, errFLVFallback) {
			return nil, err
		}
		log.Info("flv codec not handled by tag parser, using container demuxer", "error", err)
		if _, err := src.Seek(0); err != nil {
			return nil, err
		}
	}
	return openContainerBackend(ctx, src, opts)
}

// decoders holds the codec side shared by both backends.
type decoders struct {
	video *VideoDecoder
	audio *AudioDecoder
}

func (d *decoders) DecodeVideo(pkt *Packet, layout PixelLayout) (*VideoFrame, error) {
	return d.video.Decode(pkt.raw, layout)
}

func (d *decoders) DecodeAudio(pkt *Packet) (*AudioUnit, error) {
	if d.audio == nil {
		return nil, nil
	}
	pcm, err := d.audio.Decode(pkt.raw)
	if err != nil || len(pcm) == 0 {
		return nil, err
	}
	return &AudioUnit{Data: pcm}, nil
}

func (d *decoders) HasAudio() bool {
	return d.audio != nil
}

func (d *decoders) close() {
	if d.audio != nil {
		d.audio.Close()
		d.audio = nil
	}
	if d.video != nil {
		d.video.Close()
		d.video = nil
	}
}
