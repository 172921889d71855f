package player

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
)

// VideoDecoder decodes video packets and converts frames to the requested
// pixel layout, scaled to fit the display box.
type VideoDecoder struct {
	codecCtx *astiav.CodecContext
	swsCtx   *astiav.SoftwareScaleContext
	frame    *astiav.Frame
	outFrame *astiav.Frame

	// display box, 0 keeps the source size
	maxWidth  int
	maxHeight int

	// current scaler configuration
	srcWidth  int
	srcHeight int
	srcFormat astiav.PixelFormat
	dstWidth  int
	dstHeight int
	layout    PixelLayout

	mu     sync.Mutex
	closed bool
}

// NewVideoDecoder creates a decoder from stream codec parameters.
func NewVideoDecoder(codecParams *astiav.CodecParameters) (*VideoDecoder, error) {
	codec := astiav.FindDecoder(codecParams.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("%w: video %s", ErrUnsupportedCodec, codecParams.CodecID())
	}
	return openVideoDecoder(codec, func(cc *astiav.CodecContext) error {
		return codecParams.ToCodecContext(cc)
	})
}

// NewVideoDecoderByName creates a decoder for a raw elementary stream whose
// parameters come from the bitstream itself.
func NewVideoDecoderByName(name string) (*VideoDecoder, error) {
	codec := astiav.FindDecoderByName(name)
	if codec == nil {
		return nil, fmt.Errorf("%w: video %s", ErrUnsupportedCodec, name)
	}
	return openVideoDecoder(codec, nil)
}

func openVideoDecoder(codec *astiav.Codec, configure func(*astiav.CodecContext) error) (*VideoDecoder, error) {
	v := &VideoDecoder{}

	v.codecCtx = astiav.AllocCodecContext(codec)
	if v.codecCtx == nil {
		return nil, fmt.Errorf("failed to allocate video codec context")
	}

	if configure != nil {
		if err := configure(v.codecCtx); err != nil {
			v.Close()
			return nil, fmt.Errorf("failed to copy video codec params: %w", err)
		}
	}

	if err := v.codecCtx.Open(codec, nil); err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to open video codec: %w", err)
	}

	v.frame = astiav.AllocFrame()
	return v, nil
}

// SetSize sets the display box frames are scaled to fit.
func (v *VideoDecoder) SetSize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.maxWidth = width
	v.maxHeight = height
	v.freeScalerLocked()
}

func (v *VideoDecoder) freeScalerLocked() {
	if v.swsCtx != nil {
		v.swsCtx.Free()
		v.swsCtx = nil
	}
	if v.outFrame != nil {
		v.outFrame.Free()
		v.outFrame = nil
	}
}

// ensureScalerLocked (re)creates the scaler when the source frame or the
// requested layout changed. Must hold v.mu.
func (v *VideoDecoder) ensureScalerLocked(layout PixelLayout) error {
	w, h, pf := v.frame.Width(), v.frame.Height(), v.frame.PixelFormat()
	if v.swsCtx != nil && w == v.srcWidth && h == v.srcHeight && pf == v.srcFormat && layout == v.layout {
		return nil
	}
	v.freeScalerLocked()

	v.srcWidth, v.srcHeight, v.srcFormat, v.layout = w, h, pf, layout
	v.dstWidth, v.dstHeight = fitSize(w, h, v.maxWidth, v.maxHeight)
	if layout == LayoutYUV {
		// 4:2:0 chroma needs even dimensions
		v.dstWidth &^= 1
		v.dstHeight &^= 1
	}
	if v.dstWidth <= 0 || v.dstHeight <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", w, h)
	}

	dstFormat := astiav.PixelFormatRgb24
	if layout == LayoutYUV {
		dstFormat = astiav.PixelFormatYuv420P
	}

	var err error
	v.swsCtx, err = astiav.CreateSoftwareScaleContext(
		w, h, pf,
		v.dstWidth, v.dstHeight, dstFormat,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("failed to create sws context: %w", err)
	}

	v.outFrame = astiav.AllocFrame()
	v.outFrame.SetWidth(v.dstWidth)
	v.outFrame.SetHeight(v.dstHeight)
	v.outFrame.SetPixelFormat(dstFormat)
	if err := v.outFrame.AllocBuffer(1); err != nil {
		return fmt.Errorf("failed to allocate output frame buffer: %w", err)
	}
	return nil
}

// Decode sends pkt to the decoder and returns the decoded frame, or nil when
// the decoder needs more input. The frame PTS is left for the caller.
func (v *VideoDecoder) Decode(pkt *astiav.Packet, layout PixelLayout) (*VideoFrame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, fmt.Errorf("video decoder closed")
	}

	if err := v.codecCtx.SendPacket(pkt); err != nil {
		return nil, fmt.Errorf("failed to send video packet: %w", err)
	}

	if err := v.codecCtx.ReceiveFrame(v.frame); err != nil {
		if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to receive video frame: %w", err)
	}
	defer v.frame.Unref()

	if err := v.ensureScalerLocked(layout); err != nil {
		return nil, err
	}
	if err := v.swsCtx.ScaleFrame(v.frame, v.outFrame); err != nil {
		return nil, fmt.Errorf("failed to scale frame: %w", err)
	}

	raw, err := v.outFrame.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get frame bytes: %w", err)
	}

	// Copy the data since the frame buffer will be reused
	data := make([]byte, len(raw))
	copy(data, raw)

	return &VideoFrame{
		Data:   data,
		Width:  v.dstWidth,
		Height: v.dstHeight,
		Layout: layout,
	}, nil
}

// Close releases all resources
func (v *VideoDecoder) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true

	v.freeScalerLocked()
	if v.frame != nil {
		v.frame.Free()
		v.frame = nil
	}
	if v.codecCtx != nil {
		v.codecCtx.Free()
		v.codecCtx = nil
	}
}

// fitSize computes aspect-correct dimensions to fit in the target area.
func fitSize(srcW, srcH, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 || srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)

	if srcAspect > dstAspect {
		return maxW, int(float64(maxW) / srcAspect)
	}
	return int(float64(maxH) * srcAspect), maxH
}
