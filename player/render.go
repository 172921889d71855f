package player

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"golang.org/x/image/draw"
)

// KittyRenderer renders frames using Kitty's graphics protocol
type KittyRenderer struct {
	mu sync.Mutex

	out     io.Writer
	imageID int
	lastW   int
	lastH   int

	// Cell position for placement (1-indexed row/col)
	cellRow int
	cellCol int

	// Terminal dimensions in cells and pixels
	termCols     int
	termRows     int
	termWidthPx  int
	termHeightPx int

	// transmit through /dev/shm instead of inline base64
	useShm bool
	shmSeq int

	// scratch buffer for converted planar frames
	rgba *image.RGBA
}

// NewKittyRenderer creates a new Kitty graphics renderer
func NewKittyRenderer(out io.Writer) *KittyRenderer {
	return &KittyRenderer{
		out:     out,
		imageID: VideoImageID,
	}
}

// SetOutput changes the output writer
func (r *KittyRenderer) SetOutput(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = w
}

// SetTerminalSize sets the terminal dimensions (cells and pixels)
func (r *KittyRenderer) SetTerminalSize(cols, rows, widthPx, heightPx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.termCols = cols
	r.termRows = rows
	r.termWidthPx = widthPx
	r.termHeightPx = heightPx
}

// SetUseShm enables shared memory transmission. Only enable it after
// ShmSupported reported true.
func (r *KittyRenderer) SetUseShm(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useShm = on
}

// SetCellPosition sets the cell position for video placement (1-indexed)
func (r *KittyRenderer) SetCellPosition(row, col int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cellRow = row
	r.cellCol = col
}

// CenterVideo calculates and sets the cell position to center a video of the given pixel dimensions
func (r *KittyRenderer) CenterVideo(videoWidth, videoHeight int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.termCols > 0 && r.termRows > 0 && r.termWidthPx > 0 && r.termHeightPx > 0 {
		cellW := r.termWidthPx / r.termCols
		cellH := r.termHeightPx / r.termRows

		videoCols := (videoWidth + cellW - 1) / cellW
		videoRows := (videoHeight + cellH - 1) / cellH

		r.cellCol = max((r.termCols-videoCols)/2+1, 1)
		r.cellRow = max((r.termRows-videoRows)/2+1, 1)
	}
}

// RenderFrame draws a decoded frame. Packed RGB frames are sent as is;
// planar YUV frames are converted to RGBA first.
func (r *KittyRenderer) RenderFrame(f *VideoFrame) error {
	if f == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch f.Layout {
	case LayoutRGB:
		if len(f.Data) < f.Width*f.Height*3 {
			return fmt.Errorf("short rgb frame: %d bytes for %dx%d", len(f.Data), f.Width, f.Height)
		}
		return r.writeImageLocked(f.Data, 24, f.Width, f.Height)
	case LayoutYUV:
		src, err := yuvImage(f)
		if err != nil {
			return err
		}
		bounds := src.Bounds()
		if r.rgba == nil || r.rgba.Bounds() != bounds {
			r.rgba = image.NewRGBA(bounds)
		}
		draw.Draw(r.rgba, bounds, src, bounds.Min, draw.Src)
		return r.writeImageLocked(r.rgba.Pix, 32, bounds.Dx(), bounds.Dy())
	default:
		return fmt.Errorf("unknown pixel layout %d", f.Layout)
	}
}

// yuvImage wraps the planes of a YUV420P frame without copying.
func yuvImage(f *VideoFrame) (*image.YCbCr, error) {
	w, h := f.Width, f.Height
	cw, ch := (w+1)/2, (h+1)/2
	ySize, cSize := w*h, cw*ch
	if len(f.Data) < ySize+2*cSize {
		return nil, fmt.Errorf("short yuv frame: %d bytes for %dx%d", len(f.Data), w, h)
	}
	return &image.YCbCr{
		Y:              f.Data[:ySize],
		Cb:             f.Data[ySize : ySize+cSize],
		Cr:             f.Data[ySize+cSize : ySize+2*cSize],
		YStride:        w,
		CStride:        cw,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, w, h),
	}, nil
}

// ScaleFrame converts f to an RGBA image fitted into maxW x maxH.
func ScaleFrame(f *VideoFrame, maxW, maxH int) (*image.RGBA, error) {
	var src image.Image
	switch f.Layout {
	case LayoutYUV:
		img, err := yuvImage(f)
		if err != nil {
			return nil, err
		}
		src = img
	default:
		if len(f.Data) < f.Width*f.Height*3 {
			return nil, fmt.Errorf("short rgb frame: %d bytes for %dx%d", len(f.Data), f.Width, f.Height)
		}
		img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
		for i, j := 0, 0; i < f.Width*f.Height*3; i, j = i+3, j+4 {
			img.Pix[j] = f.Data[i]
			img.Pix[j+1] = f.Data[i+1]
			img.Pix[j+2] = f.Data[i+2]
			img.Pix[j+3] = 0xff
		}
		src = img
	}

	w, h := fitSize(f.Width, f.Height, maxW, maxH)
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// writeImageLocked transmits pixel data as the video image. Must hold r.mu.
func (r *KittyRenderer) writeImageLocked(pix []byte, format, width, height int) error {
	// one write per frame, inside a synchronized update with the cursor saved
	var buf bytes.Buffer
	buf.WriteString("\x1b[?2026h")
	buf.WriteString("\x1b7")

	if r.lastW > 0 {
		fmt.Fprintf(&buf, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", r.imageID)
	}

	// Move cursor to target cell position for image placement
	if r.cellRow > 0 && r.cellCol > 0 {
		fmt.Fprintf(&buf, "\x1b[%d;%dH", r.cellRow, r.cellCol)
	} else {
		buf.WriteString("\x1b[H")
	}

	if r.useShm {
		r.shmSeq++
		name := fmt.Sprintf("/netplay-%d-%d", os.Getpid(), r.shmSeq)
		if err := writeShm(name, pix); err == nil {
			fmt.Fprintf(&buf, "\x1b_Ga=T,f=%d,s=%d,v=%d,i=%d,q=2,t=s;%s\x1b\\",
				format, width, height, r.imageID, base64.StdEncoding.EncodeToString([]byte(name)))
			return r.finishLocked(&buf, width, height)
		}
		// fall back to inline transmission
	}

	encoded := base64.StdEncoding.EncodeToString(pix)

	// a=T transmits and displays, q=2 silences replies, m=1 marks more
	// chunks. Payloads are split at 4096 bytes.
	const chunkSize = 4096

	first := true
	for len(encoded) > 0 {
		chunk := encoded
		more := 0

		if len(chunk) > chunkSize {
			chunk = encoded[:chunkSize]
			encoded = encoded[chunkSize:]
			more = 1
		} else {
			encoded = ""
		}

		if first {
			fmt.Fprintf(&buf, "\x1b_Ga=T,f=%d,s=%d,v=%d,i=%d,q=2,m=%d;%s\x1b\\",
				format, width, height, r.imageID, more, chunk)
			first = false
		} else {
			fmt.Fprintf(&buf, "\x1b_Gm=%d;%s\x1b\\", more, chunk)
		}
	}

	return r.finishLocked(&buf, width, height)
}

// finishLocked closes the synchronized update and writes it out.
func (r *KittyRenderer) finishLocked(buf *bytes.Buffer, width, height int) error {
	r.lastW = width
	r.lastH = height

	buf.WriteString("\x1b8")
	buf.WriteString("\x1b[?2026l")

	_, err := r.out.Write(buf.Bytes())
	return err
}

// Clear deletes the video image
func (r *KittyRenderer) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastW == 0 {
		return nil
	}
	r.lastW, r.lastH = 0, 0
	_, err := fmt.Fprintf(r.out, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", r.imageID)
	return err
}
