package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/njyeung/netplay/source"
)

// probeRetryDelay is how long Probe waits for a still loading source.
const probeRetryDelay = 20 * time.Millisecond

// ProbeOptions configures Probe. Zero values use defaults.
type ProbeOptions struct {
	// MaxPackets bounds how many packets are read; 0 reads 256.
	MaxPackets int

	NoAudio       bool
	SeekScanLimit int

	OpenSource  func(ctx context.Context, url string) (source.ByteSource, error)
	OpenBackend BackendOpener
	Logger      *slog.Logger
}

// ProbeInfo describes an opened stream and the packets read from its start.
type ProbeInfo struct {
	URL        string  `json:"url"`
	Format     string  `json:"format"`
	HasAudio   bool    `json:"has_audio"`
	FrameDelay float64 `json:"frame_delay"`
	BytesTotal int64   `json:"bytes_total"`

	VideoPackets int     `json:"video_packets"`
	AudioPackets int     `json:"audio_packets"`
	FirstDTS     float64 `json:"first_dts"`
	LastDTS      float64 `json:"last_dts"`
}

// FrameRate is the nominal video frame rate, or 0 when unknown.
func (i ProbeInfo) FrameRate() float64 {
	if i.FrameDelay <= 0 {
		return 0
	}
	return 1 / i.FrameDelay
}

// Probe opens url the way Play does and reads packets from its start without
// decoding them. Reading stops at MaxPackets, at the end of a fully loaded
// source, or when ctx is done.
func Probe(ctx context.Context, url string, opts ProbeOptions) (ProbeInfo, error) {
	if opts.MaxPackets <= 0 {
		opts.MaxPackets = 256
	}
	if opts.SeekScanLimit <= 0 {
		opts.SeekScanLimit = DefaultSeekScanLimit
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

	url = strings.TrimPrefix(url, "mp3:")
	info := ProbeInfo{URL: url}

	src, err := opts.OpenSource(ctx, url)
	if err != nil {
		return info, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	head := make([]byte, 3)
	if _, err := io.ReadFull(src, head); err != nil {
		return info, fmt.Errorf("failed to read stream header: %w", err)
	}
	if _, err := src.Seek(0); err != nil {
		return info, fmt.Errorf("failed to rewind source: %w", err)
	}

	format := SniffFormat(head)
	info.Format = format.String()

	backend, err := opts.OpenBackend(ctx, src, format, BackendOptions{
		SeekScanLimit: opts.SeekScanLimit,
		NoAudio:       opts.NoAudio,
		Logger:        opts.Logger,
	})
	if err != nil {
		return info, fmt.Errorf("failed to open %s backend: %w", format, err)
	}
	defer backend.Close()

	info.HasAudio = backend.HasAudio()
	info.FrameDelay = backend.FrameDelay()

	firstDTS := true
	for info.VideoPackets+info.AudioPackets < opts.MaxPackets {
		pkt, err := backend.ReadPacket()
		if errors.Is(err, io.EOF) {
			if src.LoadCompleted() {
				break
			}
			if err := src.Err(); err != nil {
				return info, fmt.Errorf("source failed: %w", err)
			}
			if err := sleepCtx(ctx, probeRetryDelay); err != nil {
				break
			}
			continue
		}
		if err != nil {
			return info, fmt.Errorf("failed to read packet: %w", err)
		}

		switch pkt.Kind {
		case StreamVideo:
			info.VideoPackets++
			if pkt.HasDTS {
				if firstDTS {
					info.FirstDTS = pkt.DTS
					firstDTS = false
				}
				info.LastDTS = pkt.DTS
			}
		case StreamAudio:
			info.AudioPackets++
		}
		pkt.Free()
	}

	info.BytesTotal = src.BytesTotal()
	return info, nil
}
