package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njyeung/netplay/source"
)

func probeOptions(src *fakeSource, backend *fakeBackend) ProbeOptions {
	return ProbeOptions{
		OpenSource: func(context.Context, string) (source.ByteSource, error) {
			return src, nil
		},
		OpenBackend: func(context.Context, source.ByteSource, ContainerFormat, BackendOptions) (Backend, error) {
			return backend, nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestProbe_CountsPackets(t *testing.T) {
	src := newFakeSource(true)
	backend := newFakeBackend(
		Packet{Kind: StreamVideo, DTS: 0, HasDTS: true},
		Packet{Kind: StreamAudio},
		Packet{Kind: StreamVideo, DTS: 0.04, HasDTS: true},
		Packet{Kind: StreamVideo},
	)
	backend.hasAudio = true

	info, err := Probe(context.Background(), "mp3:clip.mp4", probeOptions(src, backend))
	require.NoError(t, err)

	assert.Equal(t, "clip.mp4", info.URL)
	assert.Equal(t, "generic", info.Format)
	assert.True(t, info.HasAudio)
	assert.Equal(t, 3, info.VideoPackets)
	assert.Equal(t, 1, info.AudioPackets)
	assert.InDelta(t, 0.0, info.FirstDTS, 1e-9)
	assert.InDelta(t, 0.04, info.LastDTS, 1e-9)
	assert.InDelta(t, 25.0, info.FrameRate(), 1e-9)
	assert.Equal(t, int64(len("GENfake media")), info.BytesTotal)

	assert.True(t, backend.isClosed())
	assert.True(t, src.isClosed())
}

func TestProbe_MaxPackets(t *testing.T) {
	backend := newFakeBackend()
	backend.endless = true

	opts := probeOptions(newFakeSource(false), backend)
	opts.MaxPackets = 10

	info, err := Probe(context.Background(), "clip.mp4", opts)
	require.NoError(t, err)
	assert.Equal(t, 10, info.VideoPackets)
}

func TestProbe_StopsWithContextOnStalledSource(t *testing.T) {
	backend := newFakeBackend(videoPackets(2)...)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	info, err := Probe(ctx, "clip.mp4", probeOptions(newFakeSource(false), backend))
	require.NoError(t, err)
	assert.Equal(t, 2, info.VideoPackets)
}

func TestProbe_FailedSource(t *testing.T) {
	src := newFakeSource(false)
	src.fail(io.ErrUnexpectedEOF)

	info, err := Probe(context.Background(), "clip.mp4", probeOptions(src, newFakeBackend(videoPackets(2)...)))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 2, info.VideoPackets)
}

func TestProbe_OpenFailures(t *testing.T) {
	opts := probeOptions(newFakeSource(true), newFakeBackend())
	opts.OpenSource = func(context.Context, string) (source.ByteSource, error) {
		return nil, errors.New("connection refused")
	}
	_, err := Probe(context.Background(), "http://example.invalid/a.flv", opts)
	assert.ErrorContains(t, err, "connection refused")

	opts = probeOptions(newFakeSource(true), newFakeBackend())
	opts.OpenBackend = func(context.Context, source.ByteSource, ContainerFormat, BackendOptions) (Backend, error) {
		return nil, ErrNoVideoStream
	}
	_, err = Probe(context.Background(), "clip.mp4", opts)
	assert.ErrorIs(t, err, ErrNoVideoStream)
}

func TestProbeInfo_FrameRateUnknown(t *testing.T) {
	assert.Zero(t, ProbeInfo{}.FrameRate())
}
