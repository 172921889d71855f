package flv

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource exposes the first `loaded` bytes of data.
type memSource struct {
	data     []byte
	loaded   int64
	complete bool
	err      error
}

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(m.data[:m.loaded]).ReadAt(p, off)
}

func (m *memSource) BytesLoaded() int64  { return m.loaded }
func (m *memSource) LoadCompleted() bool { return m.complete }
func (m *memSource) Err() error          { return m.err }

type testTag struct {
	typ  TagType
	ts   uint32
	data []byte
}

func buildFLV(hasAudio, hasVideo bool, tags ...testTag) []byte {
	var b bytes.Buffer
	flags := byte(0)
	if hasAudio {
		flags |= 0x04
	}
	if hasVideo {
		flags |= 0x01
	}
	b.Write([]byte{'F', 'L', 'V', 1, flags, 0, 0, 0, 9})
	b.Write([]byte{0, 0, 0, 0})

	for _, t := range tags {
		size := len(t.data)
		b.WriteByte(byte(t.typ))
		b.Write([]byte{byte(size >> 16), byte(size >> 8), byte(size)})
		b.Write([]byte{byte(t.ts >> 16), byte(t.ts >> 8), byte(t.ts), byte(t.ts >> 24)})
		b.Write([]byte{0, 0, 0})
		b.Write(t.data)
		prev := size + tagHeaderLen
		b.Write([]byte{byte(prev >> 24), byte(prev >> 16), byte(prev >> 8), byte(prev)})
	}
	return b.Bytes()
}

func videoTag(ts uint32, key bool) testTag {
	frameType := byte(2)
	if key {
		frameType = 1
	}
	return testTag{typ: TagVideo, ts: ts, data: []byte{frameType<<4 | byte(VideoH263), 0xAA, 0xBB}}
}

func audioTag(ts uint32) testTag {
	// MP3, 44kHz, 16 bit, stereo
	return testTag{typ: TagAudio, ts: ts, data: []byte{byte(AudioMP3)<<4 | 3<<2 | 0x02 | 0x01, 0x11}}
}

func complete(data []byte) *memSource {
	return &memSource{data: data, loaded: int64(len(data)), complete: true}
}

func TestNewParser_Header(t *testing.T) {
	p, err := NewParser(complete(buildFLV(true, true)))
	require.NoError(t, err)

	h := p.Header()
	assert.Equal(t, uint8(1), h.Version)
	assert.True(t, h.HasAudio)
	assert.True(t, h.HasVideo)
	assert.Equal(t, uint32(9), h.DataOffset)
}

func TestNewParser_Errors(t *testing.T) {
	_, err := NewParser(complete([]byte("MP4 not flv at all")))
	assert.ErrorIs(t, err, ErrBadHeader)

	_, err = NewParser(complete([]byte("FLV")))
	assert.ErrorIs(t, err, ErrBadHeader)

	data := buildFLV(false, true)
	_, err = NewParser(&memSource{data: data, loaded: 5})
	assert.ErrorIs(t, err, ErrNeedMore)
}

func TestParser_NextMediaTag(t *testing.T) {
	data := buildFLV(true, true,
		testTag{typ: TagScript, ts: 0, data: []byte{0x02, 0x00}},
		videoTag(0, true),
		audioTag(10),
		videoTag(40, false),
	)
	p, err := NewParser(complete(data))
	require.NoError(t, err)

	tag, err := p.NextMediaTag()
	require.NoError(t, err)
	assert.Equal(t, TagVideo, tag.Type)
	assert.True(t, tag.Keyframe)
	assert.Equal(t, uint32(0), tag.Timestamp)

	tag, err = p.NextMediaTag()
	require.NoError(t, err)
	assert.Equal(t, TagAudio, tag.Type)
	assert.Equal(t, uint32(10), tag.Timestamp)

	tag, err = p.NextMediaTag()
	require.NoError(t, err)
	assert.False(t, tag.Keyframe)
	assert.Equal(t, uint32(40), tag.Timestamp)

	_, err = p.NextMediaTag()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParser_NeedMoreWhileLoading(t *testing.T) {
	data := buildFLV(false, true, videoTag(0, true), videoTag(40, false))
	src := &memSource{data: data, loaded: int64(len(data) - 3)}

	p, err := NewParser(src)
	require.NoError(t, err)

	_, err = p.NextMediaTag()
	require.NoError(t, err)

	_, err = p.NextMediaTag()
	assert.ErrorIs(t, err, ErrNeedMore)

	src.loaded = int64(len(data))
	tag, err := p.NextMediaTag()
	require.NoError(t, err)
	assert.Equal(t, uint32(40), tag.Timestamp)

	// loaded but not marked complete
	_, err = p.NextMediaTag()
	assert.ErrorIs(t, err, ErrNeedMore)

	src.complete = true
	_, err = p.NextMediaTag()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParser_SourceFailure(t *testing.T) {
	data := buildFLV(false, true, videoTag(0, true), videoTag(40, false))
	src := &memSource{data: data, loaded: int64(len(data) - 3)}

	p, err := NewParser(src)
	require.NoError(t, err)
	_, err = p.NextMediaTag()
	require.NoError(t, err)

	src.err = io.ErrUnexpectedEOF
	_, err = p.NextMediaTag()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrNeedMore)

	_, err = p.Probe()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewParser(&memSource{data: data, loaded: 5, err: io.ErrUnexpectedEOF})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestParser_ProbeAndInfo(t *testing.T) {
	data := buildFLV(true, true, videoTag(0, true), videoTag(40, false), audioTag(0))
	src := &memSource{data: data, loaded: int64(len(data))}

	p, err := NewParser(src)
	require.NoError(t, err)

	ok, err := p.Probe()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NotNil(t, p.VideoInfo())
	assert.Equal(t, VideoH263, p.VideoInfo().Codec)

	a := p.AudioInfo()
	require.NotNil(t, a)
	assert.Equal(t, AudioMP3, a.Codec)
	assert.Equal(t, 44100, a.SampleRate)
	assert.True(t, a.Stereo)
	assert.True(t, a.Is16Bit)

	assert.Equal(t, uint32(40), p.VideoFrameDelay())
	assert.Equal(t, uint32(40), p.LastTimestamp())
}

func TestParser_ProbeWaitsForFlaggedStreams(t *testing.T) {
	data := buildFLV(true, true, videoTag(0, true), audioTag(0))
	videoOnly := int64(len(buildFLV(true, true, videoTag(0, true))))
	src := &memSource{data: data, loaded: videoOnly}

	p, err := NewParser(src)
	require.NoError(t, err)

	ok, err := p.Probe()
	require.NoError(t, err)
	assert.False(t, ok, "audio flagged but not seen yet")

	src.loaded = int64(len(data))
	ok, err = p.Probe()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParser_Seek(t *testing.T) {
	data := buildFLV(false, true,
		videoTag(0, true),
		videoTag(40, false),
		videoTag(1000, true),
		videoTag(1040, false),
		videoTag(2000, true),
	)
	p, err := NewParser(complete(data))
	require.NoError(t, err)

	landed, err := p.Seek(1500)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), landed)

	tag, err := p.NextMediaTag()
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), tag.Timestamp)
	assert.True(t, tag.Keyframe)

	landed, err = p.Seek(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), landed)

	landed, err = p.Seek(99999)
	require.NoError(t, err)
	assert.Equal(t, uint32(2000), landed)
}

func TestParser_SeekAudioOnly(t *testing.T) {
	data := buildFLV(true, false, audioTag(0), audioTag(26), audioTag(52))
	p, err := NewParser(complete(data))
	require.NoError(t, err)

	landed, err := p.Seek(30)
	require.NoError(t, err)
	assert.Equal(t, uint32(26), landed)
}

func TestParser_SeekOnlyWithinLoadedTags(t *testing.T) {
	data := buildFLV(false, true, videoTag(0, true), videoTag(1000, true), videoTag(2000, true))
	firstTwo := int64(len(buildFLV(false, true, videoTag(0, true), videoTag(1000, true))))
	src := &memSource{data: data, loaded: firstTwo}

	p, err := NewParser(src)
	require.NoError(t, err)

	landed, err := p.Seek(2500)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), landed)
}
