// Package flv parses FLV files tag by tag while they are still loading. It
// reads through a random-access source that reports how many bytes are
// available, so callers can poll for new tags without blocking on the network.
package flv

import "errors"

var (
	// ErrNeedMore is returned when the next tag is not fully loaded yet.
	ErrNeedMore = errors.New("flv: need more data")

	// ErrBadHeader is returned when the stream does not start with an FLV header.
	ErrBadHeader = errors.New("flv: bad header")

	// ErrBadTag is returned for tags with an impossible size.
	ErrBadTag = errors.New("flv: bad tag")
)

const (
	headerSize   = 9
	tagHeaderLen = 11
	prevSizeLen  = 4

	// maxTagSize bounds a single tag's payload (uint24 max).
	maxTagSize = 1<<24 - 1
)

// TagType is the FLV tag type byte.
type TagType uint8

const (
	TagAudio  TagType = 8
	TagVideo  TagType = 9
	TagScript TagType = 18
)

// VideoCodec is the codec id in the low nibble of a video tag's first byte.
type VideoCodec uint8

const (
	VideoH263     VideoCodec = 2
	VideoScreen   VideoCodec = 3
	VideoVP6      VideoCodec = 4
	VideoVP6Alpha VideoCodec = 5
	VideoScreenV2 VideoCodec = 6
	VideoAVC      VideoCodec = 7
)

// frame type 1 in the high nibble of a video tag marks a keyframe
const videoKeyframe = 1

// AudioCodec is the sound format in the high nibble of an audio tag's first byte.
type AudioCodec uint8

const (
	AudioPCM        AudioCodec = 0
	AudioADPCM      AudioCodec = 1
	AudioMP3        AudioCodec = 2
	AudioPCMLE      AudioCodec = 3
	AudioNellymoser AudioCodec = 6
	AudioAAC        AudioCodec = 10
	AudioSpeex      AudioCodec = 11
)

var audioRates = [4]int{5512, 11025, 22050, 44100}

// Header is the FLV file header.
type Header struct {
	Version    uint8
	HasAudio   bool
	HasVideo   bool
	DataOffset uint32
}

// Tag is one audio, video or script tag.
type Tag struct {
	Type      TagType
	Timestamp uint32 // milliseconds
	Offset    int64  // offset of the tag header
	Data      []byte
	Keyframe  bool
}

// VideoInfo describes the video stream, taken from its first tag.
type VideoInfo struct {
	Codec VideoCodec
}

// AudioInfo describes the audio stream, taken from its first tag.
type AudioInfo struct {
	Codec      AudioCodec
	SampleRate int
	Stereo     bool
	Is16Bit    bool
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
