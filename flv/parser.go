package flv

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Source is a random-access view of a possibly still loading stream.
type Source interface {
	io.ReaderAt
	BytesLoaded() int64
	LoadCompleted() bool
	Err() error
}

type seekPoint struct {
	timestamp uint32
	offset    int64
}

// Parser iterates the tags of an FLV stream and indexes seek points as the
// stream loads.
type Parser struct {
	src    Source
	header Header

	mu   sync.Mutex
	next int64 // next tag returned by NextMediaTag
	scan int64 // next tag to index

	keyframes   []seekPoint
	audioPoints []seekPoint
	lastTS      uint32

	video       *VideoInfo
	audio       *AudioInfo
	videoTags   int
	firstVideo  uint32
	secondVideo uint32
}

// NewParser reads the FLV header. It returns ErrNeedMore if the header is not
// loaded yet and ErrBadHeader if the stream is not FLV.
func NewParser(src Source) (*Parser, error) {
	need := int64(headerSize + prevSizeLen)
	if src.BytesLoaded() < need {
		if src.LoadCompleted() {
			return nil, ErrBadHeader
		}
		if err := src.Err(); err != nil {
			return nil, fmt.Errorf("flv: source failed: %w", err)
		}
		return nil, ErrNeedMore
	}

	buf := make([]byte, headerSize)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("flv: reading header: %w", err)
	}
	if string(buf[:3]) != "FLV" {
		return nil, ErrBadHeader
	}

	h := Header{
		Version:    buf[3],
		HasAudio:   buf[4]&0x04 != 0,
		HasVideo:   buf[4]&0x01 != 0,
		DataOffset: uint32(buf[5])<<24 | uint24(buf[6:9]),
	}
	if h.DataOffset < headerSize {
		return nil, ErrBadHeader
	}

	start := int64(h.DataOffset) + prevSizeLen
	return &Parser{
		src:    src,
		header: h,
		next:   start,
		scan:   start,
	}, nil
}

// Header returns the parsed file header.
func (p *Parser) Header() Header {
	return p.header
}

// readTagHeader reads the tag header at off if the whole tag is loaded.
func (p *Parser) readTagHeader(off int64) (typ TagType, size, ts uint32, err error) {
	loaded := p.src.BytesLoaded()
	if off+tagHeaderLen > loaded {
		return 0, 0, 0, p.needMore()
	}

	hdr := make([]byte, tagHeaderLen)
	if _, err := p.src.ReadAt(hdr, off); err != nil {
		return 0, 0, 0, fmt.Errorf("flv: reading tag header: %w", err)
	}

	typ = TagType(hdr[0] & 0x1f)
	size = uint24(hdr[1:4])
	ts = uint24(hdr[4:7]) | uint32(hdr[7])<<24

	if size > maxTagSize {
		return 0, 0, 0, ErrBadTag
	}
	if off+tagHeaderLen+int64(size)+prevSizeLen > loaded {
		return 0, 0, 0, p.needMore()
	}
	return typ, size, ts, nil
}

// needMore is the error for a tag past the loaded range: io.EOF once the
// stream is complete, the source error if loading failed, else ErrNeedMore.
func (p *Parser) needMore() error {
	if p.src.LoadCompleted() {
		return io.EOF
	}
	if err := p.src.Err(); err != nil {
		return fmt.Errorf("flv: source failed: %w", err)
	}
	return ErrNeedMore
}

// indexLocked walks every fully loaded tag past p.scan, recording seek points
// and stream info. Must hold p.mu.
func (p *Parser) indexLocked() error {
	for {
		typ, size, ts, err := p.readTagHeader(p.scan)
		if err != nil {
			if errors.Is(err, ErrNeedMore) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var first [1]byte
		if size > 0 && (typ == TagVideo || typ == TagAudio) {
			if _, err := p.src.ReadAt(first[:], p.scan+tagHeaderLen); err != nil {
				return fmt.Errorf("flv: reading tag data: %w", err)
			}
		}

		switch typ {
		case TagVideo:
			if size == 0 {
				break
			}
			if p.video == nil {
				p.video = &VideoInfo{Codec: VideoCodec(first[0] & 0x0f)}
			}
			switch p.videoTags {
			case 0:
				p.firstVideo = ts
			case 1:
				p.secondVideo = ts
			}
			p.videoTags++
			if first[0]>>4 == videoKeyframe {
				p.keyframes = append(p.keyframes, seekPoint{timestamp: ts, offset: p.scan})
			}
		case TagAudio:
			if size == 0 {
				break
			}
			if p.audio == nil {
				p.audio = &AudioInfo{
					Codec:      AudioCodec(first[0] >> 4),
					SampleRate: audioRates[(first[0]>>2)&0x03],
					Is16Bit:    first[0]&0x02 != 0,
					Stereo:     first[0]&0x01 != 0,
				}
			}
			p.audioPoints = append(p.audioPoints, seekPoint{timestamp: ts, offset: p.scan})
		}

		if ts > p.lastTS {
			p.lastTS = ts
		}
		p.scan += tagHeaderLen + int64(size) + prevSizeLen
	}
}

// Probe indexes what is loaded and reports whether the stream info is known:
// the first tag of every stream flagged in the header has been seen, or the
// load completed.
func (p *Parser) Probe() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.indexLocked(); err != nil {
		return false, err
	}
	if p.src.LoadCompleted() {
		return true, nil
	}
	videoKnown := !p.header.HasVideo || p.video != nil
	audioKnown := !p.header.HasAudio || p.audio != nil
	return videoKnown && audioKnown, nil
}

// VideoInfo returns the video stream info, or nil if no video tag was seen.
func (p *Parser) VideoInfo() *VideoInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video
}

// AudioInfo returns the audio stream info, or nil if no audio tag was seen.
func (p *Parser) AudioInfo() *AudioInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio
}

// VideoFrameDelay returns the spacing between the first two video tags in
// milliseconds, or 0 when fewer than two were seen.
func (p *Parser) VideoFrameDelay() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.videoTags < 2 || p.secondVideo < p.firstVideo {
		return 0
	}
	return p.secondVideo - p.firstVideo
}

// LastTimestamp returns the highest tag timestamp indexed so far.
func (p *Parser) LastTimestamp() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTS
}

// NextMediaTag returns the next audio or video tag, skipping script data.
// It returns ErrNeedMore when the next tag has not fully loaded and io.EOF at
// the end of a completed stream.
func (p *Parser) NextMediaTag() (*Tag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.indexLocked(); err != nil {
		return nil, err
	}

	for {
		off := p.next
		typ, size, ts, err := p.readTagHeader(off)
		if err != nil {
			return nil, err
		}
		p.next = off + tagHeaderLen + int64(size) + prevSizeLen

		if (typ != TagVideo && typ != TagAudio) || size == 0 {
			continue
		}

		data := make([]byte, size)
		if _, err := p.src.ReadAt(data, off+tagHeaderLen); err != nil {
			return nil, fmt.Errorf("flv: reading tag data: %w", err)
		}

		return &Tag{
			Type:      typ,
			Timestamp: ts,
			Offset:    off,
			Data:      data,
			Keyframe:  typ == TagVideo && data[0]>>4 == videoKeyframe,
		}, nil
	}
}

// Seek positions the parser on the last seek point at or before ms among the
// tags loaded so far and returns that point's timestamp. Video keyframes are
// used when the stream has video, audio tags otherwise.
func (p *Parser) Seek(ms uint32) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.indexLocked(); err != nil {
		return 0, err
	}

	points := p.keyframes
	if p.video == nil {
		points = p.audioPoints
	}
	if len(points) == 0 {
		p.next = int64(p.header.DataOffset) + prevSizeLen
		return 0, nil
	}

	// first point after ms, then step back one
	i := sort.Search(len(points), func(i int) bool {
		return points[i].timestamp > ms
	})
	if i > 0 {
		i--
	}

	p.next = points[i].offset
	return points[i].timestamp, nil
}
