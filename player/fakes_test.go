package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/njyeung/netplay/source"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeSource is an in-memory ByteSource whose load state the test controls.
type fakeSource struct {
	mu       sync.Mutex
	data     []byte
	pos      int64
	complete bool
	closed   bool
	err      error
}

func newFakeSource(complete bool) *fakeSource {
	return &fakeSource{data: []byte("GENfake media"), complete: complete}
}

func (s *fakeSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, source.ErrClosed
	}
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *fakeSource) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.NewReader(s.data).ReadAt(p, off)
}

func (s *fakeSource) Seek(offset int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = min(offset, int64(len(s.data)))
	return s.pos, nil
}

func (s *fakeSource) LoadCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

func (s *fakeSource) setComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete = true
}

// fail makes the source report a download error from now on.
func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSource) BytesLoaded() int64 { return int64(len(s.data)) }
func (s *fakeSource) BytesTotal() int64  { return int64(len(s.data)) }

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeBackend hands out scripted packets. Only the first `available` are
// readable; the rest read as io.EOF until released.
type fakeBackend struct {
	mu         sync.Mutex
	packets    []Packet
	next       int
	available  int
	endless    bool
	frameDelay float64
	hasAudio   bool
	audioBytes int
	closed     bool
	seeks      []float64
	seekFn     func(float64) (float64, error)
}

func newFakeBackend(packets ...Packet) *fakeBackend {
	return &fakeBackend{
		packets:    packets,
		available:  len(packets),
		frameDelay: 0.04,
		audioBytes: 400,
	}
}

func videoPackets(n int) []Packet {
	pkts := make([]Packet, n)
	for i := range pkts {
		pkts[i] = Packet{Kind: StreamVideo}
	}
	return pkts
}

func (b *fakeBackend) ReadPacket() (*Packet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("closed")
	}
	if b.endless {
		return &Packet{Kind: StreamVideo}, nil
	}
	if b.next >= b.available {
		return nil, io.EOF
	}
	p := b.packets[b.next]
	b.next++
	return &p, nil
}

func (b *fakeBackend) release(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = min(b.available+n, len(b.packets))
}

func (b *fakeBackend) DecodeVideo(pkt *Packet, layout PixelLayout) (*VideoFrame, error) {
	return &VideoFrame{Data: make([]byte, 12), Width: 2, Height: 2, Layout: layout}, nil
}

func (b *fakeBackend) DecodeAudio(pkt *Packet) (*AudioUnit, error) {
	return &AudioUnit{Data: make([]byte, b.audioBytes)}, nil
}

func (b *fakeBackend) HasAudio() bool      { return b.hasAudio }
func (b *fakeBackend) FrameDelay() float64 { return b.frameDelay }

func (b *fakeBackend) Seek(seconds float64) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seeks = append(b.seeks, seconds)
	if b.seekFn != nil {
		return b.seekFn(seconds)
	}
	return seconds, nil
}

func (b *fakeBackend) seekCalls() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]float64(nil), b.seeks...)
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *fakeBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type transition struct{ from, to State }

type recorder struct {
	mu          sync.Mutex
	statuses    []Status
	transitions []transition
}

func (r *recorder) status(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) stateChange(from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, transition{from, to})
}

func (r *recorder) statusList() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recorder) codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statuses))
	for i, s := range r.statuses {
		out[i] = s.Code
	}
	return out
}

func (r *recorder) count(code string) int {
	n := 0
	for _, c := range r.codes() {
		if c == code {
			n++
		}
	}
	return n
}

func (r *recorder) states() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.transitions...)
}

type harness struct {
	ns      *NetStream
	clock   *fakeClock
	src     *fakeSource
	backend *fakeBackend
	rec     *recorder

	urlMu sync.Mutex
	urls  []string
}

func newHarness(t *testing.T, src *fakeSource, backend *fakeBackend, opts Options) *harness {
	t.Helper()

	h := &harness{clock: newFakeClock(), src: src, backend: backend, rec: &recorder{}}
	opts.Now = h.clock.Now
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.OnStateChange = h.rec.stateChange
	if opts.OpenSource == nil {
		opts.OpenSource = func(ctx context.Context, url string) (source.ByteSource, error) {
			h.urlMu.Lock()
			h.urls = append(h.urls, url)
			h.urlMu.Unlock()
			return src, nil
		}
	}
	if opts.OpenBackend == nil {
		opts.OpenBackend = func(ctx context.Context, s source.ByteSource, f ContainerFormat, o BackendOptions) (Backend, error) {
			return backend, nil
		}
	}

	h.ns = NewNetStream(opts)
	h.ns.SetStatusHandler(h.rec.status)
	t.Cleanup(h.ns.Close)
	return h
}

func (h *harness) openedURLs() []string {
	h.urlMu.Lock()
	defer h.urlMu.Unlock()
	return append([]string(nil), h.urls...)
}

func (h *harness) session(t *testing.T) *playSession {
	t.Helper()
	s := h.ns.currentSession()
	require.NotNil(t, s)
	return s
}

// waitLoaded waits until at least ms of media has been decoded.
func (h *harness) waitLoaded(t *testing.T, ms int64) {
	t.Helper()
	s := h.session(t)
	require.Eventually(t, func() bool {
		return s.loadedUntil.Load() >= ms
	}, 2*time.Second, time.Millisecond)
}

// waitState calls Advance until the stream reaches want.
func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.ns.Advance()
		return h.ns.State() == want
	}, 2*time.Second, time.Millisecond)
}
