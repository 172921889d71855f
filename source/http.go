package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/njyeung/netplay/internal/version"
)

// readChunkSize is how much the downloader reads from the body at a time.
const readChunkSize = 32 * 1024

// HTTPSource downloads a resource in the background and serves reads from the
// bytes received so far. Reads past the loaded range block until more data
// arrives, the download ends, or the source is closed.
type HTTPSource struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf    []byte
	total  int64
	pos    int64
	done   bool
	err    error
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenHTTP starts downloading url. A nil client uses http.DefaultClient.
func OpenHTTP(ctx context.Context, url string, client *http.Client) (*HTTPSource, error) {
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open url: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	s := &HTTPSource{cancel: cancel}
	s.cond = sync.NewCond(&s.mu)
	if resp.ContentLength > 0 {
		s.total = resp.ContentLength
		s.buf = make([]byte, 0, resp.ContentLength)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.download(resp.Body)
	}()

	return s, nil
}

func (s *HTTPSource) download(body io.ReadCloser) {
	defer body.Close()

	chunk := make([]byte, readChunkSize)
	for {
		n, err := body.Read(chunk)

		s.mu.Lock()
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) && !s.closed {
				s.err = err
			}
			if s.total == 0 || s.err == nil {
				s.total = int64(len(s.buf))
			}
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		if err != nil {
			return
		}
	}
}

// waitLocked blocks until end is loaded, the download finished or the source
// closed. Must hold s.mu.
func (s *HTTPSource) waitLocked(end int64) {
	for !s.closed && !s.done && int64(len(s.buf)) < end {
		s.cond.Wait()
	}
}

// Read reads from the current position, blocking until data is available.
func (s *HTTPSource) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitLocked(s.pos + 1)
	if s.closed {
		return 0, ErrClosed
	}

	if s.pos >= int64(len(s.buf)) {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}

	n := copy(p, s.buf[s.pos:])
	s.pos += int64(n)
	return n, nil
}

// ReadAt reads len(p) bytes at off, blocking until they are loaded.
func (s *HTTPSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitLocked(off + int64(len(p)))
	if s.closed {
		return 0, ErrClosed
	}

	if off >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[off:])
	if n < len(p) {
		if s.err != nil {
			return n, s.err
		}
		return n, io.EOF
	}
	return n, nil
}

// Seek moves to an absolute offset. Offsets past a known total are clamped.
func (s *HTTPSource) Seek(offset int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if offset < 0 {
		return s.pos, fmt.Errorf("negative offset %d", offset)
	}
	if s.total > 0 && offset > s.total {
		offset = s.total
	}
	s.pos = offset
	return s.pos, nil
}

// LoadCompleted reports whether the download has finished successfully.
func (s *HTTPSource) LoadCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done && s.err == nil
}

// BytesLoaded returns the number of bytes downloaded so far.
func (s *HTTPSource) BytesLoaded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.buf))
}

// BytesTotal returns the content length, or 0 when the server did not send one
// and the download is still running.
func (s *HTTPSource) BytesTotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Err returns the download error, if any.
func (s *HTTPSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the download and wakes blocked readers.
func (s *HTTPSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}
