// Package source provides the byte sources a stream is decoded from: local
// files and progressively downloaded HTTP resources. Both expose sequential
// reads, random-access reads of loaded bytes, absolute seeks and load progress.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrClosed is returned by reads on a closed source.
var ErrClosed = errors.New("source closed")

// ByteSource is a sequential, seekable reader over a possibly still loading stream.
type ByteSource interface {
	io.Reader
	io.ReaderAt

	// Seek moves the read position to an absolute offset. Offsets past the
	// end are clamped to the total size when it is known.
	Seek(offset int64) (int64, error)

	// LoadCompleted reports whether every byte of the resource is available.
	LoadCompleted() bool

	// BytesLoaded returns the number of bytes available so far.
	BytesLoaded() int64

	// BytesTotal returns the resource size, or 0 when unknown.
	BytesTotal() int64

	// Err returns the error that ended loading early, or nil. A source with
	// an error never completes.
	Err() error

	// Close releases the source and unblocks pending reads.
	Close() error
}

// Open opens a byte source for the given URL. http and https URLs are
// downloaded progressively, file URLs and bare paths are opened from disk.
func Open(ctx context.Context, rawURL string) (ByteSource, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty url")
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare path (or windows drive letter)
		return OpenFile(rawURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return OpenHTTP(ctx, rawURL, nil)
	case "file":
		return OpenFile(u.Path)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
