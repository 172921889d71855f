package source

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// FileSource reads a local file. The whole file counts as loaded.
type FileSource struct {
	mu     sync.Mutex
	f      *os.File
	size   int64
	pos    int64
	closed bool
}

// OpenFile opens a local file as a byte source.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &FileSource{f: f, size: info.Size()}, nil
}

// Read reads from the current position.
func (s *FileSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	n, err := s.f.ReadAt(p, s.pos)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// ReadAt reads at an absolute offset without moving the read position.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return s.f.ReadAt(p, off)
}

// Seek moves to an absolute offset, clamped to the file size.
func (s *FileSource) Seek(offset int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if offset < 0 {
		return s.pos, fmt.Errorf("negative offset %d", offset)
	}
	s.pos = min(offset, s.size)
	return s.pos, nil
}

// LoadCompleted is always true for files.
func (s *FileSource) LoadCompleted() bool { return true }

// BytesLoaded returns the file size.
func (s *FileSource) BytesLoaded() int64 { return s.size }

// BytesTotal returns the file size.
func (s *FileSource) BytesTotal() int64 { return s.size }

// Err always returns nil; a file is loaded when it opens.
func (s *FileSource) Err() error { return nil }

// Close closes the file.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
