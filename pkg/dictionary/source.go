package dictionary

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// maxLineSize bounds a single source line. Entries of large monolingual
// dictionaries easily exceed bufio's 64 KiB default.
const maxLineSize = 64 << 20

// Source is a read-only, memory-mapped view of a dictionary source file.
// Several passes may read it concurrently through Reader.
type Source struct {
	path string
	f    *os.File
	m    mmap.MMap
}

// OpenSource maps the file at path read-only.
func OpenSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	src := &Source{path: path, f: f}
	// Mapping an empty file fails on most platforms; an empty source simply
	// has no lines.
	if info.Size() > 0 {
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("map %s: %w", path, err)
		}
		src.m = m
	}
	return src, nil
}

// Path returns the file the source was opened from.
func (s *Source) Path() string { return s.path }

// Reader returns an independent reader over the whole source.
func (s *Source) Reader() io.Reader { return bytes.NewReader(s.m) }

// Close unmaps and closes the file.
func (s *Source) Close() error {
	var err error
	if s.m != nil {
		err = s.m.Unmap()
		s.m = nil
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// scanLines calls fn with every raw line of r and its 1-based number.
func scanLines(r io.Reader, fn func(lineNo int, raw string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := fn(lineNo, sc.Text()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", lineNo+1, err)
	}
	return nil
}
