/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: extractor.go
Description: Streaming extraction of printable ASCII runs from arbitrary binary input.
Reads the source in fixed-size chunks while tracking the absolute byte offset of every
run, so offsets stay correct across buffer refills. Exposes a bufio.Scanner style
iterator plus eager helpers for readers and files.
*/

package extractor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// DefaultMinLength is the shortest run reported as a candidate
	DefaultMinLength = 6

	// DefaultBufferSize is the read chunk size
	DefaultBufferSize = 64 * 1024

	maxEmptyReads = 100
)

// Candidate is a maximal run of printable bytes found in the input
type Candidate struct {
	Offset int64  `json:"offset"` // Absolute position of the first byte
	Bytes  []byte `json:"bytes"`  // The printable run itself
}

// Len returns the run length in bytes
func (c Candidate) Len() int {
	return len(c.Bytes)
}

// String materializes the run as text. Printable ASCII is always valid UTF-8,
// anything else is replaced rather than rejected.
func (c Candidate) String() string {
	return strings.ToValidUTF8(string(c.Bytes), "�")
}

// IsPrintable reports whether b falls in the ASCII range space through tilde
func IsPrintable(b byte) bool {
	return b >= 0x20 && b <= 0x7E
}

// ReadError records where in the stream a read failed
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read failed at offset %d: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Option configures a Scanner
type Option func(*Scanner)

// WithBufferSize sets the read chunk size. Values below 1 keep the default.
func WithBufferSize(size int) Option {
	return func(s *Scanner) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}

// Scanner walks a byte stream once and yields candidates lazily
type Scanner struct {
	reader     io.Reader
	minLength  int
	bufferSize int

	buf    []byte // current chunk
	pos    int    // next unread index in buf
	end    int    // valid bytes in buf
	offset int64  // absolute position of buf[pos]

	run      []byte
	runStart int64

	current Candidate
	err     error
	done    bool
}

// NewScanner creates a scanner over r reporting runs of at least minLength bytes
func NewScanner(r io.Reader, minLength int, opts ...Option) *Scanner {
	if minLength < 1 {
		minLength = 1
	}

	s := &Scanner{
		reader:     r,
		minLength:  minLength,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buf = make([]byte, s.bufferSize)

	return s
}

// Scan advances to the next candidate. It returns false at end of input or on
// the first read error; check Err to tell the two apart.
func (s *Scanner) Scan() bool {
	if s.done {
		return false
	}

	for {
		for s.pos < s.end {
			b := s.buf[s.pos]
			position := s.offset
			s.pos++
			s.offset++

			if IsPrintable(b) {
				if len(s.run) == 0 {
					s.runStart = position
				}
				s.run = append(s.run, b)
				continue
			}

			if s.emit() {
				return true
			}
		}

		if !s.fill() {
			s.done = true
			if s.err != nil {
				// Partial runs are dropped when the stream breaks
				s.run = nil
				return false
			}
			return s.emit()
		}
	}
}

// emit publishes the pending run if it is long enough and always resets it
func (s *Scanner) emit() bool {
	if len(s.run) < s.minLength {
		s.run = s.run[:0]
		return false
	}

	run := make([]byte, len(s.run))
	copy(run, s.run)
	s.current = Candidate{Offset: s.runStart, Bytes: run}
	s.run = s.run[:0]

	return true
}

// fill reads the next chunk. Returns false at EOF or on error.
func (s *Scanner) fill() bool {
	for empty := 0; ; empty++ {
		if empty >= maxEmptyReads {
			s.err = &ReadError{Offset: s.offset, Err: io.ErrNoProgress}
			return false
		}

		n, err := s.reader.Read(s.buf)
		s.pos = 0
		s.end = n

		if err != nil && !errors.Is(err, io.EOF) {
			s.end = 0
			s.err = &ReadError{Offset: s.offset + int64(n), Err: err}
			return false
		}
		if n > 0 {
			return true
		}
		if err != nil {
			return false
		}
	}
}

// Candidate returns the most recent candidate produced by Scan
func (s *Scanner) Candidate() Candidate {
	return s.current
}

// Err returns the first non-EOF read error
func (s *Scanner) Err() error {
	return s.err
}

// Offset returns the number of bytes consumed so far
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Extract reads r to the end and returns every candidate in offset order
func Extract(r io.Reader, minLength int, opts ...Option) ([]Candidate, error) {
	scanner := NewScanner(r, minLength, opts...)

	candidates := make([]Candidate, 0)
	for scanner.Scan() {
		candidates = append(candidates, scanner.Candidate())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return candidates, nil
}

// ExtractFile opens path and extracts every candidate from it
func ExtractFile(path string, minLength int, opts ...Option) ([]Candidate, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	candidates, err := Extract(file, minLength, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to extract strings from %s: %w", path, err)
	}

	return candidates, nil
}
