package core

// streaming.go provides memory-efficient readers for delimited files.
//
// These readers wrap io.Reader to handle common CSV issues without loading
// the entire file into memory:
//
//   - BOM stripping: removes the UTF-8 BOM (0xEF 0xBB 0xBF) Windows tools add
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?'
//   - CountingReader: tracks bytes consumed for logging
//
// Use WrapForStreaming to apply all transforms in the correct order.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader positioned after the UTF-8 BOM, if r starts with one.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

// readChunk is the size of each read from the underlying reader.
const readChunk = 32 * 1024

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' on the fly.
// Memory use is bounded by one chunk; a multi-byte rune split across reads
// is carried over to the next chunk.
type UTF8Sanitizer struct {
	r       io.Reader
	scratch []byte
	out     []byte // sanitized bytes not yet returned
	carry   []byte // incomplete rune at the end of the last chunk
	err     error
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{
		r:       r,
		scratch: make([]byte, readChunk+utf8.UTFMax),
		carry:   make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// fill reads the next chunk into out. Only called once out is drained.
func (s *UTF8Sanitizer) fill() {
	n := copy(s.scratch, s.carry)
	s.carry = s.carry[:0]

	m, err := s.r.Read(s.scratch[n:])
	n += m
	s.err = err

	s.out = s.scratch[:s.sanitize(s.scratch[:n], err != nil)]
}

// sanitize rewrites data in place and returns the number of bytes to emit.
// Unless final is set, an incomplete rune at the end is moved to carry.
func (s *UTF8Sanitizer) sanitize(data []byte, final bool) int {
	out := 0
	for i := 0; i < len(data); {
		b := data[i]
		if b < utf8.RuneSelf {
			data[out] = b
			out++
			i++
			continue
		}
		if !final && !utf8.FullRune(data[i:]) {
			s.carry = append(s.carry, data[i:]...)
			return out
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[out] = '?'
			out++
			i++
			continue
		}
		copy(data[out:], data[i:i+size])
		out += size
		i += size
	}
	return out
}

// CountingReader tracks bytes read through it.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// WrapForStreaming applies BOM stripping, UTF-8 sanitization and byte counting.
//
// The order matters:
// 1. BOM must be stripped first (before any processing)
// 2. UTF-8 sanitization happens next
// 3. Counting wraps everything
func WrapForStreaming(r io.Reader) *CountingReader {
	return &CountingReader{r: NewUTF8Sanitizer(SkipBOM(r))}
}

// newCSVReader configures encoding/csv for messy user files: ragged rows
// are accepted and stray quotes inside fields are tolerated.
func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}
