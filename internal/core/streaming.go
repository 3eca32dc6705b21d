package core

// streaming.go provides the readers the ingestion engine stacks under
// encoding/csv. None of them buffer more than a few bytes beyond the
// caller's slice:
//
//   - BOMSkippingReader: Removes UTF-8 BOM (0xEF 0xBB 0xBF) from Windows exports
//   - UTF8Validator: Fails with an *EncodingError on the first invalid sequence
//   - StreamingUTF8Sanitizer: Replaces invalid UTF-8 bytes with '?'
//   - StreamingCountingReader: Tracks bytes read and enforces a size limit
//
// Use WrapForIngest to apply them in the correct order.

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// UTF8Mode selects how the ingestion engine treats invalid UTF-8.
type UTF8Mode string

const (
	// UTF8Reject fails the parse with an encoding error.
	UTF8Reject UTF8Mode = "reject"
	// UTF8Replace substitutes '?' for every invalid byte.
	UTF8Replace UTF8Mode = "replace"
)

// ErrInputTooLarge is returned by a StreamingCountingReader once more than
// its limit has been read.
var ErrInputTooLarge = errors.New("input exceeds size limit")

// EncodingError reports the position of the first invalid UTF-8 byte.
type EncodingError struct {
	Line   int   // 1-based physical line
	Offset int64 // byte offset from the start of the decoded stream
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid UTF-8 encoding at line %d (byte %d)", e.Line, e.Offset)
}

// UTF8Validator passes bytes through unchanged until it meets an invalid
// UTF-8 sequence, then fails every subsequent Read with an *EncodingError.
// Multi-byte sequences split across reads are carried to the next call.
type UTF8Validator struct {
	reader  io.Reader
	pending []byte
	offset  int64
	line    int
	err     error
}

// NewUTF8Validator creates a validating reader.
func NewUTF8Validator(r io.Reader) *UTF8Validator {
	return &UTF8Validator{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
		line:    1,
	}
}

// Read implements io.Reader.
func (v *UTF8Validator) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, v.pending)
	v.pending = append(v.pending[:0], v.pending[offset:]...)

	n, err := v.reader.Read(p[offset:])
	n += offset
	data := p[:n]

	for i := 0; i < len(data); {
		b := data[i]
		if b < utf8.RuneSelf {
			if b == '\n' {
				v.line++
			}
			i++
			continue
		}

		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			// A sequence cut off by the read boundary is completed next time.
			if err == nil && !utf8.FullRune(data[i:]) {
				v.pending = append(v.pending, data[i:]...)
				v.offset += int64(i)
				return i, nil
			}
			v.err = &EncodingError{Line: v.line, Offset: v.offset + int64(i)}
			v.offset += int64(i)
			return i, v.err
		}
		i += size
	}

	v.offset += int64(n)
	return n, err
}

// StreamingUTF8Sanitizer wraps an io.Reader and replaces invalid UTF-8 bytes
// with '?' on the fly. The replacement is one byte so data never expands.
type StreamingUTF8Sanitizer struct {
	reader io.Reader

	// Leftover bytes from previous read that may form a multi-byte sequence
	pending []byte
}

// NewStreamingUTF8Sanitizer creates a new streaming UTF-8 sanitizer.
func NewStreamingUTF8Sanitizer(r io.Reader) *StreamingUTF8Sanitizer {
	return &StreamingUTF8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader. It reads from the underlying reader and sanitizes
// invalid UTF-8 sequences in place.
func (s *StreamingUTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = append(s.pending[:0], s.pending[offset:]...)

	n, err := s.reader.Read(p[offset:])
	n += offset

	if n == 0 {
		return 0, err
	}

	// Fast path: most CSV data is ASCII
	if isAllASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err != nil), err
}

// isAllASCII returns true if all bytes are ASCII (< 128).
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to emit.
// Unless atEOF, an incomplete sequence at the end is saved to pending.
func (s *StreamingUTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(data[read:]) {
				s.pending = append(s.pending, data[read:]...)
				return write
			}
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}

	return write
}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	bufData    []byte
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{
		reader: r,
	}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		switch {
		case err == io.ErrUnexpectedEOF || err == io.EOF:
			// Short input: whatever was read is data, not a BOM.
			r.bufData = r.buf[:n]
			if n == 0 {
				return 0, io.EOF
			}
		case err != nil:
			return 0, err
		case r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF:
			r.bufData = nil
		default:
			r.bufData = r.buf[:n]
		}
	}

	if len(r.bufData) > 0 {
		copied := copy(p, r.bufData)
		r.bufData = r.bufData[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// StreamingCountingReader wraps an io.Reader to track bytes read.
// When Limit is positive, reading past it fails with ErrInputTooLarge.
type StreamingCountingReader struct {
	reader    io.Reader
	BytesRead int64
	Limit     int64 // 0 means unlimited
}

// NewStreamingCountingReader creates a counting reader with an optional limit.
func NewStreamingCountingReader(r io.Reader, limit int64) *StreamingCountingReader {
	return &StreamingCountingReader{
		reader: r,
		Limit:  limit,
	}
}

// Read implements io.Reader.
func (r *StreamingCountingReader) Read(p []byte) (int, error) {
	if r.Limit > 0 && r.BytesRead > r.Limit {
		return 0, ErrInputTooLarge
	}
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	if r.Limit > 0 && r.BytesRead > r.Limit {
		return n, ErrInputTooLarge
	}
	return n, err
}

// WrapForIngest wraps a reader with size accounting, BOM skipping and UTF-8
// handling for mode.
//
// The order matters:
// 1. Counting sees raw bytes, so the limit applies to the upload as sent
// 2. BOM must be stripped before any decoding
// 3. UTF-8 validation or sanitization sees only payload bytes
func WrapForIngest(r io.Reader, mode UTF8Mode, limit int64) (io.Reader, *StreamingCountingReader) {
	counter := NewStreamingCountingReader(r, limit)
	bomReader := NewBOMSkippingReader(counter)
	if mode == UTF8Replace {
		return NewStreamingUTF8Sanitizer(bomReader), counter
	}
	return NewUTF8Validator(bomReader), counter
}
