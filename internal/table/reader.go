package table

// reader.go prepares uploaded CSV bytes for encoding/csv.
//
// Files exported from Excel on Windows often start with a UTF-8 BOM and
// files from older systems may contain stray Latin-1 bytes. Both would end up
// in header names or break substring search, so the CSV path reads through:
//
//  1. bomSkipper: drops a leading 0xEF 0xBB 0xBF
//  2. utf8Sanitizer: replaces invalid UTF-8 bytes with '?'

import (
	"bufio"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newCSVSource wraps r with BOM skipping and UTF-8 sanitizing.
func newCSVSource(r io.Reader) io.Reader {
	return &utf8Sanitizer{src: bomSkipper(r)}
}

// bomSkipper returns a reader positioned after a leading UTF-8 BOM, if any.
func bomSkipper(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err == nil && string(head) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces invalid UTF-8 sequences with '?' as data streams
// through. A multi-byte rune split across two reads is carried over in pending.
type utf8Sanitizer struct {
	src     io.Reader
	pending []byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[offset:])]

	n, err := s.src.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if utf8.Valid(data) {
		return n, err
	}

	atEOF := err == io.EOF
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && utf8.RuneStart(data[read]) && !utf8.FullRune(data[read:]) {
				// Possibly the start of a rune cut by the read boundary.
				s.pending = append(s.pending, data[read:]...)
				break
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

	if write == 0 && len(s.pending) > 0 && err == nil {
		// Need more bytes to decide; ask the caller to read again.
		return 0, nil
	}
	return write, err
}
