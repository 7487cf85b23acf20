package core

// streaming.go provides the readers the table decoder parses through.
//
// Archive tables come from many exporters, so two CSV issues are fixed while
// streaming rather than up front:
//
//   - a UTF-8 BOM (0xEF 0xBB 0xBF) written by spreadsheet programs is skipped
//   - invalid UTF-8 bytes are replaced with '?'
//
// Use newTableReader to apply both in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newTableReader returns a reader over text with a leading BOM removed and
// invalid UTF-8 replaced. The BOM must be stripped before sanitizing, or its
// bytes would survive as valid text in the first header.
func newTableReader(text string) io.Reader {
	return newUTF8Sanitizer(skipBOM(strings.NewReader(text)))
}

// skipBOM drops a UTF-8 BOM at the start of r, if present.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' as data streams
// through. A multi-byte rune split across two reads is carried over to the
// next read instead of being mistaken for garbage.
type utf8Sanitizer struct {
	r     io.Reader
	carry []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, carry: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader. Replacement never grows the data, so the result
// always fits in p.
func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		off := copy(p, s.carry)
		s.carry = append(s.carry[:0], s.carry[off:]...)

		n, err := s.r.Read(p[off:])
		n += off
		if n == 0 {
			return 0, err
		}

		data := p[:n]
		if err == nil {
			if k := incompleteTail(data); k > 0 {
				if k == n && n < len(p) {
					// Nothing but the start of a rune; read on.
					s.carry = append(s.carry, data...)
					continue
				}
				if k < n {
					s.carry = append(s.carry, data[n-k:]...)
					data = data[:n-k]
				}
			}
		}
		return sanitizeInPlace(data), err
	}
}

// incompleteTail returns the length of a truncated multi-byte sequence at the
// end of data, or 0.
func incompleteTail(data []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			// Continuation byte, keep looking for the lead byte.
			continue
		}
		if b >= 0xC0 && !utf8.FullRune(data[len(data)-i:]) {
			return i
		}
		return 0
	}
	return 0
}

// sanitizeInPlace rewrites data with every invalid byte replaced by '?' and
// returns the resulting length.
func sanitizeInPlace(data []byte) int {
	if utf8.Valid(data) {
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
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
