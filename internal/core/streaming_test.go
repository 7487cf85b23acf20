package core

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "table with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("id,name")...),
			expected: "id,name",
		},
		{
			name:     "table without BOM",
			input:    []byte("id,name"),
			expected: "id,name",
		},
		{
			name:     "empty table",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM is data",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(skipBOM(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "valid ASCII",
			input:    []byte("EURUSD,1.0834"),
			expected: "EURUSD,1.0834",
		},
		{
			name:     "valid multi-byte",
			input:    []byte("note,café €"),
			expected: "note,café €",
		},
		{
			name:     "invalid byte replaced",
			input:    []byte{'a', 0xFF, 'b'},
			expected: "a?b",
		},
		{
			name:     "latin-1 byte replaced",
			input:    []byte{'c', 'a', 'f', 0xE9},
			expected: "caf?",
		},
		{
			name:     "several invalid bytes",
			input:    []byte{0xC0, 0xC1, 'x', 0xF5},
			expected: "??x?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(newUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer_RuneSplitAcrossReads(t *testing.T) {
	// OneByteReader hands out one byte per Read, so every multi-byte rune
	// arrives in pieces.
	input := "pair,note\nEURUSD,\"über café — ok\"\n"
	r := newUTF8Sanitizer(iotest.OneByteReader(strings.NewReader(input)))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != input {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestNewTableReader_BOMThenInvalidBytes(t *testing.T) {
	text := string([]byte{0xEF, 0xBB, 0xBF}) + "id,name\n1,caf" + string([]byte{0xE9}) + "\n"

	got, err := io.ReadAll(newTableReader(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "id,name\n1,caf?\n"; string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
