package engine

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func collect(chunk int) (*Framer, *[]string) {
	var lines []string
	f := NewFramer(chunk, func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	})
	return f, &lines
}

// reference splits the whole stream the way the framer must.
func reference(s string) []string {
	var out []string
	for _, l := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' }) {
		out = append(out, l)
	}
	if n := len(out); n > 0 && !strings.HasSuffix(s, "\n") && !strings.HasSuffix(s, "\r") {
		if strings.TrimSpace(out[n-1]) == "" {
			out = out[:n-1]
		}
	}
	return out
}

func TestFramer_ChunkBoundariesDoNotMatter(t *testing.T) {
	input := "first line\nsecond\r\nthird\r\rfourth line is a bit longer than the rest\n\nlast without newline"

	oneShot, oneShotLines := collect(1024)
	if _, err := oneShot.ReadFrom(strings.NewReader(input)); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	byteWise, byteLines := collect(16)
	if _, err := byteWise.ReadFrom(iotest.OneByteReader(strings.NewReader(input))); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	half, halfLines := collect(16)
	if _, err := half.ReadFrom(iotest.HalfReader(strings.NewReader(input))); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	want := reference(input)
	if !reflect.DeepEqual(*oneShotLines, want) {
		t.Errorf("one-shot lines = %q, want %q", *oneShotLines, want)
	}
	if !reflect.DeepEqual(*byteLines, want) {
		t.Errorf("byte-wise lines = %q, want %q", *byteLines, want)
	}
	if !reflect.DeepEqual(*halfLines, want) {
		t.Errorf("half-reader lines = %q, want %q", *halfLines, want)
	}
}

func TestFramer_TerminatorOnChunkEdge(t *testing.T) {
	f, lines := collect(16)

	// 16-byte chunks: the '\n' is the last byte of the first chunk.
	input := "abcdefghijklmno\npqr"
	if _, err := f.ReadFrom(strings.NewReader(input)); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	want := []string{"abcdefghijklmno", "pqr"}
	if !reflect.DeepEqual(*lines, want) {
		t.Errorf("lines = %q, want %q", *lines, want)
	}
}

func TestFramer_LongLineGrowsBuffer(t *testing.T) {
	f, lines := collect(16)
	long := strings.Repeat("x", 1000)
	if _, err := f.ReadFrom(iotest.HalfReader(strings.NewReader(long + "\nshort\n"))); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(*lines) != 2 || (*lines)[0] != long || (*lines)[1] != "short" {
		t.Fatalf("long line was truncated or split: got %d lines", len(*lines))
	}
}

func TestFramer_MemoryIsBounded(t *testing.T) {
	f, lines := collect(64)
	var sb strings.Builder
	for i := 0; i < 10000; i++ {
		sb.WriteString("line of moderate length\n")
	}
	if _, err := f.ReadFrom(strings.NewReader(sb.String())); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(*lines) != 10000 {
		t.Fatalf("Expected 10000 lines, got %d", len(*lines))
	}
	if len(f.buf) > 4*64 {
		t.Errorf("buffer grew to %d bytes for short lines", len(f.buf))
	}
}

func TestFramer_WhitespaceTailDiscarded(t *testing.T) {
	f, lines := collect(16)
	if _, err := f.ReadFrom(strings.NewReader("one\n   \t")); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if !reflect.DeepEqual(*lines, []string{"one"}) {
		t.Errorf("lines = %q", *lines)
	}
	if f.Buffered() != 0 {
		t.Errorf("Buffered() = %d after flush", f.Buffered())
	}
}

func TestFramer_ReadErrorFlushesTail(t *testing.T) {
	f, lines := collect(16)
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("done\npartial"), iotest.ErrReader(boom))

	n, err := f.ReadFrom(r)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected transport error, got %v", err)
	}
	if n != int64(len("done\npartial")) {
		t.Errorf("n = %d", n)
	}
	if !reflect.DeepEqual(*lines, []string{"done", "partial"}) {
		t.Errorf("lines = %q", *lines)
	}
}

func TestFramer_Write(t *testing.T) {
	f, lines := collect(16)
	for _, chunk := range []string{"ab", "c\nde", "f\r", "\n", "gh"} {
		if _, err := f.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	want := []string{"abc", "def", "gh"}
	if !reflect.DeepEqual(*lines, want) {
		t.Errorf("lines = %q, want %q", *lines, want)
	}
}

func TestFramer_EmitErrorStopsReading(t *testing.T) {
	stop := errors.New("stop")
	var seen []string
	f := NewFramer(16, func(line []byte) error {
		seen = append(seen, string(line))
		if len(seen) == 2 {
			return stop
		}
		return nil
	})
	_, err := f.ReadFrom(iotest.OneByteReader(strings.NewReader("a\nb\nc\nd\n")))
	if !errors.Is(err, stop) {
		t.Fatalf("Expected emit error, got %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"a", "b"}) {
		t.Errorf("framer kept emitting after an error: %q", seen)
	}
}
