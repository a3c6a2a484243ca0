package logio

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestPrimitives(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(&buf)
	out.Byte(0xfe)
	out.Bool(true)
	out.Bool(false)
	out.Short(-2)
	out.Int(math.MinInt32)
	out.Long(math.MaxInt64)
	out.Double(3.25)
	out.Bytes([]byte("raw"))
	if err := out.Err(); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if out.Len() != int64(buf.Len()) {
		t.Errorf("Len = %d, buffer holds %d", out.Len(), buf.Len())
	}

	in := NewInput(bytes.NewReader(buf.Bytes()))
	if v := in.Byte(); v != 0xfe {
		t.Errorf("Byte = %x", v)
	}
	if !in.Bool() || in.Bool() {
		t.Error("Bool mismatch")
	}
	if v := in.Short(); v != -2 {
		t.Errorf("Short = %d", v)
	}
	if v := in.Int(); v != math.MinInt32 {
		t.Errorf("Int = %d", v)
	}
	if v := in.Long(); v != math.MaxInt64 {
		t.Errorf("Long = %d", v)
	}
	if v := in.Double(); v != 3.25 {
		t.Errorf("Double = %v", v)
	}
	if v := in.Bytes(3); string(v) != "raw" {
		t.Errorf("Bytes = %q", v)
	}
	if err := in.Err(); err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
}

func TestBigEndian(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(&buf)
	out.Int(0x01020304)
	if got := buf.Bytes(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("Expected big-endian bytes, got %v", got)
	}
}

func TestLongString(t *testing.T) {
	long := strings.Repeat("héllo-", 20000) // well past 64KB of encoded bytes
	if len(long) <= 64<<10 {
		t.Fatalf("Test string too short: %d", len(long))
	}

	var buf bytes.Buffer
	out := NewOutput(&buf)
	out.UTF(long)
	out.UTF("")
	if err := out.Err(); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	in := NewInput(&buf)
	if got := in.UTF(); got != long {
		t.Errorf("Long string mismatch: got %d bytes, want %d", len(got), len(long))
	}
	if got := in.UTF(); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
	if err := in.Err(); err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
}

func TestArrays(t *testing.T) {
	tests := []struct {
		name string
		strs []string
		ints []int32
	}{
		{"absent", nil, nil},
		{"empty", []string{}, []int32{}},
		{"values", []string{"a", "", "ccc"}, []int32{1, -1, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			out := NewOutput(&buf)
			out.UTFArray(tt.strs)
			out.IntArray(tt.ints)

			in := NewInput(&buf)
			strs := in.UTFArray()
			ints := in.IntArray()
			if err := in.Err(); err != nil {
				t.Fatalf("Failed to read: %v", err)
			}
			if (strs == nil) != (tt.strs == nil) || len(strs) != len(tt.strs) {
				t.Fatalf("UTFArray = %#v, want %#v", strs, tt.strs)
			}
			for i := range strs {
				if strs[i] != tt.strs[i] {
					t.Errorf("UTFArray[%d] = %q, want %q", i, strs[i], tt.strs[i])
				}
			}
			if (ints == nil) != (tt.ints == nil) || len(ints) != len(tt.ints) {
				t.Fatalf("IntArray = %#v, want %#v", ints, tt.ints)
			}
			for i := range ints {
				if ints[i] != tt.ints[i] {
					t.Errorf("IntArray[%d] = %d, want %d", i, ints[i], tt.ints[i])
				}
			}
		})
	}
}

func TestReadPastEnd(t *testing.T) {
	in := NewInput(bytes.NewReader([]byte{0, 0}))
	_ = in.Int()
	if !errors.Is(in.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("Expected ErrUnexpectedEOF, got %v", in.Err())
	}
	// Sticky: later reads do nothing and keep the first error.
	if v := in.Long(); v != 0 {
		t.Errorf("Expected zero after failure, got %d", v)
	}
	if !errors.Is(in.Err(), io.ErrUnexpectedEOF) {
		t.Errorf("Sticky error lost: %v", in.Err())
	}
}

func TestEmptyStream(t *testing.T) {
	in := NewInput(bytes.NewReader(nil))
	_ = in.Byte()
	if !errors.Is(in.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("Expected ErrUnexpectedEOF, got %v", in.Err())
	}
}

func TestDeclaredLengthBeyondData(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(&buf)
	out.Int(math.MaxInt32)
	out.Bytes([]byte("short"))

	in := NewInput(&buf)
	if s := in.UTF(); s != "" {
		t.Errorf("Expected empty result, got %d bytes", len(s))
	}
	if !errors.Is(in.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("Expected ErrUnexpectedEOF, got %v", in.Err())
	}
}

func TestNegativeStringLength(t *testing.T) {
	var buf bytes.Buffer
	NewOutput(&buf).Int(-5)

	in := NewInput(&buf)
	_ = in.UTF()
	if !errors.Is(in.Err(), ErrNegativeLength) {
		t.Fatalf("Expected ErrNegativeLength, got %v", in.Err())
	}
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, io.ErrShortWrite
	}
	w.n--
	return len(p), nil
}

func TestOutputStickyError(t *testing.T) {
	out := NewOutput(&failWriter{n: 1})
	out.Int(1)
	out.Int(2)
	out.Int(3)
	if !errors.Is(out.Err(), io.ErrShortWrite) {
		t.Fatalf("Expected ErrShortWrite, got %v", out.Err())
	}
	if out.Len() != 4 {
		t.Errorf("Len = %d, want 4", out.Len())
	}
}
