package logio

import (
	"bytes"
	"io"
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrNegativeLength is returned when a length prefix is negative where
	// absence is not allowed.
	ErrNegativeLength = errors.New("logio: negative length")

	// ErrTooLong is returned when a string does not fit an int32 length prefix.
	ErrTooLong = errors.New("logio: string too long")
)

// chunk bounds a single allocation when reading a length-prefixed value, so a
// corrupt length cannot force a huge allocation before EOF is discovered.
const chunk = 64 << 10

// Input reads primitives from an underlying reader. A read that runs past the
// end of the stream fails with io.ErrUnexpectedEOF.
type Input struct {
	r   io.Reader
	buf [8]byte
	n   int64
	err error
}

// NewInput returns an Input reading from r.
func NewInput(r io.Reader) *Input {
	return &Input{r: r}
}

// Err returns the first error encountered, if any.
func (in *Input) Err() error {
	return in.err
}

// Len returns the number of bytes consumed so far.
func (in *Input) Len() int64 {
	return in.n
}

func (in *Input) fail(err error) {
	if in.err == nil {
		in.err = err
	}
}

func (in *Input) read(p []byte) bool {
	if in.err != nil {
		return false
	}
	n, err := io.ReadFull(in.r, p)
	in.n += int64(n)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		in.err = err
		return false
	}
	return true
}

func (in *Input) Byte() byte {
	if !in.read(in.buf[:1]) {
		return 0
	}
	return in.buf[0]
}

func (in *Input) Bool() bool {
	return in.Byte() != 0
}

func (in *Input) Short() int16 {
	if !in.read(in.buf[:2]) {
		return 0
	}
	return int16(byteOrder.Uint16(in.buf[:2]))
}

func (in *Input) Int() int32 {
	if !in.read(in.buf[:4]) {
		return 0
	}
	return int32(byteOrder.Uint32(in.buf[:4]))
}

func (in *Input) Long() int64 {
	if !in.read(in.buf[:8]) {
		return 0
	}
	return int64(byteOrder.Uint64(in.buf[:8]))
}

func (in *Input) Double() float64 {
	if !in.read(in.buf[:8]) {
		return 0
	}
	return math.Float64frombits(byteOrder.Uint64(in.buf[:8]))
}

// Bytes reads exactly n raw bytes.
func (in *Input) Bytes(n int) []byte {
	if n < 0 {
		in.fail(ErrNegativeLength)
		return nil
	}
	return in.readN(int64(n))
}

// readN reads n bytes, growing the buffer chunk by chunk so the allocation
// never outruns the data actually present.
func (in *Input) readN(n int64) []byte {
	if in.err != nil {
		return nil
	}
	if n <= chunk {
		p := make([]byte, n)
		if !in.read(p) {
			return nil
		}
		return p
	}
	var b bytes.Buffer
	got, err := io.CopyN(&b, in.r, n)
	in.n += got
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		in.fail(err)
		return nil
	}
	return b.Bytes()
}

// UTF reads a string written by Output.UTF.
func (in *Input) UTF() string {
	n := in.Int()
	if in.err != nil {
		return ""
	}
	if n < 0 {
		in.fail(errors.Wrapf(ErrNegativeLength, "string length %d", n))
		return ""
	}
	return string(in.readN(int64(n)))
}

// UTFArray reads an array written by Output.UTFArray. A NilLength count (or
// any negative count) yields nil; zero yields an empty, non-nil slice.
func (in *Input) UTFArray() []string {
	n := in.Int()
	if in.err != nil || n < 0 {
		return nil
	}
	a := make([]string, 0, min(int(n), chunk))
	for i := int32(0); i < n; i++ {
		s := in.UTF()
		if in.err != nil {
			return nil
		}
		a = append(a, s)
	}
	return a
}

// IntArray reads an array written by Output.IntArray.
func (in *Input) IntArray() []int32 {
	n := in.Int()
	if in.err != nil || n < 0 {
		return nil
	}
	a := make([]int32, 0, min(int(n), chunk))
	for i := int32(0); i < n; i++ {
		v := in.Int()
		if in.err != nil {
			return nil
		}
		a = append(a, v)
	}
	return a
}
