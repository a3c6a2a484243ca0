// Package logio implements the primitive codec every journal record is built
// from. All values are big-endian. Strings carry an int32 byte count, so there
// is no 64KB ceiling on string length.
//
// Both Input and Output keep a sticky error: after the first failure every
// further call is a no-op and Err reports the original failure. Callers
// encode a whole record and check Err once.
package logio

import (
	"encoding/binary"
	"io"
	"math"
)

var byteOrder = binary.BigEndian

// NilLength is the array length that encodes an absent (nil) array.
const NilLength = -1

// Output writes primitives to an underlying writer.
type Output struct {
	w   io.Writer
	buf [8]byte
	n   int64
	err error
}

// NewOutput returns an Output writing to w.
func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// Err returns the first error encountered, if any.
func (o *Output) Err() error {
	return o.err
}

// Len returns the number of bytes written so far.
func (o *Output) Len() int64 {
	return o.n
}

func (o *Output) write(p []byte) {
	if o.err != nil {
		return
	}
	n, err := o.w.Write(p)
	o.n += int64(n)
	if err != nil {
		o.err = err
	}
}

func (o *Output) Byte(v byte) {
	o.buf[0] = v
	o.write(o.buf[:1])
}

func (o *Output) Bool(v bool) {
	if v {
		o.Byte(1)
	} else {
		o.Byte(0)
	}
}

func (o *Output) Short(v int16) {
	byteOrder.PutUint16(o.buf[:2], uint16(v))
	o.write(o.buf[:2])
}

func (o *Output) Int(v int32) {
	byteOrder.PutUint32(o.buf[:4], uint32(v))
	o.write(o.buf[:4])
}

func (o *Output) Long(v int64) {
	byteOrder.PutUint64(o.buf[:8], uint64(v))
	o.write(o.buf[:8])
}

// Double writes the IEEE-754 bit pattern of v.
func (o *Output) Double(v float64) {
	byteOrder.PutUint64(o.buf[:8], math.Float64bits(v))
	o.write(o.buf[:8])
}

// Bytes writes p verbatim, with no length prefix.
func (o *Output) Bytes(p []byte) {
	if len(p) == 0 {
		return
	}
	o.write(p)
}

// UTF writes s as an int32 byte count followed by its UTF-8 bytes.
func (o *Output) UTF(s string) {
	if int64(len(s)) > math.MaxInt32 {
		if o.err == nil {
			o.err = ErrTooLong
		}
		return
	}
	o.Int(int32(len(s)))
	if len(s) > 0 {
		o.write([]byte(s))
	}
}

// UTFArray writes an int32 count followed by each string. A nil slice is
// written as NilLength so that it reads back as nil rather than empty.
func (o *Output) UTFArray(a []string) {
	if a == nil {
		o.Int(NilLength)
		return
	}
	o.Int(int32(len(a)))
	for _, s := range a {
		o.UTF(s)
	}
}

// IntArray writes an int32 count followed by each value, with the same nil
// convention as UTFArray.
func (o *Output) IntArray(a []int32) {
	if a == nil {
		o.Int(NilLength)
		return
	}
	o.Int(int32(len(a)))
	for _, v := range a {
		o.Int(v)
	}
}
