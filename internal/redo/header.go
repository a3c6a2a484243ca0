package redo

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
)

// HeaderSize is the fixed size of the journal file header. Records start
// right after it.
const HeaderSize = 512

// LogHeader is the fixed block at offset 0 of every journal file. The
// writer rewrites it in place on open and close.
type LogHeader struct {
	Version     Version
	Open        bool
	Seq         int64
	CreateTime  int64 // ms
	FirstOpTime int64 // ms, 0 until the first record
	LastOpTime  int64 // ms
	FileSize    int64
	ServerID    string
}

// Encode returns the header padded to HeaderSize.
func (h *LogHeader) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	out := logio.NewOutput(&buf)
	h.Version.Serialize(out)
	out.Bool(h.Open)
	out.Long(h.Seq)
	out.Long(h.CreateTime)
	out.Long(h.FirstOpTime)
	out.Long(h.LastOpTime)
	out.Long(h.FileSize)
	out.UTF(h.ServerID)
	if err := out.Err(); err != nil {
		return nil, err
	}
	if buf.Len() > HeaderSize {
		return nil, errors.Wrapf(errors.ErrCorruptHeader, "encoded header is %d bytes", buf.Len())
	}
	b := make([]byte, HeaderSize)
	copy(b, buf.Bytes())
	return b, nil
}

// DecodeLogHeader parses a header block. When the version is newer than
// this build understands, only Version is filled in; the caller must check
// Version.TooHigh before trusting anything else.
func DecodeLogHeader(b []byte) (*LogHeader, error) {
	if len(b) < HeaderSize {
		return nil, errors.Wrapf(errors.ErrCorruptHeader, "short header: %d bytes", len(b))
	}
	in := logio.NewInput(bytes.NewReader(b[:HeaderSize]))
	v, err := DeserializeVersion(in)
	if err != nil {
		return nil, err
	}
	h := &LogHeader{Version: v}
	if v.TooHigh() {
		return h, nil
	}
	h.Open = in.Bool()
	h.Seq = in.Long()
	h.CreateTime = in.Long()
	h.FirstOpTime = in.Long()
	h.LastOpTime = in.Long()
	h.FileSize = in.Long()
	h.ServerID = in.UTF()
	if err := in.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCorruptHeader, err.Error())
	}
	return h, nil
}

// ReadLogHeader reads the header of the journal at path.
func ReadLogHeader(path string) (*LogHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, errors.Wrapf(errors.ErrCorruptHeader, "%s: %v", path, err)
	}
	return DecodeLogHeader(b)
}

// WriteLogHeader writes h at offset 0 of w.
func WriteLogHeader(w io.WriterAt, h *LogHeader) error {
	b, err := h.Encode()
	if err != nil {
		return err
	}
	_, err = w.WriteAt(b, 0)
	return err
}

func (h *LogHeader) String() string {
	return fmt.Sprintf("version=%s open=%t seq=%d created=%d first=%d last=%d size=%d server=%s",
		h.Version, h.Open, h.Seq, h.CreateTime, h.FirstOpTime, h.LastOpTime, h.FileSize, h.ServerID)
}
