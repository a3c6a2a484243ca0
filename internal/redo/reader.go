package redo

import (
	"bufio"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

// FileLogReader reads records forward from one journal file.
//
// Position is the offset just past the last record that decoded cleanly, so
// after a failed NextOp it is the boundary a torn tail should be cut back to.
type FileLogReader struct {
	path     string
	writable bool
	reg      *Registry

	file   *os.File
	br     *bufio.Reader
	header *LogHeader
	pos    int64
	size   int64
	empty  bool
}

func NewFileLogReader(path string, writable bool, reg *Registry) *FileLogReader {
	return &FileLogReader{
		path:     path,
		writable: writable,
		reg:      reg,
	}
}

// Open opens the file and reads its header. A file too short to hold a
// header was never finished being created and reads as an empty journal.
func (r *FileLogReader) Open() error {
	flag := os.O_RDONLY
	if r.writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(r.path, flag, 0)
	if err != nil {
		return errors.Wrapf(errors.ErrFileOpen, "%s: %v", r.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrapf(errors.ErrFileRead, "%s: %v", r.path, err)
	}

	r.file = f
	r.size = info.Size()
	if r.size < HeaderSize {
		r.empty = true
		return nil
	}

	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, b); err != nil {
		f.Close()
		r.file = nil
		return errors.Wrapf(errors.ErrCorruptHeader, "%s: %v", r.path, err)
	}
	h, err := DecodeLogHeader(b)
	if err != nil {
		f.Close()
		r.file = nil
		return errors.Wrapf(err, "%s", r.path)
	}
	r.header = h
	r.pos = HeaderSize
	r.br = bufio.NewReaderSize(f, 64<<10)
	return nil
}

// Header returns the parsed header, or nil for an empty journal.
func (r *FileLogReader) Header() *LogHeader {
	return r.header
}

// NextOp returns the next record, or (nil, nil) at a clean end of file.
func (r *FileLogReader) NextOp() (Operation, error) {
	if r.empty {
		return nil, nil
	}
	if r.br == nil {
		return nil, errors.ErrLogClosed
	}

	var frame [frameHeaderSize]byte
	n, err := io.ReadFull(r.br, frame[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, nil
		}
		return nil, io.ErrUnexpectedEOF
	}
	code := OpCode(int32(byteOrder.Uint32(frame[0:4])))
	bodyLen := int32(byteOrder.Uint32(frame[4:8]))
	if bodyLen < bodyHeaderSize {
		return nil, errors.Wrapf(errors.ErrCorruptRecord, "body length %d at offset %d", bodyLen, r.pos)
	}
	if bodyLen > MaxRecordBody {
		return nil, errors.Wrapf(errors.ErrRecordTooLarge, "body length %d at offset %d", bodyLen, r.pos)
	}
	if r.pos+frameHeaderSize+int64(bodyLen)+checksumSize > r.size {
		return nil, io.ErrUnexpectedEOF
	}

	body := make([]byte, int(bodyLen)+checksumSize)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	sum := byteOrder.Uint64(body[bodyLen:])
	body = body[:bodyLen]
	if xxhash.Sum64(body) != sum {
		return nil, errors.Wrapf(errors.ErrChecksumMismatch, "record at offset %d", r.pos)
	}

	op, err := decodeBody(r.reg, code, body)
	if err != nil {
		return nil, errors.Wrapf(err, "record at offset %d", r.pos)
	}
	r.pos += frameHeaderSize + int64(bodyLen) + checksumSize
	return op, nil
}

// Position returns the offset after the last cleanly decoded record.
func (r *FileLogReader) Position() int64 {
	return r.pos
}

// Size returns the file size observed at Open, adjusted by Truncate.
func (r *FileLogReader) Size() int64 {
	return r.size
}

// Truncate cuts the file back to offset. Only allowed on a writable reader.
func (r *FileLogReader) Truncate(offset int64) error {
	if !r.writable {
		return errors.ErrReadOnlyLog
	}
	if r.file == nil {
		return errors.ErrLogClosed
	}
	if err := r.file.Truncate(offset); err != nil {
		return errors.Wrapf(errors.ErrFileWrite, "truncate %s to %d: %v", r.path, offset, err)
	}
	if err := r.file.Sync(); err != nil {
		return errors.Wrapf(errors.ErrFileSync, "%s: %v", r.path, err)
	}
	r.size = offset
	return nil
}

func (r *FileLogReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.br = nil
	return err
}

func (r *FileLogReader) Path() string {
	return r.path
}
