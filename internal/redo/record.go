package redo

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
)

var byteOrder = binary.BigEndian

// Record frame:
//
//	opCode   int32
//	bodyLen  int32
//	body     [bodyLen]byte   timestamp i64 | txn (i32,i32) | mailbox i32 | op data
//	checksum uint64          xxhash64 of body
const (
	frameHeaderSize = 4 + 4
	checksumSize    = 8
	bodyHeaderSize  = 8 + 4 + 4 + 4

	// MaxRecordBody bounds a single record body.
	MaxRecordBody = 16 << 20
)

// EncodeRecord frames op for appending to a journal.
func EncodeRecord(op Operation) ([]byte, error) {
	var body bytes.Buffer
	out := logio.NewOutput(&body)
	out.Long(op.Timestamp())
	op.TransactionID().Serialize(out)
	out.Int(op.MailboxID())
	if err := op.SerializeData(out); err != nil {
		return nil, errors.Wrapf(err, "serialize %v", op)
	}
	if err := out.Err(); err != nil {
		return nil, err
	}
	if body.Len() > MaxRecordBody {
		return nil, errors.Wrapf(errors.ErrRecordTooLarge, "%d bytes", body.Len())
	}

	buf := make([]byte, 0, frameHeaderSize+body.Len()+checksumSize)
	buf = byteOrder.AppendUint32(buf, uint32(op.OpCode()))
	buf = byteOrder.AppendUint32(buf, uint32(body.Len()))
	buf = append(buf, body.Bytes()...)
	buf = byteOrder.AppendUint64(buf, xxhash.Sum64(body.Bytes()))
	return buf, nil
}

// decodeBody builds the operation for code from a verified record body.
func decodeBody(reg *Registry, code OpCode, body []byte) (Operation, error) {
	op, err := reg.New(code)
	if err != nil {
		return nil, err
	}
	in := logio.NewInput(bytes.NewReader(body))
	ts := in.Long()
	txn := TransactionID{Time: in.Int(), Counter: in.Int()}
	mbox := in.Int()
	if err := in.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCorruptRecord, err.Error())
	}
	op.SetTimestamp(ts)
	op.SetTransactionID(txn)
	op.SetMailboxID(mbox)
	if err := op.DeserializeData(in); err != nil {
		return nil, errors.Wrapf(errors.ErrCorruptRecord, "%s: %v", reg.Name(code), err)
	}
	if in.Len() != int64(len(body)) {
		return nil, errors.Wrapf(errors.ErrCorruptRecord, "%s: %d trailing body bytes", reg.Name(code), int64(len(body))-in.Len())
	}
	return op, nil
}
