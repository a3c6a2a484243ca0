package redo

import (
	"context"
	"fmt"
	"strings"

	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
)

const (
	OpCommitTxn  OpCode = 1
	OpAbortTxn   OpCode = 2
	OpCheckpoint OpCode = 3
)

// endMarker is shared by CommitTxn and AbortTxn. TxnOpCode is the code of
// the operation the marker ends.
type endMarker struct {
	OpHeader
	TxnOpCode OpCode
}

func (m *endMarker) IsStartMarker() bool { return false }
func (m *endMarker) IsEndMarker() bool   { return true }

func (m *endMarker) Redo(context.Context) RedoResult { return Applied() }

func (m *endMarker) SerializeData(out *logio.Output) error {
	out.Int(int32(m.TxnOpCode))
	return out.Err()
}

func (m *endMarker) DeserializeData(in *logio.Input) error {
	m.TxnOpCode = OpCode(in.Int())
	return in.Err()
}

func newEndMarker(op Operation) endMarker {
	m := endMarker{TxnOpCode: op.OpCode()}
	m.SetTransactionID(op.TransactionID())
	m.SetMailboxID(op.MailboxID())
	return m
}

// CommitTxn ends a transaction successfully. Its timestamp is the commit time.
type CommitTxn struct {
	endMarker
}

// NewCommitTxn builds the commit marker for op. The timestamp is assigned
// when the marker is logged.
func NewCommitTxn(op Operation) *CommitTxn {
	return &CommitTxn{endMarker: newEndMarker(op)}
}

func (c *CommitTxn) OpCode() OpCode { return OpCommitTxn }

func (c *CommitTxn) String() string {
	return fmt.Sprintf("CommitTxn{txn=%s ts=%d mbox=%d op=%d}", c.TransactionID(), c.Timestamp(), c.MailboxID(), c.TxnOpCode)
}

// AbortTxn ends a transaction with no effect.
type AbortTxn struct {
	endMarker
}

func NewAbortTxn(op Operation) *AbortTxn {
	return &AbortTxn{endMarker: newEndMarker(op)}
}

func (a *AbortTxn) OpCode() OpCode { return OpAbortTxn }

func (a *AbortTxn) String() string {
	return fmt.Sprintf("AbortTxn{txn=%s ts=%d mbox=%d op=%d}", a.TransactionID(), a.Timestamp(), a.MailboxID(), a.TxnOpCode)
}

// Checkpoint lists the transactions the writer believed were still open.
// Replay only compares it against what the scan itself saw.
type Checkpoint struct {
	OpHeader
	ActiveTxns []TransactionID
}

func NewCheckpoint(active []TransactionID) *Checkpoint {
	return &Checkpoint{ActiveTxns: active}
}

func (c *Checkpoint) OpCode() OpCode      { return OpCheckpoint }
func (c *Checkpoint) IsStartMarker() bool { return false }

func (c *Checkpoint) Redo(context.Context) RedoResult { return Applied() }

func (c *Checkpoint) SerializeData(out *logio.Output) error {
	out.Int(int32(len(c.ActiveTxns)))
	for _, id := range c.ActiveTxns {
		id.Serialize(out)
	}
	return out.Err()
}

func (c *Checkpoint) DeserializeData(in *logio.Input) error {
	n := in.Int()
	if err := in.Err(); err != nil {
		return err
	}
	if n < 0 {
		return logio.ErrNegativeLength
	}
	c.ActiveTxns = make([]TransactionID, 0, min(int(n), 1024))
	for i := int32(0); i < n; i++ {
		id, err := DeserializeTransactionID(in)
		if err != nil {
			return err
		}
		c.ActiveTxns = append(c.ActiveTxns, id)
	}
	return nil
}

func (c *Checkpoint) String() string {
	ids := make([]string, len(c.ActiveTxns))
	for i, id := range c.ActiveTxns {
		ids[i] = id.String()
	}
	return fmt.Sprintf("Checkpoint{ts=%d active=[%s]}", c.Timestamp(), strings.Join(ids, ","))
}
