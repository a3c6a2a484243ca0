package redo

import (
	"context"

	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
)

// OpCode identifies an operation type in the journal. Codes below 1000 are
// control records; the mailbox layer registers its own above that.
type OpCode int32

// MailboxIDAll is the mailbox id of operations that span every mailbox (blob
// store wide). Such operations list the affected mailboxes explicitly via
// MultiMailboxOp.
const MailboxIDAll int32 = -1

// MailboxIDNone marks operations that touch no mailbox.
const MailboxIDNone int32 = 0

// Operation is a journaled mutation. The replay engine only looks at the
// fields exposed here; payload is private to each operation type and encoded
// with logio so the journal stays forward-scannable.
type Operation interface {
	OpCode() OpCode

	TransactionID() TransactionID
	SetTransactionID(TransactionID)

	// Timestamp is the time the record was logged, in milliseconds.
	Timestamp() int64
	SetTimestamp(int64)

	MailboxID() int32
	SetMailboxID(int32)

	IsStartMarker() bool
	IsEndMarker() bool
	IsDeleteOp() bool

	// DeferCrashRecovery reports that redo must wait until the server has
	// finished starting.
	DeferCrashRecovery() bool

	SetUnloggedReplay(bool)
	UnloggedReplay() bool

	Redo(ctx context.Context) RedoResult

	SerializeData(out *logio.Output) error
	DeserializeData(in *logio.Input) error

	String() string
}

// MultiMailboxOp is implemented by MailboxIDAll operations that carry the
// list of mailboxes they affect. A nil list means every mailbox.
type MultiMailboxOp interface {
	Operation
	MailboxIDList() []int32
	SetMailboxIDList([]int32)
}

// OpHeader carries the fields common to every record. Embed it and override
// the marker predicates as needed; by default an operation is a start marker.
type OpHeader struct {
	txnID     TransactionID
	timestamp int64
	mailboxID int32
	unlogged  bool
}

func (h *OpHeader) TransactionID() TransactionID      { return h.txnID }
func (h *OpHeader) SetTransactionID(id TransactionID) { h.txnID = id }
func (h *OpHeader) Timestamp() int64                  { return h.timestamp }
func (h *OpHeader) SetTimestamp(ts int64)             { h.timestamp = ts }
func (h *OpHeader) MailboxID() int32                  { return h.mailboxID }
func (h *OpHeader) SetMailboxID(id int32)             { h.mailboxID = id }
func (h *OpHeader) IsStartMarker() bool               { return true }
func (h *OpHeader) IsEndMarker() bool                 { return false }
func (h *OpHeader) IsDeleteOp() bool                  { return false }
func (h *OpHeader) DeferCrashRecovery() bool          { return false }
func (h *OpHeader) SetUnloggedReplay(v bool)          { h.unlogged = v }
func (h *OpHeader) UnloggedReplay() bool              { return h.unlogged }
