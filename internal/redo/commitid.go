package redo

import (
	"fmt"
	"strconv"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

// CommitID locates one commit record in journal history: RedoSeq names the
// journal file, TxnTimestamp and TxnID pick the record inside it. The
// timestamp tells a replayed commit apart from the original.
type CommitID struct {
	RedoSeq      int64
	TxnTimestamp int64
	TxnID        TransactionID
}

// NewCommitID builds the locator for a commit record written to journal seq.
func NewCommitID(seq int64, commit *CommitTxn) CommitID {
	return CommitID{
		RedoSeq:      seq,
		TxnTimestamp: commit.Timestamp(),
		TxnID:        commit.TransactionID(),
	}
}

// Matches reports whether op is the commit record this id points at.
func (c CommitID) Matches(op Operation) bool {
	commit, ok := op.(*CommitTxn)
	if !ok {
		return false
	}
	return commit.TransactionID() == c.TxnID && commit.Timestamp() == c.TxnTimestamp
}

// EncodeToString returns "<seq>-<timestamp>-<time>-<counter>".
func (c CommitID) EncodeToString() string {
	return fmt.Sprintf("%d-%d-%s", c.RedoSeq, c.TxnTimestamp, c.TxnID.EncodeToString())
}

func (c CommitID) String() string {
	return c.EncodeToString()
}

// DecodeCommitID parses the form produced by EncodeToString.
func DecodeCommitID(s string) (CommitID, error) {
	fields, err := splitSigned(s, 4)
	if err != nil {
		return CommitID{}, err
	}
	seq, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return CommitID{}, errors.Wrapf(errors.ErrMalformedID, "commit id %q: sequence", s)
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return CommitID{}, errors.Wrapf(errors.ErrMalformedID, "commit id %q: timestamp", s)
	}
	txn, err := DecodeTransactionID(fields[2] + "-" + fields[3])
	if err != nil {
		return CommitID{}, errors.Wrapf(err, "commit id %q", s)
	}
	return CommitID{RedoSeq: seq, TxnTimestamp: ts, TxnID: txn}, nil
}
