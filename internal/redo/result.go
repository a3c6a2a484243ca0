package redo

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

// ResultKind tags the outcome of Operation.Redo.
type ResultKind int

const (
	ResultApplied ResultKind = iota
	ResultConflict
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultApplied:
		return "applied"
	case ResultConflict:
		return "conflict"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RedoResult is what an operation reports back from Redo. Conflict carries
// the account and both mailbox ids; Failed carries the cause.
type RedoResult struct {
	Kind       ResultKind
	AccountID  string
	ExpectedID int32
	FoundID    int32
	Cause      error
}

func Applied() RedoResult {
	return RedoResult{Kind: ResultApplied}
}

func Conflict(accountID string, expected, found int32) RedoResult {
	return RedoResult{Kind: ResultConflict, AccountID: accountID, ExpectedID: expected, FoundID: found}
}

func Failed(err error) RedoResult {
	if err == nil {
		err = errors.ErrReplayFailed
	}
	return RedoResult{Kind: ResultFailed, Cause: err}
}

func (r RedoResult) OK() bool { return r.Kind == ResultApplied }

// Err converts the result into the equivalent error for op, or nil when applied.
func (r RedoResult) Err(op Operation) error {
	switch r.Kind {
	case ResultApplied:
		return nil
	case ResultConflict:
		return &MailboxIDConflictError{
			AccountID:  r.AccountID,
			ExpectedID: r.ExpectedID,
			FoundID:    r.FoundID,
			Op:         op,
		}
	default:
		return &RedoError{Msg: "redo failed", Op: op, Err: r.Cause}
	}
}

func (r RedoResult) String() string {
	switch r.Kind {
	case ResultConflict:
		return fmt.Sprintf("conflict(account=%s expected=%d found=%d)", r.AccountID, r.ExpectedID, r.FoundID)
	case ResultFailed:
		return fmt.Sprintf("failed(%v)", r.Cause)
	default:
		return r.Kind.String()
	}
}
