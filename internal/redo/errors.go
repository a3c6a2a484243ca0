package redo

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

// RedoError is a replay failure. It always names the operation whose redo
// failed.
type RedoError struct {
	Msg string
	Op  Operation
	Err error
}

func (e *RedoError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "redo failed"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (op: %v)", msg, e.Err, e.Op)
	}
	return fmt.Sprintf("%s (op: %v)", msg, e.Op)
}

func (e *RedoError) Unwrap() error { return e.Err }

// Is makes every RedoError match ErrReplayFailed.
func (e *RedoError) Is(target error) bool { return target == errors.ErrReplayFailed }

// MailboxIDConflictError reports that an account's mailbox was recreated with
// a different id between the time the operation was logged and replay.
type MailboxIDConflictError struct {
	AccountID  string
	ExpectedID int32
	FoundID    int32
	Op         Operation
}

func (e *MailboxIDConflictError) Error() string {
	return fmt.Sprintf("mailbox id conflict for account %s: expected %d, found %d (op: %v)",
		e.AccountID, e.ExpectedID, e.FoundID, e.Op)
}

func (e *MailboxIDConflictError) Is(target error) bool { return target == errors.ErrMailboxConflict }
