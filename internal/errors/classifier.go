package errors

import (
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// ErrorCategory represents the category of an error for retry and reporting.
type ErrorCategory int

const (
	ErrorTransient    ErrorCategory = iota // Temporary errors - retry with backoff
	ErrorPermanent                         // Permanent errors - no retry
	ErrorCritical                          // System-level errors - alert immediately
	ErrorCorruption                        // Unreadable or too-new journal data - fatal to the parse
	ErrorPartialWrite                      // Torn tail left by a crash - repaired by truncation
	ErrorOrdering                          // Orphaned or misordered markers - diagnostic only
	ErrorReplay                            // Redo of an operation failed
	ErrorConflict                          // Mailbox id conflict during redo
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorTransient:
		return "transient"
	case ErrorPermanent:
		return "permanent"
	case ErrorCritical:
		return "critical"
	case ErrorCorruption:
		return "corruption"
	case ErrorPartialWrite:
		return "partial_write"
	case ErrorOrdering:
		return "ordering"
	case ErrorReplay:
		return "replay"
	case ErrorConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Classifier categorizes errors for retry logic and the recovery summary.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify determines the category of an error.
func (c *Classifier) Classify(err error) ErrorCategory {
	if err == nil {
		return ErrorPermanent
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.EAGAIN, syscall.EINTR, syscall.ETIMEDOUT:
			return ErrorTransient
		case syscall.EIO, syscall.ENOSPC:
			return ErrorCritical
		case syscall.ENOENT, syscall.EINVAL, syscall.EEXIST, syscall.EACCES:
			return ErrorPermanent
		}
	}

	switch {
	case errors.Is(err, ErrVersionTooHigh),
		errors.Is(err, ErrCorruptVersion),
		errors.Is(err, ErrCorruptHeader),
		errors.Is(err, ErrMalformedID):
		return ErrorCorruption
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, ErrCorruptRecord),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrUnknownOpCode),
		errors.Is(err, ErrRecordTooLarge):
		// Indistinguishable from a torn write at the tail of the journal.
		return ErrorPartialWrite
	case errors.Is(err, ErrOrphanEndMarker),
		errors.Is(err, ErrStartAfterEnd),
		errors.Is(err, ErrCheckpointDrift):
		return ErrorOrdering
	case errors.Is(err, ErrMailboxConflict):
		return ErrorConflict
	case errors.Is(err, ErrReplayFailed), errors.Is(err, ErrNoSuchMailbox):
		return ErrorReplay
	case errors.Is(err, ErrFileWrite), errors.Is(err, ErrFileSync), errors.Is(err, ErrFileOpen):
		// Could be EAGAIN or ENOENT underneath; treat as worth retrying.
		return ErrorTransient
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrorTransient
	}

	return ErrorPermanent
}

// ShouldRetry returns true if the error category indicates retry is appropriate.
func (c *Classifier) ShouldRetry(category ErrorCategory) bool {
	return category == ErrorTransient
}

// IsCritical returns true if the error requires immediate attention.
func (c *Classifier) IsCritical(category ErrorCategory) bool {
	return category == ErrorCritical
}
