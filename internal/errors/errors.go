package errors

import (
	"github.com/pkg/errors"
)

// Journal format errors. Any of these while reading a journal means the bytes
// on disk are not something this build can interpret.
var (
	// ErrCorruptVersion is returned when a serialized version has a negative field
	ErrCorruptVersion = errors.New("corrupt version: negative major or minor")

	// ErrVersionTooHigh is returned when a journal was written by newer code
	ErrVersionTooHigh = errors.New("journal version is newer than this build supports")

	// ErrCorruptHeader is returned when the fixed-size journal header cannot be parsed
	ErrCorruptHeader = errors.New("corrupt journal header")

	// ErrCorruptRecord is returned when a record frame is malformed
	ErrCorruptRecord = errors.New("corrupt record: invalid length or format")

	// ErrChecksumMismatch is returned when a record body fails its checksum
	ErrChecksumMismatch = errors.New("record checksum mismatch")

	// ErrUnknownOpCode is returned when a record carries an op code nobody registered
	ErrUnknownOpCode = errors.New("unknown operation code")

	// ErrRecordTooLarge is returned when a record body exceeds the frame limit
	ErrRecordTooLarge = errors.New("record exceeds maximum size")

	// ErrMalformedID is returned when a transaction or commit id string cannot be parsed
	ErrMalformedID = errors.New("malformed identifier")
)

// Ordering anomalies. Diagnostic only; they never stop a scan.
var (
	ErrOrphanEndMarker = errors.New("commit/abort record encountered before its start marker")
	ErrStartAfterEnd   = errors.New("start marker encountered after its own commit/abort")
	ErrCheckpointDrift = errors.New("checkpoint uncommitted set differs from scanned state")
)

// Replay errors.
var (
	ErrReplayFailed    = errors.New("redo of operation failed")
	ErrMailboxConflict = errors.New("mailbox id conflict")
	ErrNoSuchMailbox   = errors.New("no such mailbox")
)

// File I/O errors, used by the journal writer and reader.
var (
	ErrFileOpen  = errors.New("failed to open file")
	ErrFileWrite = errors.New("failed to write file")
	ErrFileSync  = errors.New("failed to sync file")
	ErrFileRead  = errors.New("failed to read file")

	// ErrLogClosed is returned when writing to a journal that is not open
	ErrLogClosed = errors.New("redo log is not open")

	// ErrReadOnlyLog is returned when truncating a journal opened read-only
	ErrReadOnlyLog = errors.New("redo log opened read-only")
)

// Lifecycle errors.
var (
	ErrProviderActive   = errors.New("another redo log provider owns this log directory")
	ErrNotMaster        = errors.New("redo log provider is not the master")
	ErrNotStarted       = errors.New("redo log provider not started")
	ErrOverlappingRemap = errors.New("mailbox restore groups overlap")
	ErrCommitNotFound   = errors.New("commit record not found")
)
