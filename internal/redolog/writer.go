package redolog

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kartikbazzad/bunbase/redolog/internal/config"
	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/metrics"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

// FileLogWriter appends framed records to the active journal.
//
// It is responsible for:
//   - Writing the fixed header when the journal is created
//   - Marking the header open while the writer is open and closed on Close
//   - Routing records through GroupCommit according to the fsync policy
//   - Retrying transient write failures
//
// While open, the file offset and the rollback of failed writes belong to
// GroupCommit.
type FileLogWriter struct {
	mu       sync.RWMutex // open/close against writers
	stateMu  sync.Mutex   // header and closed size
	path     string
	fsync    config.FsyncConfig
	serverID string
	logger   *logger.Logger

	file    *os.File
	header  *redo.LogHeader
	size    int64
	nextSeq int64
	gc      *GroupCommit
	isOpen  bool

	retryCtrl    *errors.RetryController
	classifier   *errors.Classifier
	errorTracker *errors.ErrorTracker
}

// NewFileLogWriter creates a writer for the journal at path. serverID is
// stamped into new journal headers; empty means a fresh uuid.
func NewFileLogWriter(path string, fsync config.FsyncConfig, serverID string, log *logger.Logger) *FileLogWriter {
	if serverID == "" {
		serverID = uuid.NewString()
	}
	return &FileLogWriter{
		path:         path,
		fsync:        fsync,
		serverID:     serverID,
		logger:       log,
		nextSeq:      1,
		retryCtrl:    errors.NewRetryController(),
		classifier:   errors.NewClassifier(),
		errorTracker: errors.NewErrorTracker(),
	}
}

// SetErrorTracker shares an error tracker with the rest of the journal.
func (w *FileLogWriter) SetErrorTracker(t *errors.ErrorTracker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorTracker = t
}

// SetNextSeq sets the sequence number used when the next journal is created.
func (w *FileLogWriter) SetNextSeq(seq int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSeq = seq
}

// Open opens the journal, creating it with a fresh header if it is missing
// or empty.
func (w *FileLogWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isOpen {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return errors.Wrapf(errors.ErrFileOpen, "create journal dir: %v", err)
	}
	f, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrapf(errors.ErrFileOpen, "%s: %v", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrapf(errors.ErrFileOpen, "%s: %v", w.path, err)
	}

	var h *redo.LogHeader
	var size int64
	if info.Size() < redo.HeaderSize {
		if info.Size() > 0 {
			w.logger.Warn("Redo log %s is %d bytes, shorter than its header; recreating it", w.path, info.Size())
		}
		h = &redo.LogHeader{
			Version:    redo.LatestVersion(),
			Seq:        w.nextSeq,
			CreateTime: time.Now().UnixMilli(),
			ServerID:   w.serverID,
		}
		size = redo.HeaderSize
		w.logger.Info("Created redo log %s (seq=%d)", w.path, h.Seq)
	} else {
		b := make([]byte, redo.HeaderSize)
		if _, err := io.ReadFull(f, b); err != nil {
			f.Close()
			return errors.Wrapf(errors.ErrCorruptHeader, "%s: %v", w.path, err)
		}
		h, err = redo.DecodeLogHeader(b)
		if err != nil {
			f.Close()
			return errors.Wrapf(err, "%s", w.path)
		}
		if h.Version.TooHigh() {
			f.Close()
			return errors.Wrapf(errors.ErrVersionTooHigh, "%s has version %s", w.path, h.Version)
		}
		size = info.Size()
	}

	h.Open = true
	h.FileSize = size
	if err := redo.WriteLogHeader(f, h); err != nil {
		f.Close()
		return errors.Wrapf(errors.ErrFileWrite, "header of %s: %v", w.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(errors.ErrFileSync, "%s: %v", w.path, err)
	}
	if _, err := f.Seek(size, io.SeekStart); err != nil {
		f.Close()
		return errors.Wrapf(errors.ErrFileOpen, "seek %s: %v", w.path, err)
	}

	w.file = f
	w.stateMu.Lock()
	w.header = h
	w.size = size
	w.stateMu.Unlock()
	w.gc = NewGroupCommit(f, size, w.fsync, w.logger)
	w.gc.OnFsync = func(d time.Duration, records int) {
		metrics.FsyncDuration.Observe(d.Seconds())
		if records > 0 {
			metrics.FsyncBatchSize.Observe(float64(records))
		}
	}
	w.gc.Start()
	w.isOpen = true
	return nil
}

// Write appends one encoded record logged at ts (ms).
func (w *FileLogWriter) Write(record []byte, ts int64, sync bool) error {
	if w.fsync.Mode == config.FsyncGroup {
		return w.writeGroup(record, ts, sync)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isOpen {
		return errors.ErrLogClosed
	}
	// A failed attempt has already been cut back to the last whole record.
	err := w.retryCtrl.Retry(func() error {
		if err := w.gc.Write(record, sync); err != nil {
			w.errorTracker.RecordError(err, w.classifier.Classify(err))
			return errors.Wrapf(err, "write %s", w.path)
		}
		return nil
	}, w.classifier)
	if err != nil {
		return err
	}
	w.touch(ts)
	return nil
}

// writeGroup lets concurrent writers share one fsync. Buffered records are
// owned by the flusher, so a failed batch is dropped and reported rather
// than retried.
func (w *FileLogWriter) writeGroup(record []byte, ts int64, sync bool) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.isOpen {
		return errors.ErrLogClosed
	}
	if err := w.gc.Write(record, sync); err != nil {
		w.errorTracker.RecordError(err, w.classifier.Classify(err))
		return errors.Wrapf(err, "write %s", w.path)
	}
	w.touch(ts)
	return nil
}

func (w *FileLogWriter) touch(ts int64) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.header.FirstOpTime == 0 {
		w.header.FirstOpTime = ts
	}
	w.header.LastOpTime = ts
}

// Flush makes everything written so far durable.
func (w *FileLogWriter) Flush() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.isOpen {
		return nil
	}
	return w.gc.Sync()
}

// Close flushes pending records and marks the header closed.
func (w *FileLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isOpen {
		return nil
	}
	w.isOpen = false

	var firstErr error
	if err := w.gc.Stop(); err != nil {
		firstErr = errors.Wrapf(errors.ErrFileWrite, "flush %s: %v", w.path, err)
	}
	w.stateMu.Lock()
	w.size = w.gc.Offset()
	w.header.Open = false
	w.header.FileSize = w.size
	h := *w.header
	w.header = nil
	w.stateMu.Unlock()
	if err := redo.WriteLogHeader(w.file, &h); err != nil && firstErr == nil {
		firstErr = errors.Wrapf(errors.ErrFileWrite, "header of %s: %v", w.path, err)
	}
	if err := w.file.Sync(); err != nil && firstErr == nil {
		firstErr = errors.Wrapf(errors.ErrFileSync, "%s: %v", w.path, err)
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.file = nil
	w.gc = nil
	return firstErr
}

func (w *FileLogWriter) Path() string { return w.path }

func (w *FileLogWriter) IsOpen() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isOpen
}

// Size returns the logical journal size, including records still buffered
// for group commit.
func (w *FileLogWriter) Size() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.isOpen {
		return w.gc.Size()
	}
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.size
}

// Header returns a copy of the in-memory header, or nil when closed.
func (w *FileLogWriter) Header() *redo.LogHeader {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.header == nil {
		return nil
	}
	h := *w.header
	return &h
}
