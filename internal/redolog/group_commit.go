package redolog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/redolog/internal/config"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
)

// GroupCommit batches journal records and performs a single fsync per batch.
//
// Modes:
//   - FsyncAlways: write through, fsync on every synchronous write
//   - FsyncGroup: buffer records, flush on timer or batch size; a synchronous
//     write blocks until the batch holding it has been synced
//   - FsyncNone: write through, never fsync
//
// A failed write or fsync cuts the file back to the end of the last record
// that made it, so a later write never lands after a partial record.
type GroupCommit struct {
	mu     sync.Mutex
	file   FileHandle
	cfg    config.FsyncConfig
	logger *logger.Logger
	mode   config.FsyncMode

	offset     int64 // end of the last whole record in the file
	buffer     [][]byte
	bufferSize uint64
	waiters    []chan error

	kick   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	stats GroupCommitStats

	// OnFsync is called after each fsync with its duration and batch size.
	OnFsync func(duration time.Duration, records int)
}

// GroupCommitStats tracks group commit performance.
type GroupCommitStats struct {
	TotalBatches    uint64
	TotalRecords    uint64
	AvgBatchSize    float64
	MaxBatchSize    int
	MaxBatchLatency time.Duration
	LastFlushTime   time.Time
}

// FileHandle abstracts file operations for group commit.
type FileHandle interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Truncate(size int64) error
	Seek(offset int64, whence int) (int64, error)
}

// NewGroupCommit appends to file, whose records end at offset.
func NewGroupCommit(file FileHandle, offset int64, cfg config.FsyncConfig, log *logger.Logger) *GroupCommit {
	return &GroupCommit{
		file:   file,
		offset: offset,
		cfg:    cfg,
		logger: log,
		mode:   cfg.Mode,
		buffer: make([][]byte, 0, cfg.MaxBatchSize),
		kick:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Start begins the background flusher (group mode only).
func (gc *GroupCommit) Start() {
	if gc.mode != config.FsyncGroup {
		return
	}
	gc.wg.Add(1)
	go gc.flushLoop()
}

// Stop shuts down the flusher and flushes what is left.
func (gc *GroupCommit) Stop() error {
	close(gc.stopCh)
	gc.wg.Wait()

	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.flushUnsafe()
}

// Write hands a record to the journal. With sync set it returns only once
// the record is durable (modulo FsyncNone).
func (gc *GroupCommit) Write(record []byte, sync bool) error {
	switch gc.mode {
	case config.FsyncAlways:
		gc.mu.Lock()
		defer gc.mu.Unlock()
		_, err := gc.file.Write(record)
		if err == nil && sync {
			err = gc.syncUnsafe(1)
		}
		if err != nil {
			gc.rollbackUnsafe()
			return err
		}
		gc.offset += int64(len(record))
		return nil

	case config.FsyncGroup:
		gc.mu.Lock()
		gc.buffer = append(gc.buffer, record)
		gc.bufferSize += uint64(len(record))
		var done chan error
		if sync {
			done = make(chan error, 1)
			gc.waiters = append(gc.waiters, done)
		}
		full := len(gc.buffer) >= gc.cfg.MaxBatchSize
		gc.mu.Unlock()

		if full {
			select {
			case gc.kick <- struct{}{}:
			default:
			}
		}
		if done == nil {
			return nil
		}
		return <-done

	case config.FsyncNone:
		gc.mu.Lock()
		defer gc.mu.Unlock()
		if _, err := gc.file.Write(record); err != nil {
			gc.rollbackUnsafe()
			return err
		}
		gc.offset += int64(len(record))
		return nil

	default:
		return fmt.Errorf("unknown fsync mode: %q", gc.mode)
	}
}

// Sync forces an immediate flush of buffered records.
func (gc *GroupCommit) Sync() error {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.mode == config.FsyncGroup {
		return gc.flushUnsafe()
	}
	if gc.mode == config.FsyncAlways {
		return gc.syncUnsafe(0)
	}
	return nil
}

func (gc *GroupCommit) syncUnsafe(records int) error {
	start := time.Now()
	if err := gc.file.Sync(); err != nil {
		return err
	}
	if gc.OnFsync != nil {
		gc.OnFsync(time.Since(start), records)
	}
	return nil
}

// flushUnsafe writes and syncs the buffer and releases its waiters (must hold mu).
func (gc *GroupCommit) flushUnsafe() error {
	if len(gc.buffer) == 0 {
		return nil
	}

	startTime := time.Now()
	var err error
	for _, rec := range gc.buffer {
		if _, err = gc.file.Write(rec); err != nil {
			break
		}
	}
	if err == nil {
		err = gc.syncUnsafe(len(gc.buffer))
	}
	if err != nil {
		gc.rollbackUnsafe()
	} else {
		gc.offset += int64(gc.bufferSize)
	}
	for _, w := range gc.waiters {
		w <- err
	}

	if err == nil {
		batchSize := len(gc.buffer)
		batchLatency := time.Since(startTime)
		gc.stats.TotalBatches++
		gc.stats.TotalRecords += uint64(batchSize)
		gc.stats.AvgBatchSize = float64(gc.stats.TotalRecords) / float64(gc.stats.TotalBatches)
		if batchSize > gc.stats.MaxBatchSize {
			gc.stats.MaxBatchSize = batchSize
		}
		if batchLatency > gc.stats.MaxBatchLatency {
			gc.stats.MaxBatchLatency = batchLatency
		}
		gc.stats.LastFlushTime = time.Now()
	} else {
		gc.logger.Error("Group commit flush of %d records failed, batch dropped: %v", len(gc.buffer), err)
	}

	gc.buffer = gc.buffer[:0]
	gc.bufferSize = 0
	gc.waiters = gc.waiters[:0]
	return err
}

// rollbackUnsafe cuts the file back to the last whole record (must hold mu).
func (gc *GroupCommit) rollbackUnsafe() {
	if err := gc.file.Truncate(gc.offset); err != nil {
		gc.logger.Warn("Failed to roll back partial write to offset %d: %v", gc.offset, err)
		return
	}
	if _, err := gc.file.Seek(gc.offset, io.SeekStart); err != nil {
		gc.logger.Warn("Failed to reposition to offset %d: %v", gc.offset, err)
	}
}

func (gc *GroupCommit) flushLoop() {
	defer gc.wg.Done()

	ticker := time.NewTicker(gc.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-gc.stopCh:
			return
		case <-ticker.C:
		case <-gc.kick:
		}
		gc.mu.Lock()
		gc.flushUnsafe()
		gc.mu.Unlock()
	}
}

// Offset returns the end of the last record written to the file.
func (gc *GroupCommit) Offset() int64 {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.offset
}

// Size returns Offset plus the bytes still buffered for the next flush.
func (gc *GroupCommit) Size() int64 {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.offset + int64(gc.bufferSize)
}

// Buffered reports the number of records waiting for the next flush.
func (gc *GroupCommit) Buffered() int {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return len(gc.buffer)
}

func (gc *GroupCommit) GetStats() GroupCommitStats {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.stats
}
