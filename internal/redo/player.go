package redo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/metrics"
)

// PlayerOptions are the replay policy flags, fixed for the life of a Player.
type PlayerOptions struct {
	// Writable allows the player to truncate a torn journal tail.
	Writable bool
	// UnloggedReplay is passed to each replayed operation.
	UnloggedReplay bool
	// IgnoreReplayErrors logs failed redo calls and keeps going.
	IgnoreReplayErrors bool
	// SkipDeleteOps skips delete-type operations when replaying commits.
	SkipDeleteOps bool
	// HandleMailboxConflict turns mailbox id conflicts into remap entries.
	HandleMailboxConflict bool
	// CrashRecoveryLookback makes crash recovery treat commits this close to
	// the end of the journal as uncommitted. Zero disables it.
	CrashRecoveryLookback time.Duration
}

// Stats counts what a player has seen and done.
type Stats struct {
	Files                   int
	Scanned                 int
	Redone                  int
	Failed                  int
	Conflicts               int
	Skipped                 int
	Deferred                int
	IgnoredCommits          int
	Orphans                 int
	LateStarts              int
	CheckpointDiscrepancies int
	SuppressedDiagnostics   int
	TruncatedBytes          int64
}

// Player scans journals. It rebuilds the set of in-flight transactions and
// either replays committed operations (restore) or redoes the uncommitted
// ones (crash recovery).
//
// A Player is used by one goroutine at a time. Several players may run at
// once as long as they touch disjoint mailboxes.
type Player struct {
	reg        *Registry
	opts       PlayerOptions
	logger     *logger.Logger
	classifier *errors.Classifier
	tracker    *errors.ErrorTracker
	limiter    *rate.Limiter
	mode       string

	mu       sync.Mutex
	inflight *opTable
	orphans  map[TransactionID]Operation
	remap    map[int32]int32
	stats    Stats
}

// NewPlayer creates a player decoding records with reg.
func NewPlayer(reg *Registry, opts PlayerOptions, log *logger.Logger) *Player {
	if log == nil {
		log = logger.Default()
	}
	return &Player{
		reg:        reg,
		opts:       opts,
		logger:     log,
		classifier: errors.NewClassifier(),
		tracker:    errors.NewErrorTracker(),
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 20),
		mode:       "scan",
		inflight:   newOpTable(),
		orphans:    make(map[TransactionID]Operation),
		remap:      make(map[int32]int32),
	}
}

// SetErrorTracker shares a tracker across players.
func (p *Player) SetErrorTracker(t *errors.ErrorTracker) {
	p.tracker = t
}

func (p *Player) ErrorTracker() *errors.ErrorTracker {
	return p.tracker
}

// ScanLog scans one journal file from start to end.
//
// Every record updates the in-flight and orphan tables. When redoCommitted
// is set, each committed transaction whose commit timestamp falls in
// [startTime, endTime) is replayed. A non-nil remap restricts replay to the
// mailboxes it names and rewrites their ids. Commits stamped at or after
// ignoreCommitsAtOrAfter are treated as if they had not been seen.
//
// A decode error is taken to be a torn tail: the file is cut back to the last
// good record when the player is writable, and the scan ends without error.
func (p *Player) ScanLog(ctx context.Context, path string, redoCommitted bool, remap map[int32]int32,
	startTime, endTime, ignoreCommitsAtOrAfter int64) error {
	r := NewFileLogReader(path, p.opts.Writable, p.reg)
	if err := r.Open(); err != nil {
		p.record(err)
		return err
	}
	defer r.Close()

	if h := r.Header(); h != nil && h.Version.TooHigh() {
		err := errors.Wrapf(errors.ErrVersionTooHigh, "%s has version %s, newest supported is %s",
			path, h.Version, LatestVersion())
		p.record(err)
		return err
	}

	p.mu.Lock()
	p.stats.Files++
	p.mu.Unlock()
	p.logger.Debug("Scanning redo log %s (size=%d)", path, r.Size())

	for {
		op, err := r.NextOp()
		if err != nil {
			return p.repairTail(r, err)
		}
		if op == nil {
			break
		}
		p.mu.Lock()
		p.stats.Scanned++
		p.mu.Unlock()
		metrics.RecordsScanned.WithLabelValues(p.reg.Name(op.OpCode())).Inc()

		switch {
		case op.IsStartMarker():
			p.onStart(op)
		case op.IsEndMarker():
			start := p.onEnd(op, ignoreCommitsAtOrAfter)
			if !redoCommitted || start == nil || op.OpCode() != OpCommitTxn {
				continue
			}
			if ts := op.Timestamp(); ts < startTime || ts >= endTime {
				continue
			}
			if err := p.replayCommitted(ctx, start, remap); err != nil {
				return err
			}
		default:
			if cp, ok := op.(*Checkpoint); ok {
				p.onCheckpoint(cp)
			}
		}
	}
	return nil
}

func (p *Player) onStart(op Operation) {
	id := op.TransactionID()

	p.mu.Lock()
	defer p.mu.Unlock()

	if end, ok := p.orphans[id]; ok {
		p.stats.LateStarts++
		metrics.OrderingAnomalies.WithLabelValues("late_start").Inc()
		p.tracker.RecordError(errors.ErrStartAfterEnd, errors.ErrorOrdering)
		p.diag("Start marker %v found after its end marker %v; not reopening transaction", op, end)
		return
	}
	if p.inflight.put(id, op) {
		p.logger.Debug("Duplicate start marker for txn %s; keeping latest", id)
	}
}

// onEnd settles the transaction op ends and returns its start marker, or nil
// if there is nothing to replay.
func (p *Player) onEnd(op Operation, ignoreAt int64) Operation {
	if op.OpCode() == OpCommitTxn && op.Timestamp() >= ignoreAt {
		p.mu.Lock()
		p.stats.IgnoredCommits++
		p.mu.Unlock()
		p.logger.Debug("Ignoring recent commit %v", op)
		return nil
	}

	id := op.TransactionID()

	p.mu.Lock()
	defer p.mu.Unlock()

	start, ok := p.inflight.remove(id)
	if !ok {
		p.orphans[id] = op
		p.stats.Orphans++
		metrics.OrderingAnomalies.WithLabelValues("orphan").Inc()
		p.tracker.RecordError(errors.ErrOrphanEndMarker, errors.ErrorOrdering)
		p.diag("Found %v with no preceding start marker", op)
		return nil
	}
	return start
}

func (p *Player) onCheckpoint(cp *Checkpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	declared := make(map[TransactionID]struct{}, len(cp.ActiveTxns))
	for _, id := range cp.ActiveTxns {
		declared[id] = struct{}{}
	}
	var missing, extra int
	for _, id := range p.inflight.keys() {
		if _, ok := declared[id]; ok {
			delete(declared, id)
		} else {
			extra++
		}
	}
	missing = len(declared)
	if missing == 0 && extra == 0 {
		return
	}

	p.stats.CheckpointDiscrepancies++
	metrics.CheckpointDiscrepancies.Inc()
	p.tracker.RecordError(errors.ErrCheckpointDrift, errors.ErrorOrdering)
	p.diag("Checkpoint at %d lists %d active txns; scan has %d (%d not in scan, %d not in checkpoint)",
		cp.Timestamp(), len(cp.ActiveTxns), p.inflight.len(), missing, extra)
}

func (p *Player) replayCommitted(ctx context.Context, op Operation, remap map[int32]int32) error {
	if remap != nil && !selectForRemap(op, remap) {
		return nil
	}
	if p.opts.SkipDeleteOps && op.IsDeleteOp() {
		p.mu.Lock()
		p.stats.Skipped++
		p.mu.Unlock()
		metrics.ReplayOps.WithLabelValues(p.mode, "skipped").Inc()
		p.logger.Info("Skipping delete op %v", op)
		return nil
	}

	op.SetUnloggedReplay(p.opts.UnloggedReplay)
	if err := p.playOp(ctx, op); err != nil {
		if !p.opts.IgnoreReplayErrors {
			var re *RedoError
			if errors.As(err, &re) {
				return re
			}
			return &RedoError{Msg: "redo failed", Op: op, Err: err}
		}
		p.logger.Warn("Ignoring replay error: %v", err)
	}
	return nil
}

// selectForRemap decides whether op falls inside a restore remap and rewrites
// its mailbox ids if so.
func selectForRemap(op Operation, remap map[int32]int32) bool {
	if op.MailboxID() == MailboxIDAll {
		mm, ok := op.(MultiMailboxOp)
		if !ok || mm.MailboxIDList() == nil {
			return true
		}
		var narrowed []int32
		for _, id := range mm.MailboxIDList() {
			if to, ok := remap[id]; ok {
				narrowed = append(narrowed, to)
			}
		}
		if len(narrowed) == 0 {
			return false
		}
		mm.SetMailboxIDList(narrowed)
		return true
	}
	if to, ok := remap[op.MailboxID()]; ok {
		op.SetMailboxID(to)
		return true
	}
	return false
}

// playOp redoes op, applying and extending the conflict remap when enabled.
func (p *Player) playOp(ctx context.Context, op Operation) error {
	if p.opts.HandleMailboxConflict {
		p.mu.Lock()
		if to, ok := p.remap[op.MailboxID()]; ok {
			op.SetMailboxID(to)
		}
		p.mu.Unlock()
	}

	res := op.Redo(ctx)
	switch res.Kind {
	case ResultApplied:
		p.mu.Lock()
		p.stats.Redone++
		p.mu.Unlock()
		metrics.ReplayOps.WithLabelValues(p.mode, "redone").Inc()
		return nil

	case ResultConflict:
		err := res.Err(op)
		p.record(err)
		if !p.opts.HandleMailboxConflict {
			p.mu.Lock()
			p.stats.Failed++
			p.mu.Unlock()
			metrics.ReplayOps.WithLabelValues(p.mode, "failed").Inc()
			return err
		}
		p.mu.Lock()
		if _, ok := p.remap[res.ExpectedID]; !ok {
			p.remap[res.ExpectedID] = res.FoundID
		}
		p.stats.Conflicts++
		p.mu.Unlock()
		metrics.ReplayOps.WithLabelValues(p.mode, "conflict").Inc()
		p.logger.Info("Mailbox id conflict for account %s: remapping %d to %d",
			res.AccountID, res.ExpectedID, res.FoundID)
		return nil

	default:
		err := res.Err(op)
		p.record(err)
		p.mu.Lock()
		p.stats.Failed++
		p.mu.Unlock()
		metrics.ReplayOps.WithLabelValues(p.mode, "failed").Inc()
		return err
	}
}

// repairTail handles a read error in the middle of a scan. A real I/O error
// cannot be told apart from a partial write left by a crash, so it is
// treated as the latter.
func (p *Player) repairTail(r *FileLogReader, readErr error) error {
	p.record(readErr)

	pos, size := r.Position(), r.Size()
	if pos >= size {
		p.logger.Warn("Error reading redo log %s at offset %d: %v", r.Path(), pos, readErr)
		return nil
	}
	diff := size - pos
	p.logger.Warn("Error reading redo log %s at offset %d: %v (%d trailing bytes)", r.Path(), pos, readErr, diff)

	if !p.opts.Writable {
		p.logger.Warn("Redo log %s is read-only; leaving %d trailing bytes in place", r.Path(), diff)
		return nil
	}
	if err := r.Truncate(pos); err != nil {
		p.record(err)
		return errors.Wrapf(err, "repair %s", r.Path())
	}
	p.mu.Lock()
	p.stats.TruncatedBytes += diff
	p.mu.Unlock()
	metrics.TruncatedBytes.Add(float64(diff))
	p.logger.Info("Redo log %s truncated to offset: %d", r.Path(), pos)
	return nil
}

// diag emits a rate-limited warning. Callers hold p.mu.
func (p *Player) diag(format string, args ...interface{}) {
	if !p.limiter.Allow() {
		p.stats.SuppressedDiagnostics++
		return
	}
	p.logger.Warn(format, args...)
}

func (p *Player) record(err error) {
	category := p.classifier.Classify(err)
	p.tracker.RecordError(err, category)
	metrics.Errors.WithLabelValues(category.String()).Inc()
}

// UncommittedOps returns a copy of the in-flight table.
func (p *Player) UncommittedOps() map[TransactionID]Operation {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[TransactionID]Operation, p.inflight.len())
	for _, id := range p.inflight.keys() {
		op, _ := p.inflight.get(id)
		out[id] = op
	}
	return out
}

// UncommittedTxnIDs returns the in-flight transaction ids in journal order.
func (p *Player) UncommittedTxnIDs() []TransactionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight.keys()
}

// Orphans returns a copy of the orphaned end markers.
func (p *Player) Orphans() map[TransactionID]Operation {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[TransactionID]Operation, len(p.orphans))
	for k, v := range p.orphans {
		out[k] = v
	}
	return out
}

// MailboxRemap returns a copy of the conflict remap table.
func (p *Player) MailboxRemap() map[int32]int32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[int32]int32, len(p.remap))
	for k, v := range p.remap {
		out[k] = v
	}
	return out
}

func (p *Player) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// LogSummary writes the one-line operator summary.
func (p *Player) LogSummary(label string) {
	s := p.Stats()
	p.logger.Info("%s: files=%d scanned=%d redone=%d failed=%d conflicts=%d skipped=%d deferred=%d orphans=%d late_starts=%d checkpoint_mismatches=%d truncated_bytes=%d",
		label, s.Files, s.Scanned, s.Redone, s.Failed, s.Conflicts, s.Skipped, s.Deferred,
		s.Orphans, s.LateStarts, s.CheckpointDiscrepancies, s.TruncatedBytes)
	if s.SuppressedDiagnostics > 0 {
		p.logger.Warn("%s: %d diagnostics suppressed", label, s.SuppressedDiagnostics)
	}
	for _, c := range p.tracker.Categories() {
		p.logger.Debug("%s: %s errors=%d", label, c, p.tracker.GetErrorCount(c))
	}
}

// Shutdown drops all scan state.
func (p *Player) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inflight.clear()
	p.orphans = make(map[TransactionID]Operation)
	p.remap = make(map[int32]int32)
}

func (s Stats) String() string {
	return fmt.Sprintf("redone=%d failed=%d conflicts=%d skipped=%d deferred=%d", s.Redone, s.Failed, s.Conflicts, s.Skipped, s.Deferred)
}
