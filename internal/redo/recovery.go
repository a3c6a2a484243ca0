package redo

import (
	"context"
	"math"
	"os"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/metrics"
)

// RunCrashRecovery redoes every operation that was still uncommitted when
// the server stopped. Each attempted operation gets a commit marker if redo
// succeeded and an abort marker if it failed; a failure does not stop the
// rest. Operations that ask to wait for startup are returned untouched in
// deferred and stay open in the journal.
//
// processed counts every uncommitted operation found, deferred ones included.
func (p *Player) RunCrashRecovery(ctx context.Context, mgr LogManager) (processed int, deferred []Operation, err error) {
	path := mgr.LogFile()
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, nil
		}
		return 0, nil, errors.Wrapf(errors.ErrFileOpen, "%s: %v", path, err)
	}

	p.mode = "recovery"
	defer func() { p.mode = "scan" }()

	ignoreAt := p.ignoreCommitsAt(path, info)

	w := mgr.LogWriter()
	if err := w.Close(); err != nil {
		return 0, nil, errors.Wrap(err, "close redo log writer")
	}
	scanErr := p.ScanLog(ctx, path, false, nil, math.MinInt64, math.MaxInt64, ignoreAt)
	if err := w.Open(); err != nil {
		return 0, nil, errors.Wrap(err, "reopen redo log writer")
	}
	if scanErr != nil {
		return 0, nil, scanErr
	}

	p.mu.Lock()
	ops := p.inflight.ops()
	p.mu.Unlock()
	mgr.TrackOpen(ops)

	if len(ops) == 0 {
		p.logger.Info("No uncommitted operations found in %s", path)
	} else {
		p.logger.Info("Redoing %d uncommitted operations from %s", len(ops), path)
	}

	var attempt []Operation
	for _, op := range ops {
		if op.DeferCrashRecovery() {
			p.logger.Info("Deferring crash recovery of %v until after startup", op)
			deferred = append(deferred, op)
			p.mu.Lock()
			p.stats.Deferred++
			p.mu.Unlock()
			metrics.ReplayOps.WithLabelValues(p.mode, "deferred").Inc()
			continue
		}
		attempt = append(attempt, op)
	}
	if err := p.redoAndSettle(ctx, mgr, attempt); err != nil {
		return 0, deferred, err
	}

	p.mu.Lock()
	p.inflight.clear()
	p.mu.Unlock()

	p.LogSummary("Crash recovery")
	return len(ops), deferred, nil
}

// RedoDeferred redoes operations RunCrashRecovery deferred, once the server
// has finished starting.
func (p *Player) RedoDeferred(ctx context.Context, mgr LogManager, ops []Operation) (int, error) {
	if len(ops) == 0 {
		return 0, nil
	}
	p.logger.Info("Running post-startup recovery of %d operations", len(ops))
	if err := p.redoAndSettle(ctx, mgr, ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

// redoAndSettle redoes each op and logs its commit or abort marker.
func (p *Player) redoAndSettle(ctx context.Context, mgr LogManager, ops []Operation) error {
	for _, op := range ops {
		op.SetUnloggedReplay(p.opts.UnloggedReplay)
		var marker Operation
		if err := p.playOp(ctx, op); err != nil {
			p.logger.Error("Redo failed during recovery, aborting %v: %v", op, err)
			marker = NewAbortTxn(op)
		} else {
			marker = NewCommitTxn(op)
		}
		if err := mgr.LogOnly(marker, true); err != nil {
			p.record(err)
			return errors.Wrapf(err, "log %v", marker)
		}
	}
	return nil
}

// ignoreCommitsAt computes the crash recovery lookback point: the later of
// the file's mtime and its header create time, minus the configured lookback.
func (p *Player) ignoreCommitsAt(path string, info os.FileInfo) int64 {
	if p.opts.CrashRecoveryLookback <= 0 {
		return math.MaxInt64
	}
	last := info.ModTime().UnixMilli()
	if h, err := ReadLogHeader(path); err == nil && !h.Version.TooHigh() && h.CreateTime > last {
		last = h.CreateTime
	}
	return last - p.opts.CrashRecoveryLookback.Milliseconds()
}
