package redolog

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/redolog/internal/config"
	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/metrics"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

// Manager owns the active journal: it assigns transaction ids, writes start
// and end markers, rolls the journal over when it grows too large and runs
// crash recovery at startup.
type Manager struct {
	cfg     *config.RedoConfig
	reg     *redo.Registry
	logger  *logger.Logger
	writer  *FileLogWriter
	rotator *Rotator
	txnGen  *redo.TxnIDGenerator
	tracker *errors.ErrorTracker

	rotMu    sync.RWMutex // appends against rollover
	mu       sync.Mutex
	active   map[redo.TransactionID]redo.Operation
	deferred []redo.Operation
	player   *redo.Player
	started  bool

	recovered int
}

// Status is a point-in-time view of the manager for operators.
type Status struct {
	LogFile       string            `json:"log_file"`
	Seq           int64             `json:"seq"`
	Size          int64             `json:"size"`
	ServerID      string            `json:"server_id"`
	CreateTime    int64             `json:"create_time"`
	FirstOpTime   int64             `json:"first_op_time"`
	LastOpTime    int64             `json:"last_op_time"`
	ActiveTxns    int               `json:"active_txns"`
	Recovered     int               `json:"recovered"`
	Deferred      int               `json:"deferred"`
	ArchivedLogs  int               `json:"archived_logs"`
	Started       bool              `json:"started"`
	ErrorsByClass map[string]uint64 `json:"errors_by_class,omitempty"`
}

func NewManager(cfg *config.RedoConfig, reg *redo.Registry, log *logger.Logger) *Manager {
	tracker := errors.NewErrorTracker()
	tracker.OnRecord(func(c errors.ErrorCategory) {
		metrics.Errors.WithLabelValues(c.String()).Inc()
	})
	w := NewFileLogWriter(cfg.LogPath, cfg.Fsync, cfg.ServerID, log.Named("writer"))
	w.SetErrorTracker(tracker)
	return &Manager{
		cfg:     cfg,
		reg:     reg,
		logger:  log,
		writer:  w,
		rotator: NewRotator(cfg.LogPath, cfg.ArchiveDir, cfg.RolloverBytes(), log.Named("rotator")),
		txnGen:  redo.NewTxnIDGenerator(),
		tracker: tracker,
		active:  make(map[redo.TransactionID]redo.Operation),
	}
}

// PlayerOptions maps the replay policy in cfg onto player options.
func PlayerOptions(cfg *config.RedoConfig, writable bool) redo.PlayerOptions {
	return redo.PlayerOptions{
		Writable:              writable,
		IgnoreReplayErrors:    cfg.IgnoreReplayErrors,
		SkipDeleteOps:         cfg.SkipDeleteOps,
		HandleMailboxConflict: cfg.HandleMailboxConflict,
		CrashRecoveryLookback: cfg.CrashRecoveryLookback,
	}
}

// Start opens the journal. With recover set it first redoes whatever the
// previous run left uncommitted.
func (m *Manager) Start(ctx context.Context, recover bool) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	seq, err := m.rotator.LastArchivedSeq()
	if err != nil {
		return err
	}
	m.writer.SetNextSeq(seq + 1)

	if err := m.writer.Open(); err != nil {
		return errors.Wrap(err, "open redo log")
	}

	if recover {
		player := redo.NewPlayer(m.reg, PlayerOptions(m.cfg, true), m.logger.Named("recovery"))
		player.SetErrorTracker(m.tracker)
		n, deferred, err := player.RunCrashRecovery(ctx, m)
		if err != nil {
			m.writer.Close()
			return errors.Wrap(err, "crash recovery")
		}
		m.mu.Lock()
		m.player = player
		m.recovered = n
		m.deferred = deferred
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	m.logger.Info("Redo log started: %s", m.cfg.LogPath)
	return nil
}

// RunPostStartupRecovery redoes operations crash recovery deferred until the
// server was up.
func (m *Manager) RunPostStartupRecovery(ctx context.Context) (int, error) {
	m.mu.Lock()
	ops := m.deferred
	m.deferred = nil
	player := m.player
	m.mu.Unlock()

	if player == nil || len(ops) == 0 {
		return 0, nil
	}
	return player.RedoDeferred(ctx, m, ops)
}

// Stop closes the journal.
func (m *Manager) Stop() error {
	m.rotMu.Lock()
	defer m.rotMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false
	if len(m.active) > 0 {
		m.logger.Warn("Stopping redo log with %d active transactions", len(m.active))
	}
	return m.writer.Close()
}

// LogFile implements redo.LogManager.
func (m *Manager) LogFile() string {
	return m.cfg.LogPath
}

// LogWriter implements redo.LogManager.
func (m *Manager) LogWriter() redo.LogWriter {
	return m.writer
}

// Log starts a transaction for op: it assigns a new transaction id and
// timestamp and writes the start marker.
func (m *Manager) Log(op redo.Operation, sync bool) error {
	op.SetTransactionID(m.txnGen.Next())
	op.SetTimestamp(time.Now().UnixMilli())

	_, err := m.write(op, sync, func() { m.track(op) })
	return err
}

// Commit writes the commit marker for op and returns where it landed.
func (m *Manager) Commit(op redo.Operation) (redo.CommitID, error) {
	commit := redo.NewCommitTxn(op)
	commit.SetTimestamp(time.Now().UnixMilli())

	seq, err := m.write(commit, true, func() { m.untrack(op.TransactionID()) })
	if err != nil {
		return redo.CommitID{}, err
	}
	return redo.NewCommitID(seq, commit), nil
}

// Abort writes the abort marker for op.
func (m *Manager) Abort(op redo.Operation) error {
	abort := redo.NewAbortTxn(op)
	abort.SetTimestamp(time.Now().UnixMilli())

	_, err := m.write(abort, true, func() { m.untrack(op.TransactionID()) })
	return err
}

// LogOnly writes op with its existing transaction id. Implements redo.LogManager.
func (m *Manager) LogOnly(op redo.Operation, sync bool) error {
	if op.Timestamp() == 0 {
		op.SetTimestamp(time.Now().UnixMilli())
	}
	m.txnGen.Observe(op.TransactionID())

	_, err := m.write(op, sync, func() {
		switch {
		case op.IsStartMarker():
			m.track(op)
		case op.IsEndMarker():
			m.untrack(op.TransactionID())
		}
	})
	return err
}

// TrackOpen implements redo.LogManager. Recovered ops keep their journal
// ids; the commit or abort marker recovery logs for each untracks it.
func (m *Manager) TrackOpen(ops []redo.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		m.active[op.TransactionID()] = op
	}
}

func (m *Manager) track(op redo.Operation) {
	m.mu.Lock()
	m.active[op.TransactionID()] = op
	m.mu.Unlock()
}

func (m *Manager) untrack(id redo.TransactionID) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// Checkpoint writes the set of active transactions.
func (m *Manager) Checkpoint() error {
	m.rotMu.RLock()
	defer m.rotMu.RUnlock()
	_, err := m.appendLocked(m.newCheckpoint(), true)
	return err
}

func (m *Manager) newCheckpoint() *redo.Checkpoint {
	cp := redo.NewCheckpoint(m.ActiveTxns())
	cp.SetTimestamp(time.Now().UnixMilli())
	return cp
}

func (m *Manager) activeIDsLocked() []redo.TransactionID {
	ids := make([]redo.TransactionID, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// write appends op and rolls the journal over once it has grown past the
// configured size. written runs after a successful append, still under the
// shared rollover lock. It returns the sequence number of the journal op went to.
func (m *Manager) write(op redo.Operation, sync bool, written func()) (int64, error) {
	if m.cfg.Role == config.RoleSlave {
		return 0, errors.ErrNotMaster
	}
	m.rotMu.RLock()
	seq, err := m.appendLocked(op, sync)
	if err == nil && written != nil {
		written()
	}
	size := m.writer.Size()
	m.rotMu.RUnlock()
	if err != nil {
		return 0, err
	}

	if m.rotator.ShouldRotate(size) {
		m.rotMu.Lock()
		defer m.rotMu.Unlock()
		if m.rotator.ShouldRotate(m.writer.Size()) {
			if err := m.rotateLocked(); err != nil {
				m.logger.Error("Redo log rollover failed: %v", err)
				return seq, err
			}
		}
	}
	return seq, nil
}

// appendLocked encodes and writes op. Caller holds rotMu.
func (m *Manager) appendLocked(op redo.Operation, sync bool) (int64, error) {
	rec, err := redo.EncodeRecord(op)
	if err != nil {
		return 0, err
	}
	h := m.writer.Header()
	if h == nil {
		return 0, errors.ErrLogClosed
	}
	if err := m.writer.Write(rec, op.Timestamp(), sync); err != nil {
		return 0, err
	}
	metrics.RecordsWritten.WithLabelValues(m.reg.Name(op.OpCode())).Inc()
	return h.Seq, nil
}

// rotateLocked archives the active journal and starts the next one. Start
// markers of the transactions still open are written again, with their
// original ids and timestamps, so crash recovery finds them in the active
// journal; a checkpoint naming them follows. Caller holds rotMu exclusively.
func (m *Manager) rotateLocked() error {
	h := m.writer.Header()
	if h == nil {
		return errors.ErrLogClosed
	}
	if err := m.writer.Close(); err != nil {
		return err
	}
	archived, err := m.rotator.Rotate(h)
	if err != nil {
		if openErr := m.writer.Open(); openErr != nil {
			m.logger.Error("Failed to reopen redo log after failed rollover: %v", openErr)
		}
		return err
	}
	m.writer.SetNextSeq(h.Seq + 1)
	if err := m.writer.Open(); err != nil {
		return err
	}
	metrics.Rotations.Inc()
	m.logger.Info("Redo log rolled over: %s archived, seq %d started", archived, h.Seq+1)

	open := m.activeOps()
	for _, op := range open {
		if _, err := m.appendLocked(op, false); err != nil {
			return errors.Wrapf(err, "carry %v into seq %d", op, h.Seq+1)
		}
	}
	if len(open) > 0 {
		m.logger.Info("Carried %d open transactions into seq %d", len(open), h.Seq+1)
	}
	_, err = m.appendLocked(m.newCheckpoint(), true)
	return err
}

// activeOps returns the start markers of open transactions in id order.
func (m *Manager) activeOps() []redo.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.activeIDsLocked()
	ops := make([]redo.Operation, len(ids))
	for i, id := range ids {
		ops[i] = m.active[id]
	}
	return ops
}

// Rotate forces a rollover regardless of size.
func (m *Manager) Rotate() error {
	m.rotMu.Lock()
	defer m.rotMu.Unlock()
	return m.rotateLocked()
}

// AllLogs returns every journal, archived first, active last.
func (m *Manager) AllLogs() ([]string, error) {
	return m.rotator.AllLogPaths()
}

// FindCommit locates the commit record named by id in journal history and
// returns it with the path of the journal holding it.
func (m *Manager) FindCommit(ctx context.Context, id redo.CommitID) (*redo.CommitTxn, string, error) {
	path, err := m.pathForSeq(id.RedoSeq)
	if err != nil {
		return nil, "", err
	}
	if path == m.cfg.LogPath {
		if err := m.writer.Flush(); err != nil {
			return nil, "", err
		}
	}

	r := redo.NewFileLogReader(path, false, m.reg)
	if err := r.Open(); err != nil {
		return nil, "", err
	}
	defer r.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		op, err := r.NextOp()
		if err != nil {
			return nil, "", errors.Wrapf(err, "search %s", path)
		}
		if op == nil {
			break
		}
		if id.Matches(op) {
			return op.(*redo.CommitTxn), path, nil
		}
	}
	return nil, "", errors.Wrapf(errors.ErrCommitNotFound, "%s in %s", id, path)
}

func (m *Manager) pathForSeq(seq int64) (string, error) {
	if h := m.writer.Header(); h != nil && h.Seq == seq {
		return m.cfg.LogPath, nil
	}
	if h, err := redo.ReadLogHeader(m.cfg.LogPath); err == nil && h.Seq == seq {
		return m.cfg.LogPath, nil
	}
	archived, err := m.rotator.ListArchived()
	if err != nil {
		return "", err
	}
	for _, a := range archived {
		if a.Seq == seq {
			return a.Path, nil
		}
	}
	return "", errors.Wrapf(errors.ErrCommitNotFound, "no redo log with seq %d", seq)
}

// ActiveTxns returns the ids of transactions started but not yet ended.
func (m *Manager) ActiveTxns() []redo.TransactionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeIDsLocked()
}

// Deferred returns the operations waiting for post-startup recovery.
func (m *Manager) Deferred() []redo.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]redo.Operation, len(m.deferred))
	copy(out, m.deferred)
	return out
}

func (m *Manager) ErrorTracker() *errors.ErrorTracker {
	return m.tracker
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	s := Status{
		LogFile:    m.cfg.LogPath,
		ActiveTxns: len(m.active),
		Recovered:  m.recovered,
		Deferred:   len(m.deferred),
		Started:    m.started,
	}
	m.mu.Unlock()

	if h := m.writer.Header(); h != nil {
		s.Seq = h.Seq
		s.ServerID = h.ServerID
		s.CreateTime = h.CreateTime
		s.FirstOpTime = h.FirstOpTime
		s.LastOpTime = h.LastOpTime
		s.Size = m.writer.Size()
	} else if info, err := os.Stat(m.cfg.LogPath); err == nil {
		s.Size = info.Size()
	}
	if archived, err := m.rotator.ListArchived(); err == nil {
		s.ArchivedLogs = len(archived)
	}
	counts := m.tracker.Counts()
	if len(counts) > 0 {
		s.ErrorsByClass = make(map[string]uint64, len(counts))
		for c, n := range counts {
			s.ErrorsByClass[c.String()] = n
		}
	}
	return s
}
