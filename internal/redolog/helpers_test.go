package redolog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kartikbazzad/bunbase/redolog/internal/config"
	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

const opNote redo.OpCode = 1000

// noteEnv records the notes redone through its registry.
type noteEnv struct {
	reg *redo.Registry

	mu       sync.Mutex
	redone   []string
	failing  map[string]bool
	deferred map[string]bool
}

func newNoteEnv() *noteEnv {
	e := &noteEnv{
		failing:  make(map[string]bool),
		deferred: make(map[string]bool),
	}
	e.reg = redo.NewRegistry()
	e.reg.Register(opNote, "Note", func() redo.Operation { return &noteOp{env: e} })
	return e
}

func (e *noteEnv) note(text string) *noteOp {
	op := &noteOp{env: e, Text: text}
	op.SetMailboxID(1)
	return op
}

func (e *noteEnv) redoneNotes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.redone...)
}

type noteOp struct {
	redo.OpHeader
	env  *noteEnv
	Text string
}

func (o *noteOp) OpCode() redo.OpCode { return opNote }

func (o *noteOp) DeferCrashRecovery() bool {
	o.env.mu.Lock()
	defer o.env.mu.Unlock()
	return o.env.deferred[o.Text]
}

func (o *noteOp) Redo(ctx context.Context) redo.RedoResult {
	o.env.mu.Lock()
	defer o.env.mu.Unlock()
	if o.env.failing[o.Text] {
		return redo.Failed(errors.New("injected failure"))
	}
	o.env.redone = append(o.env.redone, o.Text)
	return redo.Applied()
}

func (o *noteOp) SerializeData(out *logio.Output) error {
	out.UTF(o.Text)
	return out.Err()
}

func (o *noteOp) DeserializeData(in *logio.Input) error {
	o.Text = in.UTF()
	return in.Err()
}

func (o *noteOp) String() string {
	return fmt.Sprintf("Note{%s txn=%s}", o.Text, o.TransactionID())
}

func testRedoConfig(t *testing.T, mode config.FsyncMode) *config.RedoConfig {
	t.Helper()
	cfg := config.ForDataDir(t.TempDir())
	cfg.Redo.Fsync.Mode = mode
	cfg.Redo.Fsync.Interval = 2 * time.Millisecond
	cfg.Redo.CrashRecoveryLookback = 0
	cfg.Redo.ServerID = "test-server"
	return &cfg.Redo
}

func quietLogger() *logger.Logger {
	return logger.Discard()
}

// readOps returns every record in the journal at path.
func readOps(t *testing.T, reg *redo.Registry, path string) []redo.Operation {
	t.Helper()
	r := redo.NewFileLogReader(path, false, reg)
	if err := r.Open(); err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer r.Close()

	var ops []redo.Operation
	for {
		op, err := r.NextOp()
		if err != nil {
			t.Fatalf("Failed to read %s: %v", path, err)
		}
		if op == nil {
			return ops
		}
		ops = append(ops, op)
	}
}

// describe renders records as "Note:a", "CommitTxn:a" etc. for comparison.
func describe(reg *redo.Registry, ops []redo.Operation, texts map[redo.TransactionID]string) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		if n, ok := op.(*noteOp); ok {
			texts[n.TransactionID()] = n.Text
			out = append(out, "Note:"+n.Text)
			continue
		}
		if _, ok := op.(*redo.Checkpoint); ok {
			out = append(out, "Checkpoint")
			continue
		}
		out = append(out, reg.Name(op.OpCode())+":"+texts[op.TransactionID()])
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
