package redo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
)

const (
	opTestPut    OpCode = 1000
	opTestDelete OpCode = 1001
	opTestBlob   OpCode = 1002
)

// redoCall is one observed call to Redo.
type redoCall struct {
	payload string
	mailbox int32
	list    []int32
	result  ResultKind
}

// testEnv owns a registry whose ops report their redo calls back to it.
type testEnv struct {
	reg *Registry

	mu        sync.Mutex
	calls     []redoCall
	failing   map[string]bool
	conflicts map[int32]int32
	deferred  map[string]bool
}

func newTestEnv() *testEnv {
	e := &testEnv{
		failing:   make(map[string]bool),
		conflicts: make(map[int32]int32),
		deferred:  make(map[string]bool),
	}
	e.reg = NewRegistry()
	e.reg.Register(opTestPut, "TestPut", func() Operation { return &testOp{env: e, code: opTestPut} })
	e.reg.Register(opTestDelete, "TestDelete", func() Operation { return &testOp{env: e, code: opTestDelete} })
	e.reg.Register(opTestBlob, "TestBlob", func() Operation { return &testBlobOp{testOp: testOp{env: e, code: opTestBlob}} })
	return e
}

func (e *testEnv) redone() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.calls {
		if c.result == ResultApplied {
			out = append(out, c.payload)
		}
	}
	return out
}

func (e *testEnv) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type testOp struct {
	OpHeader
	env     *testEnv
	code    OpCode
	Payload string
}

func (o *testOp) OpCode() OpCode { return o.code }

func (o *testOp) IsDeleteOp() bool { return o.code == opTestDelete }

func (o *testOp) DeferCrashRecovery() bool { return o.env.deferred[o.Payload] }

func (o *testOp) Redo(ctx context.Context) RedoResult {
	return o.env.redo(o.Payload, o.MailboxID(), nil)
}

func (o *testOp) SerializeData(out *logio.Output) error {
	out.UTF(o.Payload)
	return out.Err()
}

func (o *testOp) DeserializeData(in *logio.Input) error {
	o.Payload = in.UTF()
	return in.Err()
}

func (o *testOp) String() string {
	return fmt.Sprintf("TestOp{%s txn=%s mbox=%d}", o.Payload, o.TransactionID(), o.MailboxID())
}

type testBlobOp struct {
	testOp
	List []int32
}

func (o *testBlobOp) MailboxIDList() []int32     { return o.List }
func (o *testBlobOp) SetMailboxIDList(l []int32) { o.List = l }

func (o *testBlobOp) Redo(ctx context.Context) RedoResult {
	return o.env.redo(o.Payload, o.MailboxID(), o.List)
}

func (o *testBlobOp) SerializeData(out *logio.Output) error {
	out.UTF(o.Payload)
	out.IntArray(o.List)
	return out.Err()
}

func (o *testBlobOp) DeserializeData(in *logio.Input) error {
	o.Payload = in.UTF()
	o.List = in.IntArray()
	return in.Err()
}

func (e *testEnv) redo(payload string, mbox int32, list []int32) RedoResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res RedoResult
	switch {
	case e.failing[payload]:
		res = Failed(errors.New("injected failure"))
	case e.conflicts[mbox] != 0:
		res = Conflict("acct-"+payload, mbox, e.conflicts[mbox])
	default:
		res = Applied()
	}
	e.calls = append(e.calls, redoCall{payload: payload, mailbox: mbox, list: list, result: res.Kind})
	return res
}

func (e *testEnv) put(t, c, mbox int32, payload string) *testOp {
	op := &testOp{env: e, code: opTestPut, Payload: payload}
	op.SetTransactionID(TransactionID{Time: t, Counter: c})
	op.SetMailboxID(mbox)
	return op
}

func (e *testEnv) del(t, c, mbox int32, payload string) *testOp {
	op := e.put(t, c, mbox, payload)
	op.code = opTestDelete
	return op
}

func (e *testEnv) blob(t, c int32, payload string, list []int32) *testBlobOp {
	op := &testBlobOp{testOp: testOp{env: e, code: opTestBlob, Payload: payload}, List: list}
	op.SetTransactionID(TransactionID{Time: t, Counter: c})
	op.SetMailboxID(MailboxIDAll)
	return op
}

func commitAt(op Operation, ts int64) *CommitTxn {
	c := NewCommitTxn(op)
	c.SetTimestamp(ts)
	return c
}

func abortAt(op Operation, ts int64) *AbortTxn {
	a := NewAbortTxn(op)
	a.SetTimestamp(ts)
	return a
}

// writeLog writes a journal holding recs and returns the offset after each record.
func writeLog(t *testing.T, path string, version Version, recs ...Operation) []int64 {
	t.Helper()

	h := &LogHeader{Version: version, Seq: 1, CreateTime: 1, ServerID: "test"}
	buf, err := h.Encode()
	if err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}
	offsets := make([]int64, 0, len(recs))
	for _, rec := range recs {
		b, err := EncodeRecord(rec)
		if err != nil {
			t.Fatalf("Failed to encode %v: %v", rec, err)
		}
		buf = append(buf, b...)
		offsets = append(offsets, int64(len(buf)))
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}
	return offsets
}

func logPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "redo.log")
}

func quietLogger() *logger.Logger {
	return logger.Discard()
}

// fakeManager stands in for the live journal during crash recovery.
type fakeManager struct {
	t       *testing.T
	path    string
	events  []string
	markers []Operation
	open    []Operation
	writer  *fakeWriter
}

type fakeWriter struct {
	m *fakeManager
}

func (w *fakeWriter) Open() error {
	w.m.events = append(w.m.events, "open")
	return nil
}

func (w *fakeWriter) Close() error {
	w.m.events = append(w.m.events, "close")
	return nil
}

func newFakeManager(t *testing.T, path string) *fakeManager {
	m := &fakeManager{t: t, path: path}
	m.writer = &fakeWriter{m: m}
	return m
}

func (m *fakeManager) LogFile() string { return m.path }

func (m *fakeManager) LogWriter() LogWriter { return m.writer }

func (m *fakeManager) TrackOpen(ops []Operation) {
	m.open = append(m.open, ops...)
}

func (m *fakeManager) LogOnly(op Operation, sync bool) error {
	if !sync {
		m.t.Errorf("Expected synchronous marker for %v", op)
	}
	m.events = append(m.events, "log")
	m.markers = append(m.markers, op)
	return nil
}
