package redo

import (
	"os"
	"testing"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

func TestReaderRoundTrip(t *testing.T) {
	env := newTestEnv()
	path := logPath(t)

	a := env.put(100, 1, 5, "A")
	a.SetTimestamp(400)
	blob := env.blob(100, 2, "blob", []int32{1, 2})
	cp := NewCheckpoint([]TransactionID{{Time: 100, Counter: 1}})
	offsets := writeLog(t, path, LatestVersion(), a, blob, cp, commitAt(a, 500))

	r := NewFileLogReader(path, false, env.reg)
	if err := r.Open(); err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	if h := r.Header(); h == nil || h.Version != LatestVersion() || h.ServerID != "test" {
		t.Fatalf("Unexpected header: %v", h)
	}
	if r.Position() != HeaderSize {
		t.Errorf("Initial position = %d, want %d", r.Position(), HeaderSize)
	}

	var ops []Operation
	for {
		op, err := r.NextOp()
		if err != nil {
			t.Fatalf("Failed to read record: %v", err)
		}
		if op == nil {
			break
		}
		ops = append(ops, op)
		if r.Position() != offsets[len(ops)-1] {
			t.Errorf("Position after record %d = %d, want %d", len(ops), r.Position(), offsets[len(ops)-1])
		}
	}
	if len(ops) != 4 {
		t.Fatalf("Expected 4 records, got %d", len(ops))
	}

	got := ops[0].(*testOp)
	if got.Payload != "A" || got.MailboxID() != 5 || got.Timestamp() != 400 || got.TransactionID() != a.TransactionID() {
		t.Errorf("Unexpected first record: %v ts=%d", got, got.Timestamp())
	}
	if b := ops[1].(*testBlobOp); b.MailboxID() != MailboxIDAll || len(b.List) != 2 {
		t.Errorf("Unexpected blob record: %v list=%v", b, b.List)
	}
	if c := ops[2].(*Checkpoint); len(c.ActiveTxns) != 1 || c.ActiveTxns[0] != a.TransactionID() {
		t.Errorf("Unexpected checkpoint: %v", c)
	}
	if c := ops[3].(*CommitTxn); c.TxnOpCode != opTestPut || c.Timestamp() != 500 || !c.IsEndMarker() {
		t.Errorf("Unexpected commit: %v", c)
	}
}

func TestReaderEmptyFile(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"zero length", 0},
		{"torn header", HeaderSize / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := logPath(t)
			if err := os.WriteFile(path, make([]byte, tt.size), 0644); err != nil {
				t.Fatalf("Failed to create file: %v", err)
			}

			r := NewFileLogReader(path, false, NewRegistry())
			if err := r.Open(); err != nil {
				t.Fatalf("Failed to open empty log: %v", err)
			}
			defer r.Close()

			if r.Header() != nil {
				t.Error("Expected no header for empty log")
			}
			op, err := r.NextOp()
			if op != nil || err != nil {
				t.Errorf("NextOp on empty log = %v, %v", op, err)
			}
		})
	}
}

func TestReaderCorruptRecords(t *testing.T) {
	tests := []struct {
		name    string
		mangle  func(b []byte) []byte
		wantErr error
	}{
		{"checksum", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }, errors.ErrChecksumMismatch},
		{"torn", func(b []byte) []byte { return b[:len(b)-5] }, nil},
		{"unknown code", func(b []byte) []byte { b[HeaderSize+3] = 0x7f; return b }, errors.ErrUnknownOpCode},
		{"bad length", func(b []byte) []byte { b[HeaderSize+7] = 1; b[HeaderSize+6] = 0; b[HeaderSize+5] = 0; b[HeaderSize+4] = 0; return b }, errors.ErrCorruptRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			path := logPath(t)
			writeLog(t, path, LatestVersion(), env.put(1, 1, 1, "A"))

			b, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Failed to read log: %v", err)
			}
			if err := os.WriteFile(path, tt.mangle(b), 0644); err != nil {
				t.Fatalf("Failed to write log: %v", err)
			}

			r := NewFileLogReader(path, false, env.reg)
			if err := r.Open(); err != nil {
				t.Fatalf("Failed to open reader: %v", err)
			}
			defer r.Close()

			op, err := r.NextOp()
			if err == nil || op != nil {
				t.Fatalf("Expected error, got %v, %v", op, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if r.Position() != HeaderSize {
				t.Errorf("Position moved past bad record: %d", r.Position())
			}
		})
	}
}

func TestReaderTruncateReadOnly(t *testing.T) {
	env := newTestEnv()
	path := logPath(t)
	writeLog(t, path, LatestVersion(), env.put(1, 1, 1, "A"))

	r := NewFileLogReader(path, false, env.reg)
	if err := r.Open(); err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	if err := r.Truncate(HeaderSize); !errors.Is(err, errors.ErrReadOnlyLog) {
		t.Errorf("Expected ErrReadOnlyLog, got %v", err)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &LogHeader{
		Version:     LatestVersion(),
		Open:        true,
		Seq:         12,
		CreateTime:  1000,
		FirstOpTime: 1001,
		LastOpTime:  2000,
		FileSize:    4096,
		ServerID:    "8f14e45f-ceea-467f-a0e6-1e2e0f0c5c1a",
	}
	b, err := h.Encode()
	if err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}
	if len(b) != HeaderSize {
		t.Fatalf("Header is %d bytes, want %d", len(b), HeaderSize)
	}
	got, err := DecodeLogHeader(b)
	if err != nil {
		t.Fatalf("Failed to decode header: %v", err)
	}
	if *got != *h {
		t.Errorf("Header mismatch: got %v, want %v", got, h)
	}
}

func TestHeaderNewerVersionStopsDecoding(t *testing.T) {
	h := &LogHeader{Version: Version{Major: LatestVersion().Major + 1}, Seq: 9}
	b, err := h.Encode()
	if err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}
	got, err := DecodeLogHeader(b)
	if err != nil {
		t.Fatalf("Failed to decode header: %v", err)
	}
	if !got.Version.TooHigh() || got.Seq != 0 {
		t.Errorf("Expected only the version to be decoded, got %v", got)
	}
}
