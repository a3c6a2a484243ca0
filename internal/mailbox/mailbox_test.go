package mailbox

import (
	"context"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kartikbazzad/bunbase/redolog/internal/config"
	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
	"github.com/kartikbazzad/bunbase/redolog/internal/redolog"
)

func openStore(t *testing.T, name string) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateMailboxConflict(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "mbox.db")

	if res := NewCreateMailbox(s, "alice", 3).Redo(ctx); !res.OK() {
		t.Fatalf("Failed to create mailbox: %v", res)
	}
	if res := NewCreateMailbox(s, "alice", 3).Redo(ctx); !res.OK() {
		t.Errorf("Expected repeated create to be applied, got %v", res)
	}

	res := NewCreateMailbox(s, "alice", 5).Redo(ctx)
	if res.Kind != redo.ResultConflict {
		t.Fatalf("Expected conflict, got %v", res)
	}
	if res.AccountID != "alice" || res.ExpectedID != 5 || res.FoundID != 3 {
		t.Errorf("Unexpected conflict details: %v", res)
	}

	if res := NewCreateMailbox(s, "bob", 3).Redo(ctx); res.Kind != redo.ResultFailed {
		t.Errorf("Expected taken mailbox id to fail, got %v", res)
	}
}

func TestOpsRequireMailbox(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "mbox.db")

	ops := []redo.Operation{
		NewCreateFolder(s, 9, 2, "Inbox"),
		NewCreateMessage(s, Message{MailboxID: 9, MessageID: 1, FolderID: 2, BlobDigest: "d", Size: 1}),
		NewDeleteMessage(s, 9, 1),
		NewReindexMailbox(s, 9),
	}
	for _, op := range ops {
		res := op.Redo(ctx)
		if res.Kind != redo.ResultFailed || !errors.Is(res.Cause, errors.ErrNoSuchMailbox) {
			t.Errorf("Expected %v to fail with ErrNoSuchMailbox, got %v", op, res)
		}
	}
}

func TestOpFlags(t *testing.T) {
	s := openStore(t, "mbox.db")

	if !NewDeleteMessage(s, 1, 1).IsDeleteOp() {
		t.Error("Expected DeleteMessage to be a delete op")
	}
	if NewCreateMessage(s, Message{MailboxID: 1}).IsDeleteOp() {
		t.Error("Expected CreateMessage not to be a delete op")
	}
	if !NewReindexMailbox(s, 1).DeferCrashRecovery() {
		t.Error("Expected ReindexMailbox to defer crash recovery")
	}
	blob := NewStoreIncomingBlob(s, "d", 1, []int32{1, 2})
	if blob.MailboxID() != redo.MailboxIDAll {
		t.Errorf("Expected blob logged against all mailboxes, got %d", blob.MailboxID())
	}
	var op redo.Operation = blob
	if _, ok := op.(redo.MultiMailboxOp); !ok {
		t.Error("Expected StoreIncomingBlob to carry a mailbox list")
	}
}

func TestPutBlobAllMailboxes(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "mbox.db")
	for i, acct := range []string{"a", "b", "c"} {
		if _, err := s.CreateMailbox(ctx, acct, int32(i+1)); err != nil {
			t.Fatalf("Failed to create mailbox: %v", err)
		}
	}

	if res := NewStoreIncomingBlob(s, "all", 10, nil).Redo(ctx); !res.OK() {
		t.Fatalf("Failed to store blob: %v", res)
	}
	if res := NewStoreIncomingBlob(s, "some", 10, []int32{3, 1}).Redo(ctx); !res.OK() {
		t.Fatalf("Failed to store blob: %v", res)
	}
	// Redo is idempotent.
	if res := NewStoreIncomingBlob(s, "some", 10, []int32{3, 1}).Redo(ctx); !res.OK() {
		t.Fatalf("Failed to store blob again: %v", res)
	}

	got, _ := s.BlobMailboxes(ctx, "all")
	if !reflect.DeepEqual(got, []int32{1, 2, 3}) {
		t.Errorf("Expected blob in every mailbox, got %v", got)
	}
	got, _ = s.BlobMailboxes(ctx, "some")
	if !reflect.DeepEqual(got, []int32{1, 3}) {
		t.Errorf("Expected blob in mailboxes 1 and 3, got %v", got)
	}
}

// journaledStore builds a store through a live journal:
//
//	alice=1, bob=2, folder 2 "Inbox" in each
//	d1 delivered to both, d2 to alice, alice's first message deleted,
//	alice reindexed
func journaledStore(t *testing.T) (*Store, *config.RedoConfig) {
	t.Helper()
	ctx := context.Background()

	src := openStore(t, "src.db")
	cfg := config.ForDataDir(t.TempDir())
	cfg.Redo.Fsync.Mode = config.FsyncAlways
	cfg.Redo.CrashRecoveryLookback = 0

	m := redolog.NewManager(&cfg.Redo, NewRegistry(src), logger.Discard())
	if err := m.Start(ctx, false); err != nil {
		t.Fatalf("Failed to start journal: %v", err)
	}
	svc := NewService(src, m, logger.Discard())

	for _, acct := range []string{"alice", "bob"} {
		if _, _, err := svc.CreateMailbox(ctx, acct); err != nil {
			t.Fatalf("Failed to create mailbox for %s: %v", acct, err)
		}
	}
	for _, mbox := range []int32{1, 2} {
		if _, err := svc.CreateFolder(ctx, mbox, 2, "Inbox"); err != nil {
			t.Fatalf("Failed to create folder: %v", err)
		}
	}
	if _, err := svc.Deliver(ctx, "d1", 100, 2, []int32{1, 2}); err != nil {
		t.Fatalf("Failed to deliver: %v", err)
	}
	if _, err := svc.Deliver(ctx, "d2", 50, 2, []int32{1}); err != nil {
		t.Fatalf("Failed to deliver: %v", err)
	}
	if _, err := svc.DeleteMessage(ctx, 1, 1); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := svc.Reindex(ctx, 1); err != nil {
		t.Fatalf("Failed to reindex: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Failed to stop journal: %v", err)
	}
	return src, &cfg.Redo
}

func replay(t *testing.T, dst *Store, path string, opts redo.PlayerOptions, remap map[int32]int32) (*redo.Player, error) {
	t.Helper()
	p := redo.NewPlayer(NewRegistry(dst), opts, logger.Discard())
	err := p.ScanLog(context.Background(), path, true, remap, math.MinInt64, math.MaxInt64, math.MaxInt64)
	return p, err
}

func TestJournalRebuildsStore(t *testing.T) {
	ctx := context.Background()
	src, cfg := journaledStore(t)
	dst := openStore(t, "dst.db")

	if _, err := replay(t, dst, cfg.LogPath, redo.PlayerOptions{}, nil); err != nil {
		t.Fatalf("Failed to replay: %v", err)
	}

	for _, mbox := range []int32{1, 2} {
		want, _ := src.Messages(ctx, mbox)
		got, err := dst.Messages(ctx, mbox)
		if err != nil {
			t.Fatalf("Failed to list messages: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Mailbox %d: expected %v, got %v", mbox, want, got)
		}
		folders, _ := dst.Folders(ctx, mbox)
		if len(folders) != 1 || folders[0].Name != "Inbox" {
			t.Errorf("Mailbox %d: expected Inbox, got %v", mbox, folders)
		}
	}
	if got, _ := dst.BlobMailboxes(ctx, "d1"); !reflect.DeepEqual(got, []int32{1, 2}) {
		t.Errorf("Expected d1 in both mailboxes, got %v", got)
	}
	count, indexed, err := dst.MessageCount(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to read count: %v", err)
	}
	if !indexed || count != 1 {
		t.Errorf("Expected reindexed count 1, got %d (indexed=%v)", count, indexed)
	}
}

func TestJournalRestoreRemapped(t *testing.T) {
	ctx := context.Background()
	_, cfg := journaledStore(t)

	tests := []struct {
		name         string
		skipDeletes  bool
		wantMessages int
	}{
		{"with deletes", false, 1},
		{"skip deletes", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := openStore(t, "dst.db")
			_, err := replay(t, dst, cfg.LogPath, redo.PlayerOptions{SkipDeleteOps: tt.skipDeletes}, map[int32]int32{1: 7})
			if err != nil {
				t.Fatalf("Failed to replay: %v", err)
			}

			if id, ok, _ := dst.MailboxID(ctx, "alice"); !ok || id != 7 {
				t.Errorf("Expected alice restored as mailbox 7, got %d (%v)", id, ok)
			}
			if _, ok, _ := dst.MailboxID(ctx, "bob"); ok {
				t.Error("Expected bob not to be restored")
			}
			if got, _ := dst.BlobMailboxes(ctx, "d1"); !reflect.DeepEqual(got, []int32{7}) {
				t.Errorf("Expected d1 narrowed to mailbox 7, got %v", got)
			}
			msgs, _ := dst.Messages(ctx, 7)
			if len(msgs) != tt.wantMessages {
				t.Errorf("Expected %d messages, got %v", tt.wantMessages, msgs)
			}
		})
	}
}

func TestJournalReplayConflict(t *testing.T) {
	ctx := context.Background()
	_, cfg := journaledStore(t)

	t.Run("remapped", func(t *testing.T) {
		dst := openStore(t, "dst.db")
		if _, err := dst.CreateMailbox(ctx, "alice", 9); err != nil {
			t.Fatalf("Failed to create mailbox: %v", err)
		}
		p, err := replay(t, dst, cfg.LogPath, redo.PlayerOptions{HandleMailboxConflict: true}, nil)
		if err != nil {
			t.Fatalf("Failed to replay: %v", err)
		}
		if got := p.MailboxRemap(); !reflect.DeepEqual(got, map[int32]int32{1: 9}) {
			t.Errorf("Expected remap 1->9, got %v", got)
		}
		msgs, _ := dst.Messages(ctx, 9)
		if len(msgs) != 1 || msgs[0].BlobDigest != "d2" {
			t.Errorf("Expected alice's surviving message in mailbox 9, got %v", msgs)
		}
		if id, ok, _ := dst.MailboxID(ctx, "bob"); !ok || id != 2 {
			t.Errorf("Expected bob as mailbox 2, got %d (%v)", id, ok)
		}
	})

	t.Run("fatal", func(t *testing.T) {
		dst := openStore(t, "dst.db")
		if _, err := dst.CreateMailbox(ctx, "alice", 9); err != nil {
			t.Fatalf("Failed to create mailbox: %v", err)
		}
		_, err := replay(t, dst, cfg.LogPath, redo.PlayerOptions{}, nil)
		if !errors.Is(err, errors.ErrMailboxConflict) {
			t.Fatalf("Expected mailbox conflict, got %v", err)
		}
		var conflict *redo.MailboxIDConflictError
		if !errors.As(err, &conflict) || conflict.ExpectedID != 1 || conflict.FoundID != 9 {
			t.Errorf("Expected conflict 1 vs 9, got %v", err)
		}
	})
}

func TestReindexDeferredUntilStartup(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "mbox.db")
	if _, err := s.CreateMailbox(ctx, "alice", 1); err != nil {
		t.Fatalf("Failed to create mailbox: %v", err)
	}

	cfg := config.ForDataDir(t.TempDir())
	cfg.Redo.Fsync.Mode = config.FsyncAlways
	cfg.Redo.CrashRecoveryLookback = 0
	reg := NewRegistry(s)

	m := redolog.NewManager(&cfg.Redo, reg, logger.Discard())
	if err := m.Start(ctx, true); err != nil {
		t.Fatalf("Failed to start journal: %v", err)
	}
	// Logged but never applied or committed.
	if err := m.Log(NewReindexMailbox(s, 1), true); err != nil {
		t.Fatalf("Failed to log: %v", err)
	}
	m.Stop()

	m2 := redolog.NewManager(&cfg.Redo, reg, logger.Discard())
	if err := m2.Start(ctx, true); err != nil {
		t.Fatalf("Failed to restart journal: %v", err)
	}
	defer m2.Stop()

	if n := len(m2.Deferred()); n != 1 {
		t.Fatalf("Expected 1 deferred op, got %d", n)
	}
	if _, indexed, _ := s.MessageCount(ctx, 1); indexed {
		t.Fatal("Expected reindex to wait for post-startup recovery")
	}
	if _, err := m2.RunPostStartupRecovery(ctx); err != nil {
		t.Fatalf("Failed post-startup recovery: %v", err)
	}
	if _, indexed, _ := s.MessageCount(ctx, 1); !indexed {
		t.Error("Expected mailbox reindexed after startup")
	}
}

func TestServiceAbortsFailedChange(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "mbox.db")
	j := &recordingJournal{}
	svc := NewService(s, j, logger.Discard())

	if _, err := svc.DeleteMessage(ctx, 4, 1); !errors.Is(err, errors.ErrNoSuchMailbox) {
		t.Fatalf("Expected ErrNoSuchMailbox, got %v", err)
	}
	if !reflect.DeepEqual(j.events, []string{"log", "abort"}) {
		t.Errorf("Expected log then abort, got %v", j.events)
	}
}

type recordingJournal struct {
	events []string
}

func (j *recordingJournal) Log(op redo.Operation, sync bool) error {
	j.events = append(j.events, "log")
	return nil
}

func (j *recordingJournal) Commit(op redo.Operation) (redo.CommitID, error) {
	j.events = append(j.events, "commit")
	return redo.CommitID{}, nil
}

func (j *recordingJournal) Abort(op redo.Operation) error {
	j.events = append(j.events, "abort")
	return nil
}
