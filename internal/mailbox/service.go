package mailbox

import (
	"context"

	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

// Journal is the part of the redo log manager the service writes through.
type Journal interface {
	Log(op redo.Operation, sync bool) error
	Commit(op redo.Operation) (redo.CommitID, error)
	Abort(op redo.Operation) error
}

// Service applies mailbox changes through the journal: each change is
// logged, applied to the store and then committed, or aborted if applying
// it failed.
type Service struct {
	store   *Store
	journal Journal
	logger  *logger.Logger
}

func NewService(store *Store, journal Journal, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{store: store, journal: journal, logger: log}
}

func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) apply(ctx context.Context, op redo.Operation) (redo.CommitID, error) {
	if err := s.journal.Log(op, false); err != nil {
		return redo.CommitID{}, err
	}
	res := op.Redo(ctx)
	if !res.OK() {
		if err := s.journal.Abort(op); err != nil {
			s.logger.Error("Failed to abort %v: %v", op, err)
		}
		return redo.CommitID{}, res.Err(op)
	}
	return s.journal.Commit(op)
}

// CreateMailbox creates a mailbox for accountID with the next free id.
func (s *Service) CreateMailbox(ctx context.Context, accountID string) (int32, redo.CommitID, error) {
	id, err := s.store.NextMailboxID(ctx)
	if err != nil {
		return 0, redo.CommitID{}, err
	}
	cid, err := s.apply(ctx, NewCreateMailbox(s.store, accountID, id))
	return id, cid, err
}

func (s *Service) CreateFolder(ctx context.Context, mailboxID, folderID int32, name string) (redo.CommitID, error) {
	return s.apply(ctx, NewCreateFolder(s.store, mailboxID, folderID, name))
}

// Deliver stores a blob for every recipient mailbox and files a message for
// it in folderID of each one.
func (s *Service) Deliver(ctx context.Context, digest string, size int64, folderID int32, recipients []int32) ([]Message, error) {
	if _, err := s.apply(ctx, NewStoreIncomingBlob(s.store, digest, size, recipients)); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(recipients))
	for _, mbox := range recipients {
		id, err := s.store.NextMessageID(ctx, mbox)
		if err != nil {
			return msgs, err
		}
		m := Message{MailboxID: mbox, MessageID: id, FolderID: folderID, BlobDigest: digest, Size: size}
		if _, err := s.apply(ctx, NewCreateMessage(s.store, m)); err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Service) DeleteMessage(ctx context.Context, mailboxID, messageID int32) (redo.CommitID, error) {
	return s.apply(ctx, NewDeleteMessage(s.store, mailboxID, messageID))
}

func (s *Service) Reindex(ctx context.Context, mailboxID int32) (redo.CommitID, error) {
	return s.apply(ctx, NewReindexMailbox(s.store, mailboxID))
}
