package mailbox

import (
	"context"
	"fmt"

	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

const (
	OpCreateMailbox redo.OpCode = 1000 + iota
	OpCreateFolder
	OpCreateMessage
	OpDeleteMessage
	OpStoreIncomingBlob
	OpReindexMailbox
)

// RegisterOps installs the mailbox operations in reg. Decoded operations
// redo against store.
func RegisterOps(reg *redo.Registry, store *Store) {
	reg.Register(OpCreateMailbox, "CreateMailbox", func() redo.Operation { return &CreateMailbox{store: store} })
	reg.Register(OpCreateFolder, "CreateFolder", func() redo.Operation { return &CreateFolder{store: store} })
	reg.Register(OpCreateMessage, "CreateMessage", func() redo.Operation { return &CreateMessage{store: store} })
	reg.Register(OpDeleteMessage, "DeleteMessage", func() redo.Operation { return &DeleteMessage{store: store} })
	reg.Register(OpStoreIncomingBlob, "StoreIncomingBlob", func() redo.Operation { return &StoreIncomingBlob{store: store} })
	reg.Register(OpReindexMailbox, "ReindexMailbox", func() redo.Operation { return &ReindexMailbox{store: store} })
}

// NewRegistry returns a registry with the control and mailbox operations.
func NewRegistry(store *Store) *redo.Registry {
	reg := redo.NewRegistry()
	RegisterOps(reg, store)
	return reg
}

func resultOf(err error) redo.RedoResult {
	if err != nil {
		return redo.Failed(err)
	}
	return redo.Applied()
}

// CreateMailbox creates the mailbox for an account.
type CreateMailbox struct {
	redo.OpHeader
	store     *Store
	AccountID string
}

func NewCreateMailbox(store *Store, accountID string, mailboxID int32) *CreateMailbox {
	op := &CreateMailbox{store: store, AccountID: accountID}
	op.SetMailboxID(mailboxID)
	return op
}

func (o *CreateMailbox) OpCode() redo.OpCode { return OpCreateMailbox }

// Redo reports a conflict when the account already owns another mailbox.
func (o *CreateMailbox) Redo(ctx context.Context) redo.RedoResult {
	found, err := o.store.CreateMailbox(ctx, o.AccountID, o.MailboxID())
	if err != nil {
		return redo.Failed(err)
	}
	if found != o.MailboxID() {
		return redo.Conflict(o.AccountID, o.MailboxID(), found)
	}
	return redo.Applied()
}

func (o *CreateMailbox) SerializeData(out *logio.Output) error {
	out.UTF(o.AccountID)
	return out.Err()
}

func (o *CreateMailbox) DeserializeData(in *logio.Input) error {
	o.AccountID = in.UTF()
	return in.Err()
}

func (o *CreateMailbox) String() string {
	return fmt.Sprintf("CreateMailbox{account=%s mbox=%d txn=%s}", o.AccountID, o.MailboxID(), o.TransactionID())
}

// CreateFolder creates or renames a folder.
type CreateFolder struct {
	redo.OpHeader
	store    *Store
	FolderID int32
	Name     string
}

func NewCreateFolder(store *Store, mailboxID, folderID int32, name string) *CreateFolder {
	op := &CreateFolder{store: store, FolderID: folderID, Name: name}
	op.SetMailboxID(mailboxID)
	return op
}

func (o *CreateFolder) OpCode() redo.OpCode { return OpCreateFolder }

func (o *CreateFolder) Redo(ctx context.Context) redo.RedoResult {
	return resultOf(o.store.CreateFolder(ctx, o.MailboxID(), o.FolderID, o.Name))
}

func (o *CreateFolder) SerializeData(out *logio.Output) error {
	out.Int(o.FolderID)
	out.UTF(o.Name)
	return out.Err()
}

func (o *CreateFolder) DeserializeData(in *logio.Input) error {
	o.FolderID = in.Int()
	o.Name = in.UTF()
	return in.Err()
}

func (o *CreateFolder) String() string {
	return fmt.Sprintf("CreateFolder{mbox=%d folder=%d name=%q txn=%s}", o.MailboxID(), o.FolderID, o.Name, o.TransactionID())
}

// CreateMessage files a stored blob as a message.
type CreateMessage struct {
	redo.OpHeader
	store      *Store
	MessageID  int32
	FolderID   int32
	BlobDigest string
	Size       int64
}

func NewCreateMessage(store *Store, m Message) *CreateMessage {
	op := &CreateMessage{
		store:      store,
		MessageID:  m.MessageID,
		FolderID:   m.FolderID,
		BlobDigest: m.BlobDigest,
		Size:       m.Size,
	}
	op.SetMailboxID(m.MailboxID)
	return op
}

func (o *CreateMessage) OpCode() redo.OpCode { return OpCreateMessage }

func (o *CreateMessage) Message() Message {
	return Message{
		MailboxID:  o.MailboxID(),
		MessageID:  o.MessageID,
		FolderID:   o.FolderID,
		BlobDigest: o.BlobDigest,
		Size:       o.Size,
	}
}

func (o *CreateMessage) Redo(ctx context.Context) redo.RedoResult {
	return resultOf(o.store.PutMessage(ctx, o.Message()))
}

func (o *CreateMessage) SerializeData(out *logio.Output) error {
	out.Int(o.MessageID)
	out.Int(o.FolderID)
	out.UTF(o.BlobDigest)
	out.Long(o.Size)
	return out.Err()
}

func (o *CreateMessage) DeserializeData(in *logio.Input) error {
	o.MessageID = in.Int()
	o.FolderID = in.Int()
	o.BlobDigest = in.UTF()
	o.Size = in.Long()
	return in.Err()
}

func (o *CreateMessage) String() string {
	return fmt.Sprintf("CreateMessage{mbox=%d msg=%d folder=%d blob=%s txn=%s}",
		o.MailboxID(), o.MessageID, o.FolderID, o.BlobDigest, o.TransactionID())
}

// DeleteMessage removes a message.
type DeleteMessage struct {
	redo.OpHeader
	store     *Store
	MessageID int32
}

func NewDeleteMessage(store *Store, mailboxID, messageID int32) *DeleteMessage {
	op := &DeleteMessage{store: store, MessageID: messageID}
	op.SetMailboxID(mailboxID)
	return op
}

func (o *DeleteMessage) OpCode() redo.OpCode { return OpDeleteMessage }

func (o *DeleteMessage) IsDeleteOp() bool { return true }

func (o *DeleteMessage) Redo(ctx context.Context) redo.RedoResult {
	return resultOf(o.store.DeleteMessage(ctx, o.MailboxID(), o.MessageID))
}

func (o *DeleteMessage) SerializeData(out *logio.Output) error {
	out.Int(o.MessageID)
	return out.Err()
}

func (o *DeleteMessage) DeserializeData(in *logio.Input) error {
	o.MessageID = in.Int()
	return in.Err()
}

func (o *DeleteMessage) String() string {
	return fmt.Sprintf("DeleteMessage{mbox=%d msg=%d txn=%s}", o.MailboxID(), o.MessageID, o.TransactionID())
}

// StoreIncomingBlob stores one delivered blob for several recipients. It is
// logged against every mailbox and names the recipients explicitly; a nil
// list means all mailboxes.
type StoreIncomingBlob struct {
	redo.OpHeader
	store      *Store
	Digest     string
	Size       int64
	MailboxIDs []int32
}

func NewStoreIncomingBlob(store *Store, digest string, size int64, mailboxIDs []int32) *StoreIncomingBlob {
	op := &StoreIncomingBlob{store: store, Digest: digest, Size: size, MailboxIDs: mailboxIDs}
	op.SetMailboxID(redo.MailboxIDAll)
	return op
}

func (o *StoreIncomingBlob) OpCode() redo.OpCode { return OpStoreIncomingBlob }

func (o *StoreIncomingBlob) MailboxIDList() []int32 { return o.MailboxIDs }

func (o *StoreIncomingBlob) SetMailboxIDList(ids []int32) { o.MailboxIDs = ids }

func (o *StoreIncomingBlob) Redo(ctx context.Context) redo.RedoResult {
	return resultOf(o.store.PutBlob(ctx, o.Digest, o.Size, o.MailboxIDs))
}

func (o *StoreIncomingBlob) SerializeData(out *logio.Output) error {
	out.UTF(o.Digest)
	out.Long(o.Size)
	out.IntArray(o.MailboxIDs)
	return out.Err()
}

func (o *StoreIncomingBlob) DeserializeData(in *logio.Input) error {
	o.Digest = in.UTF()
	o.Size = in.Long()
	o.MailboxIDs = in.IntArray()
	return in.Err()
}

func (o *StoreIncomingBlob) String() string {
	return fmt.Sprintf("StoreIncomingBlob{blob=%s mboxes=%v txn=%s}", o.Digest, o.MailboxIDs, o.TransactionID())
}

// ReindexMailbox rebuilds a mailbox's cached counts. Crash recovery holds it
// back until the server is up.
type ReindexMailbox struct {
	redo.OpHeader
	store *Store
}

func NewReindexMailbox(store *Store, mailboxID int32) *ReindexMailbox {
	op := &ReindexMailbox{store: store}
	op.SetMailboxID(mailboxID)
	return op
}

func (o *ReindexMailbox) OpCode() redo.OpCode { return OpReindexMailbox }

func (o *ReindexMailbox) DeferCrashRecovery() bool { return true }

func (o *ReindexMailbox) Redo(ctx context.Context) redo.RedoResult {
	return resultOf(o.store.Reindex(ctx, o.MailboxID()))
}

func (o *ReindexMailbox) SerializeData(out *logio.Output) error { return nil }

func (o *ReindexMailbox) DeserializeData(in *logio.Input) error { return nil }

func (o *ReindexMailbox) String() string {
	return fmt.Sprintf("ReindexMailbox{mbox=%d txn=%s}", o.MailboxID(), o.TransactionID())
}
