// Package mailbox is a small SQLite-backed mailbox store together with the
// journaled operations that mutate it. Each operation knows how to redo
// itself against the store, so a journal can rebuild a store from scratch,
// restore chosen mailboxes into another store, or finish work a crash
// interrupted.
package mailbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

// Folder is a named folder inside a mailbox.
type Folder struct {
	MailboxID int32
	FolderID  int32
	Name      string
}

// Message is a message row pointing at a stored blob.
type Message struct {
	MailboxID  int32
	MessageID  int32
	FolderID   int32
	BlobDigest string
	Size       int64
}

// Store manages mailboxes in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer connection; concurrent restores queue on it.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	PRAGMA journal_mode = WAL;

	CREATE TABLE IF NOT EXISTS mailboxes (
		id INTEGER PRIMARY KEY,
		account_id TEXT UNIQUE NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS folders (
		mailbox_id INTEGER NOT NULL,
		folder_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (mailbox_id, folder_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		mailbox_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		folder_id INTEGER NOT NULL,
		blob_digest TEXT NOT NULL,
		size INTEGER NOT NULL,
		PRIMARY KEY (mailbox_id, message_id)
	);

	CREATE TABLE IF NOT EXISTS blobs (
		digest TEXT NOT NULL,
		mailbox_id INTEGER NOT NULL,
		size INTEGER NOT NULL,
		PRIMARY KEY (digest, mailbox_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages(mailbox_id, folder_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateMailbox creates mailbox id for accountID and returns the id the
// account ends up owning. If the account already has a mailbox its id is
// returned unchanged, which may differ from id.
func (s *Store) CreateMailbox(ctx context.Context, accountID string, id int32) (int32, error) {
	if existing, ok, err := s.MailboxID(ctx, accountID); err != nil {
		return 0, err
	} else if ok {
		return existing, nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mailboxes (id, account_id, created_at) VALUES (?, ?, ?)`,
		id, accountID, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to create mailbox %d for %s: %w", id, accountID, err)
	}
	return id, nil
}

// MailboxID returns the mailbox owned by accountID.
func (s *Store) MailboxID(ctx context.Context, accountID string) (int32, bool, error) {
	var id int32
	err := s.db.QueryRowContext(ctx, `SELECT id FROM mailboxes WHERE account_id = ?`, accountID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up mailbox of %s: %w", accountID, err)
	}
	return id, true, nil
}

// AccountID returns the account owning mailbox id.
func (s *Store) AccountID(ctx context.Context, id int32) (string, error) {
	var acct string
	err := s.db.QueryRowContext(ctx, `SELECT account_id FROM mailboxes WHERE id = ?`, id).Scan(&acct)
	if err == sql.ErrNoRows {
		return "", errors.Wrapf(errors.ErrNoSuchMailbox, "mailbox %d", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up mailbox %d: %w", id, err)
	}
	return acct, nil
}

// NextMailboxID returns one past the highest mailbox id in use.
func (s *Store) NextMailboxID(ctx context.Context) (int32, error) {
	var top sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM mailboxes`).Scan(&top); err != nil {
		return 0, fmt.Errorf("failed to allocate mailbox id: %w", err)
	}
	return int32(top.Int64) + 1, nil
}

// MailboxIDs lists every mailbox id in ascending order.
func (s *Store) MailboxIDs(ctx context.Context) ([]int32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM mailboxes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) requireMailbox(ctx context.Context, id int32) error {
	_, err := s.AccountID(ctx, id)
	return err
}

// CreateFolder creates or renames a folder.
func (s *Store) CreateFolder(ctx context.Context, mailboxID, folderID int32, name string) error {
	if err := s.requireMailbox(ctx, mailboxID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (mailbox_id, folder_id, name) VALUES (?, ?, ?)
		ON CONFLICT (mailbox_id, folder_id) DO UPDATE SET name = excluded.name`,
		mailboxID, folderID, name)
	if err != nil {
		return fmt.Errorf("failed to create folder %d in mailbox %d: %w", folderID, mailboxID, err)
	}
	return nil
}

// Folders lists the folders of a mailbox.
func (s *Store) Folders(ctx context.Context, mailboxID int32) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mailbox_id, folder_id, name FROM folders WHERE mailbox_id = ? ORDER BY folder_id`, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.MailboxID, &f.FolderID, &f.Name); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// PutMessage creates or replaces a message.
func (s *Store) PutMessage(ctx context.Context, m Message) error {
	if err := s.requireMailbox(ctx, m.MailboxID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (mailbox_id, message_id, folder_id, blob_digest, size) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (mailbox_id, message_id) DO UPDATE SET
			folder_id = excluded.folder_id, blob_digest = excluded.blob_digest, size = excluded.size`,
		m.MailboxID, m.MessageID, m.FolderID, m.BlobDigest, m.Size)
	if err != nil {
		return fmt.Errorf("failed to store message %d in mailbox %d: %w", m.MessageID, m.MailboxID, err)
	}
	return nil
}

// DeleteMessage removes a message. Deleting a missing message is not an error.
func (s *Store) DeleteMessage(ctx context.Context, mailboxID, messageID int32) error {
	if err := s.requireMailbox(ctx, mailboxID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE mailbox_id = ? AND message_id = ?`, mailboxID, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message %d in mailbox %d: %w", messageID, mailboxID, err)
	}
	return nil
}

// Messages lists the messages of a mailbox.
func (s *Store) Messages(ctx context.Context, mailboxID int32) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mailbox_id, message_id, folder_id, blob_digest, size
		FROM messages WHERE mailbox_id = ? ORDER BY message_id`, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MailboxID, &m.MessageID, &m.FolderID, &m.BlobDigest, &m.Size); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// NextMessageID returns one past the highest message id in a mailbox.
func (s *Store) NextMessageID(ctx context.Context, mailboxID int32) (int32, error) {
	var top sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(message_id) FROM messages WHERE mailbox_id = ?`, mailboxID).Scan(&top)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate message id: %w", err)
	}
	return int32(top.Int64) + 1, nil
}

// PutBlob records that the blob digest is stored for each listed mailbox.
// A nil list means every mailbox in the store.
func (s *Store) PutBlob(ctx context.Context, digest string, size int64, mailboxIDs []int32) error {
	if mailboxIDs == nil {
		ids, err := s.MailboxIDs(ctx)
		if err != nil {
			return err
		}
		mailboxIDs = ids
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range mailboxIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO blobs (digest, mailbox_id, size) VALUES (?, ?, ?)`, digest, id, size)
		if err != nil {
			return fmt.Errorf("failed to store blob %s for mailbox %d: %w", digest, id, err)
		}
	}
	return tx.Commit()
}

// BlobMailboxes lists the mailboxes holding digest.
func (s *Store) BlobMailboxes(ctx context.Context, digest string) ([]int32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mailbox_id FROM blobs WHERE digest = ? ORDER BY mailbox_id`, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to list blob owners: %w", err)
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reindex recomputes the cached message count of a mailbox.
func (s *Store) Reindex(ctx context.Context, mailboxID int32) error {
	if err := s.requireMailbox(ctx, mailboxID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			message_count = (SELECT COUNT(*) FROM messages WHERE mailbox_id = ?),
			indexed_at = ?
		WHERE id = ?`, mailboxID, time.Now().UnixMilli(), mailboxID)
	if err != nil {
		return fmt.Errorf("failed to reindex mailbox %d: %w", mailboxID, err)
	}
	return nil
}

// MessageCount returns the count computed by the last Reindex.
func (s *Store) MessageCount(ctx context.Context, mailboxID int32) (int, bool, error) {
	var count int
	var indexedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT message_count, indexed_at FROM mailboxes WHERE id = ?`, mailboxID).Scan(&count, &indexedAt)
	if err == sql.ErrNoRows {
		return 0, false, errors.Wrapf(errors.ErrNoSuchMailbox, "mailbox %d", mailboxID)
	}
	if err != nil {
		return 0, false, err
	}
	return count, indexedAt != 0, nil
}
