// Package chatdb implements the concrete SMS transport spec §1 lists as
// an external collaborator ("read newest rows from a local chat
// database, send via an OS-level scripting bridge") and §6 specifies by
// contract (`getLatestRowId()`, `getNewMessages(sinceRowId)`, `send()`).
// The daemon cannot compile end-to-end without *some* implementation of
// this contract, so this package provides one grounded on the
// macOS Messages.app chat.db layout (the natural concrete reading of
// "local chat database" for a single-operator workstation daemon),
// reusing the same sqlx/modernc.sqlite stack internal/db already wires
// in, opened read-only since this process never writes to the OS's own
// Messages store.
package chatdb

import (
	"context"
	"database/sql"
	"fmt"
	"os/exec"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/orchestratord/orchestratord/internal/orcherr"
)

// Message is one row surfaced by GetNewMessages, matching the SMS
// transport contract's `{ROWID, text, ...}` shape (spec §6).
type Message struct {
	RowID int64
	Text  string
}

// Reader implements the read half of the SMS transport contract against
// a Messages.app-style chat.db.
type Reader struct {
	db *sqlx.DB
}

// OpenReader opens path read-only. A permission-denied error is wrapped
// as orcherr.KindChatDBAuthDenied (spec §7/§8: the only fatal error
// kind, causing the daemon to exit 1) since most local chat databases
// require macOS Full Disk Access and a denial here is never transient.
func OpenReader(ctx context.Context, path string) (*Reader, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindChatDBAuthDenied, "open chat db", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, orcherr.Wrap(orcherr.KindChatDBAuthDenied, "chat db unreadable, check Full Disk Access grant", err)
	}
	return &Reader{db: conn}, nil
}

// Close releases the read-only handle.
func (r *Reader) Close() error { return r.db.Close() }

// GetLatestRowID returns the newest message ROWID, or 0 if the table is
// empty (spec §6 `getLatestRowId()`).
func (r *Reader) GetLatestRowID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.db.GetContext(ctx, &id, `SELECT MAX(ROWID) FROM message`)
	if err != nil {
		return 0, orcherr.Wrap(orcherr.KindChatDBAuthDenied, "read latest chat db row id", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

// GetNewMessages returns every inbound message strictly newer than
// sinceRowID, ordered oldest-first so C9's dispatch preserves arrival
// order (spec §6 `getNewMessages(sinceRowId)`).
func (r *Reader) GetNewMessages(ctx context.Context, sinceRowID int64) ([]Message, error) {
	var rows []struct {
		RowID int64  `db:"ROWID"`
		Text  string `db:"text"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT ROWID, COALESCE(text, '') AS text
		FROM message
		WHERE ROWID > ? AND is_from_me = 0
		ORDER BY ROWID ASC`, sinceRowID)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindChatDBAuthDenied, "read new chat db messages", err)
	}
	out := make([]Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, Message{RowID: row.RowID, Text: row.Text})
	}
	return out, nil
}

// Sender implements the send half of the SMS transport contract by
// shelling out to an operator-configured OS-level scripting bridge
// (spec §1 "send via an OS-level scripting bridge"; an AppleScript
// `.scpt` on macOS is the natural concrete instance). Implements
// notify.Transport.
type Sender struct {
	scriptPath string
	recipient  string
}

// NewSender builds a Sender invoking scriptPath with (recipient, text)
// as positional arguments.
func NewSender(scriptPath, recipient string) *Sender {
	return &Sender{scriptPath: scriptPath, recipient: recipient}
}

// Send runs the bridge script, passing text as its final argument.
// Spec §4.10 calls for a 2s pause after send while waiting for the
// outbound row to appear in the chat db before lastRowId advances past
// it — that wait is the caller's responsibility (the supervisor's
// message-poll loop), not this transport's, since only the caller knows
// when it has re-read lastRowId.
func (s *Sender) Send(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, "osascript", s.scriptPath, s.recipient, text)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sms bridge script failed: %w: %s", err, string(out))
	}
	return nil
}
