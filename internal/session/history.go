package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Event kinds recorded in history.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventStop       = "stop"
	EventMessage    = "message"
	EventResponse   = "response"
	EventRebuild    = "rebuild"
)

// HistoryEvent is one recorded session event.
type HistoryEvent struct {
	ID       int64
	At       time.Time
	ChatID   int64
	ThreadID int64
	Terminal string
	Kind     string
	Detail   string
}

// History records session activity in a local SQLite database.
type History struct {
	db *sql.DB
}

const historySchema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	chat_id INTEGER NOT NULL,
	thread_id INTEGER NOT NULL DEFAULT 0,
	terminal TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_chat ON events(chat_id, thread_id, at);
`

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One writer at a time keeps modernc's file locking happy.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &History{db: db}, nil
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

// Record inserts an event.
func (h *History) Record(ctx context.Context, key Key, terminal, kind, detail string) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO events (at, chat_id, thread_id, terminal, kind, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), key.ChatID, key.ThreadID, terminal, kind, detail)
	if err != nil {
		return fmt.Errorf("record history event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for a chat, newest first.
func (h *History) Recent(ctx context.Context, key Key, limit int) ([]HistoryEvent, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, at, chat_id, thread_id, terminal, kind, detail
		 FROM events WHERE chat_id = ? AND thread_id = ?
		 ORDER BY at DESC, id DESC LIMIT ?`,
		key.ChatID, key.ThreadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var events []HistoryEvent
	for rows.Next() {
		var e HistoryEvent
		var at int64
		if err := rows.Scan(&e.ID, &at, &e.ChatID, &e.ThreadID, &e.Terminal, &e.Kind, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		e.At = time.Unix(at, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Counts tallies events per kind for a chat.
func (h *History) Counts(ctx context.Context, key Key) (map[string]int, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM events WHERE chat_id = ? AND thread_id = ? GROUP BY kind`,
		key.ChatID, key.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan history count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Prune deletes events older than keep.
func (h *History) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	cutoff := time.Now().Add(-keep).Unix()
	res, err := h.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
