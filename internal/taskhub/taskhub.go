// Package taskhub implements the shared task store and shared list
// registry the sync engine publishes into.
//
// Task records here are what the rest of the application renders and
// mutates; the sync engine only pushes externally observable fields
// (summary, done-state) and connects/disconnects records as remote
// entities appear and disappear. The hub shares the record store's SQLite
// database and keeps its own tables.
package taskhub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a hub record does not exist.
var ErrNotFound = errors.New("taskhub: record not found")

// Task is one shared task record.
type Task struct {
	ID      string     `json:"id"`
	UserID  string     `json:"user_id"`
	Summary string     `json:"summary"`
	Done    *time.Time `json:"done,omitempty"`
	Snoozed *time.Time `json:"snoozed,omitempty"`

	Archived   bool   `json:"archived,omitempty"`
	Controller string `json:"controller,omitempty"`

	// Connected reports whether a sync engine item still backs this task.
	// Disconnected tasks keep their last-known URL and icon for display.
	Connected bool   `json:"connected"`
	URL       string `json:"url,omitempty"`
	Icon      string `json:"icon,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List is one shared list-registry entry: a named group of task ids
// published by a sync engine list each reconciliation cycle.
type List struct {
	ID     string     `json:"id"`
	UserID string     `json:"user_id"`
	Name   string     `json:"name"`
	URL    string     `json:"url,omitempty"`
	Items  []string   `json:"items,omitempty"`
	Due    *time.Time `json:"due,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskFields carries the initial state for CreateItem.
type TaskFields struct {
	Summary    string
	Archived   bool
	Snoozed    *time.Time
	Done       *time.Time
	Controller string
	URL        string
	Icon       string
}

// ListUpdate carries a partial update for a registry entry. Nil fields are
// left untouched.
type ListUpdate struct {
	Name  *string
	URL   *string
	Items []string
	Due   *time.Time
}

// Hub provides access to the shared task store and list registry.
type Hub struct {
	conn   *sql.DB
	logger *log.Logger
}

// New creates a Hub over an open database connection.
// If logger is nil, a default logger writing to stderr is used.
func New(conn *sql.DB, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stderr, "[taskhub] ", log.LstdFlags)
	}
	return &Hub{conn: conn, logger: logger}
}

// InitSchema creates the hub tables if they don't exist.
// Idempotent - safe to call multiple times.
func (h *Hub) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hub_tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		done_at TEXT,
		snoozed_at TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		controller TEXT NOT NULL DEFAULT 'none',
		connected INTEGER NOT NULL DEFAULT 1,
		url TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hub_lists (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		items TEXT NOT NULL DEFAULT '[]',  -- JSON array of task ids
		due_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_hub_tasks_user ON hub_tasks(user_id);
	CREATE INDEX IF NOT EXISTS idx_hub_lists_user ON hub_lists(user_id);
	`
	if _, err := h.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize hub schema: %w", err)
	}
	return nil
}

// CreateItem creates a shared task record and returns its id.
func (h *Hub) CreateItem(ctx context.Context, userID string, f TaskFields) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
	INSERT INTO hub_tasks (id, user_id, summary, done_at, snoozed_at, archived, controller, connected, url, icon, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	`
	_, err := h.conn.ExecContext(ctx, query,
		id, userID, f.Summary, timeArg(f.Done), timeArg(f.Snoozed),
		boolArg(f.Archived), f.Controller, f.URL, f.Icon, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create task record: %w", err)
	}
	return id, nil
}

// SetItemSummary updates the visible summary of a task record.
func (h *Hub) SetItemSummary(ctx context.Context, id, summary string) error {
	return h.setField(ctx, id, "summary", summary)
}

// SetItemTaskDone writes the done timestamp of a task record. A nil value
// reopens the task.
func (h *Hub) SetItemTaskDone(ctx context.Context, id string, done *time.Time) error {
	return h.setField(ctx, id, "done_at", timeArg(done))
}

// SetItemSnoozed writes the snoozed-until timestamp of a task record.
func (h *Hub) SetItemSnoozed(ctx context.Context, id string, until *time.Time) error {
	return h.setField(ctx, id, "snoozed_at", timeArg(until))
}

// DisconnectItem detaches a task record from its sync engine item while
// keeping the record itself. The last-known URL and icon are preserved so
// the task stays meaningful after the remote link is gone.
func (h *Hub) DisconnectItem(ctx context.Context, id, lastURL, lastIcon string) error {
	query := `
	UPDATE hub_tasks SET connected = 0,
		url = CASE WHEN ? != '' THEN ? ELSE url END,
		icon = CASE WHEN ? != '' THEN ? ELSE icon END,
		updated_at = ?
	WHERE id = ?
	`
	res, err := h.conn.ExecContext(ctx, query,
		lastURL, lastURL, lastIcon, lastIcon,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to disconnect task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteItem removes a task record entirely.
// Returns nil if the task doesn't exist (idempotent).
func (h *Hub) DeleteItem(ctx context.Context, id string) error {
	if _, err := h.conn.ExecContext(ctx, `DELETE FROM hub_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// GetItem retrieves a single task record.
func (h *Hub) GetItem(ctx context.Context, id string) (*Task, error) {
	row := h.conn.QueryRowContext(ctx, taskSelect+" WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// ListItems retrieves every task record for a user, oldest first.
func (h *Hub) ListItems(ctx context.Context, userID string) ([]*Task, error) {
	rows, err := h.conn.QueryContext(ctx,
		taskSelect+" WHERE user_id = ? ORDER BY created_at ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// AddList creates a list-registry entry and returns its id.
func (h *Hub) AddList(ctx context.Context, userID, name, url string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
	INSERT INTO hub_lists (id, user_id, name, url, items, created_at, updated_at)
	VALUES (?, ?, ?, ?, '[]', ?, ?)
	`
	if _, err := h.conn.ExecContext(ctx, query, id, userID, name, url, now, now); err != nil {
		return "", fmt.Errorf("failed to create list entry: %w", err)
	}
	return id, nil
}

// UpdateList applies a partial update to a registry entry. Membership is
// always republished in full when Items is non-nil.
func (h *Hub) UpdateList(ctx context.Context, id string, u ListUpdate) error {
	var sets []string
	var args []interface{}

	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.URL != nil {
		sets = append(sets, "url = ?")
		args = append(args, *u.URL)
	}
	if u.Items != nil {
		data, err := json.Marshal(u.Items)
		if err != nil {
			return fmt.Errorf("failed to marshal list items: %w", err)
		}
		sets = append(sets, "items = ?")
		args = append(args, string(data))
	}
	if u.Due != nil {
		sets = append(sets, "due_at = ?")
		args = append(args, u.Due.Format(time.RFC3339))
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	query := "UPDATE hub_lists SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := h.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update list entry %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("list entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteList removes a registry entry. Member tasks are left alone.
// Returns nil if the entry doesn't exist (idempotent).
func (h *Hub) DeleteList(ctx context.Context, id string) error {
	if _, err := h.conn.ExecContext(ctx, `DELETE FROM hub_lists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete list entry %s: %w", id, err)
	}
	return nil
}

// GetList retrieves a single registry entry.
func (h *Hub) GetList(ctx context.Context, id string) (*List, error) {
	query := `
	SELECT id, user_id, name, url, items, due_at, created_at, updated_at
	FROM hub_lists WHERE id = ?
	`
	row := h.conn.QueryRowContext(ctx, query, id)

	var l List
	var items, createdAt, updatedAt string
	var dueAt sql.NullString

	err := row.Scan(&l.ID, &l.UserID, &l.Name, &l.URL, &items, &dueAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("list entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list entry %s: %w", id, err)
	}

	if items != "" && items != "null" {
		if err := json.Unmarshal([]byte(items), &l.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal list items: %w", err)
		}
	}
	if dueAt.Valid {
		if t, err := time.Parse(time.RFC3339, dueAt.String); err == nil {
			l.Due = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		l.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		l.UpdatedAt = t
	}
	return &l, nil
}

func (h *Hub) setField(ctx context.Context, id, column string, value interface{}) error {
	query := fmt.Sprintf(
		"UPDATE hub_tasks SET %s = ?, updated_at = ? WHERE id = ?", column)
	res, err := h.conn.ExecContext(ctx, query,
		value, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to set %s on task %s: %w", column, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

const taskSelect = `
SELECT id, user_id, summary, done_at, snoozed_at, archived, controller, connected, url, icon, created_at, updated_at
FROM hub_tasks`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var createdAt, updatedAt string
	var doneAt, snoozedAt sql.NullString
	var archived, connected int

	err := row.Scan(
		&t.ID, &t.UserID, &t.Summary, &doneAt, &snoozedAt,
		&archived, &t.Controller, &connected, &t.URL, &t.Icon,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Archived = archived != 0
	t.Connected = connected != 0
	if doneAt.Valid {
		if ts, err := time.Parse(time.RFC3339, doneAt.String); err == nil {
			t.Done = &ts
		}
	}
	if snoozedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, snoozedAt.String); err == nil {
			t.Snoozed = &ts
		}
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		t.UpdatedAt = ts
	}
	return &t, nil
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}
