package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemFilter narrows ListItems and FirstItem.
type ItemFilter struct {
	// AccountID scopes to one owning account (empty = all accounts).
	AccountID string
	// UserID scopes to every account of one user via a join (empty = all).
	UserID string
	// RemoteKey matches the provider's natural key exactly.
	RemoteKey string
	// URL matches the item's remote URL exactly.
	URL string
	// Controller filters by controller tag (empty = all).
	Controller Controller
}

// InsertItem stores a new item record under its owning account. If rec.ID
// is empty a UUID is assigned. The (account, remote key) pair is unique;
// violating it is a bug in the caller's deduplication lookup.
func (s *Store) InsertItem(ctx context.Context, rec *ItemRecord) (*ItemRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid item: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Payload == "" {
		rec.Payload = "{}"
	}

	query := `
	INSERT INTO ext_items (id, account_id, remote_key, summary, url, icon, controller,
		task_id, done_at, due_at, has_task, from_list, payload, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.conn.ExecContext(ctx, query,
		rec.ID, rec.AccountID, rec.RemoteKey, rec.Summary, rec.URL, rec.Icon,
		string(rec.Controller), rec.TaskID,
		timeToNullString(rec.Done), timeToNullString(rec.Due),
		boolToInt(rec.HasTask), boolToInt(rec.FromList), rec.Payload,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}
	return rec, nil
}

// UpdateItem persists the mutable fields of an existing item record as a
// single atomic row write. Either every field applies or none does.
func (s *Store) UpdateItem(ctx context.Context, rec *ItemRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()
	if rec.Payload == "" {
		rec.Payload = "{}"
	}

	query := `
	UPDATE ext_items SET summary = ?, url = ?, icon = ?, controller = ?, task_id = ?,
		done_at = ?, due_at = ?, has_task = ?, from_list = ?, payload = ?, updated_at = ?
	WHERE id = ? AND account_id = ?
	`
	res, err := s.conn.ExecContext(ctx, query,
		rec.Summary, rec.URL, rec.Icon, string(rec.Controller), rec.TaskID,
		timeToNullString(rec.Done), timeToNullString(rec.Due),
		boolToInt(rec.HasTask), boolToInt(rec.FromList), rec.Payload,
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID, rec.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// GetItem retrieves a single item by id.
// Returns ErrNotFound if no such item exists.
func (s *Store) GetItem(ctx context.Context, id string) (*ItemRecord, error) {
	row := s.conn.QueryRowContext(ctx, itemSelect+" WHERE i.id = ?", id)
	rec, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return rec, nil
}

// FirstItem returns the first item matching the filter, or nil when none
// matches. This is the natural-key lookup providers use before creating a
// new local item.
func (s *Store) FirstItem(ctx context.Context, filter ItemFilter) (*ItemRecord, error) {
	query, args := buildItemQuery(filter)
	row := s.conn.QueryRowContext(ctx, query+" LIMIT 1", args...)
	rec, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return rec, nil
}

// ListItems retrieves items matching the filter, oldest first.
func (s *Store) ListItems(ctx context.Context, filter ItemFilter) ([]*ItemRecord, error) {
	query, args := buildItemQuery(filter)
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*ItemRecord
	for rows.Next() {
		rec, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item row.
// Returns nil if the item doesn't exist (idempotent).
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM ext_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}

const itemSelect = `
SELECT i.id, i.account_id, i.remote_key, i.summary, i.url, i.icon, i.controller,
       i.task_id, i.done_at, i.due_at, i.has_task, i.from_list, i.payload,
       i.created_at, i.updated_at
FROM ext_items i`

func buildItemQuery(filter ItemFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	query := itemSelect
	if filter.UserID != "" {
		query += " JOIN accounts a ON a.id = i.account_id"
		conditions = append(conditions, "a.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.AccountID != "" {
		conditions = append(conditions, "i.account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.RemoteKey != "" {
		conditions = append(conditions, "i.remote_key = ?")
		args = append(args, filter.RemoteKey)
	}
	if filter.URL != "" {
		conditions = append(conditions, "i.url = ?")
		args = append(args, filter.URL)
	}
	if filter.Controller != "" {
		conditions = append(conditions, "i.controller = ?")
		args = append(args, string(filter.Controller))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY i.created_at ASC"
	return query, args
}

func scanItem(row rowScanner) (*ItemRecord, error) {
	var rec ItemRecord
	var controller, createdAt, updatedAt string
	var doneAt, dueAt sql.NullString
	var hasTask, fromList int

	err := row.Scan(
		&rec.ID, &rec.AccountID, &rec.RemoteKey, &rec.Summary, &rec.URL,
		&rec.Icon, &controller, &rec.TaskID, &doneAt, &dueAt,
		&hasTask, &fromList, &rec.Payload, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Controller = Controller(controller)
	rec.Done = nullStringToTime(doneAt)
	rec.Due = nullStringToTime(dueAt)
	rec.HasTask = hasTask != 0
	rec.FromList = fromList != 0

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
