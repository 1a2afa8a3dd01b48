package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertList stores a new list record under its owning account. If rec.ID
// is empty a UUID is assigned.
func (s *Store) InsertList(ctx context.Context, rec *ListRecord) (*ListRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid list: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	members, err := json.Marshal(memberSlice(rec.Members))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal members: %w", err)
	}

	query := `
	INSERT INTO ext_lists (id, account_id, name, url, query, hub_list_id, members, due_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.conn.ExecContext(ctx, query,
		rec.ID, rec.AccountID, rec.Name, rec.URL, rec.Query, rec.HubListID,
		string(members), timeToNullString(rec.Due),
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert list: %w", err)
	}
	return rec, nil
}

// UpdateList persists the mutable fields of an existing list record.
func (s *Store) UpdateList(ctx context.Context, rec *ListRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid list: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()

	members, err := json.Marshal(memberSlice(rec.Members))
	if err != nil {
		return fmt.Errorf("failed to marshal members: %w", err)
	}

	query := `
	UPDATE ext_lists SET name = ?, url = ?, query = ?, hub_list_id = ?, members = ?, due_at = ?, updated_at = ?
	WHERE id = ? AND account_id = ?
	`
	res, err := s.conn.ExecContext(ctx, query,
		rec.Name, rec.URL, rec.Query, rec.HubListID, string(members),
		timeToNullString(rec.Due), rec.UpdatedAt.Format(time.RFC3339),
		rec.ID, rec.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update list %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("list %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// GetList retrieves a single list by id.
// Returns ErrNotFound if no such list exists.
func (s *Store) GetList(ctx context.Context, id string) (*ListRecord, error) {
	row := s.conn.QueryRowContext(ctx, listSelect+" WHERE id = ?", id)
	rec, err := scanList(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("list %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list %s: %w", id, err)
	}
	return rec, nil
}

// FirstList returns the account's list with the given name, or nil when
// none matches.
func (s *Store) FirstList(ctx context.Context, accountID, name string) (*ListRecord, error) {
	row := s.conn.QueryRowContext(ctx,
		listSelect+" WHERE account_id = ? AND name = ? ORDER BY created_at ASC LIMIT 1",
		accountID, name)
	rec, err := scanList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find list %q: %w", name, err)
	}
	return rec, nil
}

// ListLists retrieves every list owned by the account, oldest first.
func (s *Store) ListLists(ctx context.Context, accountID string) ([]*ListRecord, error) {
	rows, err := s.conn.QueryContext(ctx,
		listSelect+" WHERE account_id = ? ORDER BY created_at ASC", accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lists: %w", err)
	}
	defer rows.Close()

	var lists []*ListRecord
	for rows.Next() {
		rec, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		lists = append(lists, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lists: %w", err)
	}
	return lists, nil
}

// DeleteList removes a list row only. Member items stay untouched; they
// become orphans and are refreshed individually next cycle.
// Returns nil if the list doesn't exist (idempotent).
func (s *Store) DeleteList(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM ext_lists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete list %s: %w", id, err)
	}
	return nil
}

const listSelect = `
SELECT id, account_id, name, url, query, hub_list_id, members, due_at, created_at, updated_at
FROM ext_lists`

func scanList(row rowScanner) (*ListRecord, error) {
	var rec ListRecord
	var members, createdAt, updatedAt string
	var dueAt sql.NullString

	err := row.Scan(
		&rec.ID, &rec.AccountID, &rec.Name, &rec.URL, &rec.Query,
		&rec.HubListID, &members, &dueAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if members != "" && members != "null" {
		if err := json.Unmarshal([]byte(members), &rec.Members); err != nil {
			return nil, fmt.Errorf("failed to unmarshal members: %w", err)
		}
	}
	rec.Due = nullStringToTime(dueAt)

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

// memberSlice normalizes a nil slice so membership always marshals as [].
func memberSlice(members []string) []string {
	if members == nil {
		return []string{}
	}
	return members
}
