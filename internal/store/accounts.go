package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountFilter narrows ListAccounts and FirstAccount.
type AccountFilter struct {
	// UserID filters by owning local user (empty = all users).
	UserID string
	// Kind filters by integration kind (empty = all kinds).
	Kind string
}

// InsertAccount stores a new account record. If rec.ID is empty a UUID is
// assigned. Created/updated timestamps are set when zero.
func (s *Store) InsertAccount(ctx context.Context, rec *AccountRecord) (*AccountRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid account: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
	INSERT INTO accounts (id, user_id, kind, display_name, server_url, icon, credentials, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.conn.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Kind, rec.DisplayName, rec.ServerURL,
		rec.Icon, rec.Credentials,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return rec, nil
}

// UpdateAccount persists the mutable fields of an existing account record.
// The write is a single-row atomic update.
func (s *Store) UpdateAccount(ctx context.Context, rec *AccountRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()

	query := `
	UPDATE accounts SET display_name = ?, server_url = ?, icon = ?, credentials = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := s.conn.ExecContext(ctx, query,
		rec.DisplayName, rec.ServerURL, rec.Icon, rec.Credentials,
		rec.UpdatedAt.Format(time.RFC3339), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// GetAccount retrieves a single account by id.
// Returns ErrNotFound if no such account exists.
func (s *Store) GetAccount(ctx context.Context, id string) (*AccountRecord, error) {
	row := s.conn.QueryRowContext(ctx, accountSelect+" WHERE id = ?", id)
	rec, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return rec, nil
}

// FirstAccount returns the first account matching the filter, or nil when
// none matches. Absence is a normal negative result, not an error.
func (s *Store) FirstAccount(ctx context.Context, filter AccountFilter) (*AccountRecord, error) {
	accts, err := s.ListAccounts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(accts) == 0 {
		return nil, nil
	}
	return accts[0], nil
}

// ListAccounts retrieves accounts matching the filter, oldest first.
func (s *Store) ListAccounts(ctx context.Context, filter AccountFilter) ([]*AccountRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}

	query := accountSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accts []*AccountRecord
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accts = append(accts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accts, nil
}

// DeleteAccount removes an account row. Owned list and item rows are
// removed by the foreign-key cascade, but callers that need the
// refresh-then-delete semantics must traverse through the engine instead.
// Returns nil if the account doesn't exist (idempotent).
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, err)
	}
	return nil
}

const accountSelect = `
SELECT id, user_id, kind, display_name, server_url, icon, credentials, created_at, updated_at
FROM accounts`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*AccountRecord, error) {
	var rec AccountRecord
	var createdAt, updatedAt string

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Kind, &rec.DisplayName, &rec.ServerURL,
		&rec.Icon, &rec.Credentials, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}
