package store

import (
	"fmt"
	"time"
)

// Controller governs who may mutate an item's completion state.
//
// Only ControllerManual permits a user-initiated completion toggle; for
// every other value the done timestamp is written exclusively by the
// owning integration's update pass based on remote status.
type Controller string

const (
	// ControllerNone marks an item that is tracked but is not a task.
	ControllerNone Controller = "none"

	// ControllerManual lets the user toggle completion by hand.
	ControllerManual Controller = "manual"

	// ControllerPlugin means the owning integration decides completion
	// from remote state; the item was added individually.
	ControllerPlugin Controller = "plugin"

	// ControllerPluginList is the same completion authority as
	// ControllerPlugin, but the item was produced by a list. The
	// distinction matters for lifecycle and re-assignment rules.
	ControllerPluginList Controller = "plugin_list"

	// ControllerService means an authoritative external system dictates
	// done-state; never user-selectable, assigned only at creation.
	ControllerService Controller = "service"
)

// Valid reports whether c is one of the known controller values.
func (c Controller) Valid() bool {
	switch c {
	case ControllerNone, ControllerManual, ControllerPlugin, ControllerPluginList, ControllerService:
		return true
	}
	return false
}

// AccountRecord is one connected external identity belonging to a local
// user. It strictly owns its lists and items: deleting an account cascades
// to both.
type AccountRecord struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Kind        string `json:"kind"` // integration registry key
	DisplayName string `json:"display_name,omitempty"`
	ServerURL   string `json:"server_url,omitempty"`
	Icon        string `json:"icon,omitempty"`

	// Credentials is an opaque provider-specific blob (typically a JSON
	// encoded token). The engine never interprets it.
	Credentials string `json:"credentials,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required account fields.
func (a *AccountRecord) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if a.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	return nil
}

// ListRecord is a named, remotely-defined query belonging to one account.
// Members is the materialized membership from the most recent
// reconciliation cycle, in remote order. Deleting a list never deletes
// its member items.
type ListRecord struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`

	// Query is the provider-specific query payload (a search string, a
	// remote list identifier, ...).
	Query string `json:"query,omitempty"`

	// HubListID is the shared list-registry entry this list publishes its
	// membership to. Empty until the first update pass.
	HubListID string `json:"hub_list_id,omitempty"`

	Members []string   `json:"members,omitempty"`
	Due     *time.Time `json:"due,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required list fields.
func (l *ListRecord) Validate() error {
	if l.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if l.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ItemRecord is a local task record shadowing one remote entity (a bug, a
// revision, an issue, a thread). RemoteKey is the remote system's own
// identifier and is unique per account; it is the deduplication key for
// both list refresh and URL adoption.
type ItemRecord struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	RemoteKey string `json:"remote_key"`

	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
	Icon    string `json:"icon,omitempty"`

	Controller Controller `json:"controller"`

	// TaskID is the shared task record this item is connected to.
	TaskID string `json:"task_id,omitempty"`

	Done *time.Time `json:"done,omitempty"`
	Due  *time.Time `json:"due,omitempty"`

	// HasTask records that the remote entity has exposed synced task
	// state at some point; gates user re-assignment to ControllerPlugin.
	HasTask bool `json:"has_task,omitempty"`

	// FromList records that the item was ever produced by a list; gates
	// user re-assignment to ControllerPluginList.
	FromList bool `json:"from_list,omitempty"`

	// Payload holds the provider-specific fields rendered by the UI,
	// encoded as JSON.
	Payload string `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required item fields.
func (i *ItemRecord) Validate() error {
	if i.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if i.RemoteKey == "" {
		return fmt.Errorf("remote_key is required")
	}
	if !i.Controller.Valid() {
		return fmt.Errorf("invalid controller %q", i.Controller)
	}
	return nil
}
