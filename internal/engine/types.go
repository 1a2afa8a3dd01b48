// Package engine implements the external-integration synchronization
// core: the provider registry, the per-account reconciliation driver, the
// URL resolution chain, the task-controller state machine, and the
// per-account problem surface.
//
// Every integration (bug trackers, code review, mail search, remote task
// services) plugs in through the Integration interface and a string-keyed
// registry; the engine supplies the lifecycle the integrations share:
// idempotent item upsert keyed by the remote natural key, membership
// republishing to the shared list registry, orphan refresh, and cascading
// deletes that push a final synced state before records are removed.
package engine

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/taskhub"
)

// ErrRemoteGone is returned by Integration.UpdateItem when the remote
// entity no longer exists. The driver reacts by deleting the local item
// and disconnecting its shared task record.
var ErrRemoteGone = errors.New("engine: remote entity no longer exists")

// ErrControllerForbidden is returned when a user-initiated mutation is not
// permitted by the item's controller tag.
var ErrControllerForbidden = errors.New("engine: controller does not permit this change")

// Metadata is the static descriptive metadata an integration registers
// alongside its factory. The engine keeps it in a side table keyed by
// kind; nothing is derived from the integration's dynamic type.
type Metadata struct {
	Name        string
	Description string
}

// ItemOrigin says how an item came to be observed. It decides the
// controller tag assigned at creation.
type ItemOrigin int

const (
	// OriginList marks items produced by a list's membership.
	OriginList ItemOrigin = iota
	// OriginDirect marks items refreshed individually by the driver.
	OriginDirect
	// OriginURL marks items adopted from a user-pasted URL.
	OriginURL
)

// RemoteItem is one remote entity as observed by an integration. The
// engine turns it into a local item record, deduplicating on Key.
type RemoteItem struct {
	// Key is the remote system's own identifier (the natural key),
	// unique within the owning account.
	Key string

	Summary string
	URL     string
	Icon    string

	// Done is the remote completion timestamp, nil while open. Ignored
	// for items under manual control.
	Done *time.Time
	Due  *time.Time

	// Closed reports the remote entity is in a terminal state. Adopting a
	// closed entity as a task hands control to the user instead of the
	// plugin.
	Closed bool

	// HasTask reports the remote entity carries synced task state.
	HasTask bool

	// Service forces ControllerService at creation. Only integrations
	// backed by an authoritative external done-state set this.
	Service bool

	// Payload holds the provider-specific fields rendered by the UI; it
	// is JSON-marshaled into the item record.
	Payload interface{}
}

// Integration is the capability set every provider implements. Provider
// fetch failures must be returned, not swallowed; the driver isolates
// them per account.
type Integration interface {
	// Kind returns the registry key for this integration.
	Kind() string

	// UpdateAccount refreshes account-level metadata (display name,
	// avatar). May be a no-op.
	UpdateAccount(ctx context.Context, acct *store.AccountRecord) error

	// UpdateList runs the list's remote query, upserts every member item
	// through Env.UpsertItem, and returns member item ids in remote
	// order. Must be idempotent: running it twice back-to-back must not
	// create duplicate items.
	UpdateList(ctx context.Context, acct *store.AccountRecord, list *store.ListRecord) ([]string, error)

	// UpdateItem refreshes one item from remote state, or returns
	// ErrRemoteGone when the remote entity has disappeared.
	UpdateItem(ctx context.Context, acct *store.AccountRecord, item *store.ItemRecord) error

	// ItemFromURL resolves a user-pasted URL to an item, creating it if
	// the URL matches this integration and no item exists yet.
	// Returns (nil, nil) when the URL does not belong to this
	// integration; that is a normal negative result.
	ItemFromURL(ctx context.Context, userID, rawURL string, isTask bool) (*store.ItemRecord, error)
}

// TaskStore is the shared task store contract the engine publishes
// externally observable item fields into. Satisfied by *taskhub.Hub.
type TaskStore interface {
	CreateItem(ctx context.Context, userID string, f taskhub.TaskFields) (string, error)
	SetItemSummary(ctx context.Context, id, summary string) error
	SetItemTaskDone(ctx context.Context, id string, done *time.Time) error
	DisconnectItem(ctx context.Context, id, lastURL, lastIcon string) error
	DeleteItem(ctx context.Context, id string) error
}

// ListRegistry is the shared list registry contract lists republish their
// membership to every cycle. Satisfied by *taskhub.Hub.
type ListRegistry interface {
	AddList(ctx context.Context, userID, name, url string) (string, error)
	UpdateList(ctx context.Context, id string, u taskhub.ListUpdate) error
	DeleteList(ctx context.Context, id string) error
}

// Env bundles the collaborators handed to every integration at
// construction time. There are no package-level singletons; one Env is
// built at plugin-initialization time and passed by reference.
type Env struct {
	Store  *store.Store
	Tasks  TaskStore
	Lists  ListRegistry
	Logger *log.Logger
	Events Notifier
}

// NewEnv fills in safe defaults for optional collaborators.
func NewEnv(st *store.Store, tasks TaskStore, lists ListRegistry, logger *log.Logger, events Notifier) *Env {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if events == nil {
		events = NopNotifier{}
	}
	return &Env{Store: st, Tasks: tasks, Lists: lists, Logger: logger, Events: events}
}
