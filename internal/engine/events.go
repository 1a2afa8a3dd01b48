package engine

import "time"

// EventType classifies engine notifications.
type EventType string

const (
	// EventItemUpdate fires when an item is created, refreshed or deleted.
	EventItemUpdate EventType = "item_update"

	// EventListUpdate fires when a list republishes its membership.
	EventListUpdate EventType = "list_update"

	// EventPassComplete fires after a full reconciliation pass for one
	// integration kind.
	EventPassComplete EventType = "pass_complete"

	// EventProblem fires when an account's pass fails.
	EventProblem EventType = "problem"
)

// Event is one engine notification, consumed by the dashboard.
type Event struct {
	Type      EventType `json:"type"`
	Kind      string    `json:"kind,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	ListID    string    `json:"list_id,omitempty"`
	Action    string    `json:"action,omitempty"` // created, updated, deleted
	Summary   string    `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier receives engine events. Implementations must not block; the
// dashboard buffers and drops under pressure.
type Notifier interface {
	Notify(ev Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(Event) {}
