package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/taskdock/taskdock/internal/store"
)

// CanUserToggle reports whether a direct user action may flip an item's
// done timestamp. Only manual control permits it; every other controller
// wires done-state exclusively to the integration's update pass.
func CanUserToggle(c store.Controller) bool {
	return c == store.ControllerManual
}

// SetItemDone applies a user-initiated completion toggle. For any
// controller other than Manual the call is rejected with
// ErrControllerForbidden; the done timestamp of such items belongs to the
// integration.
func (e *Engine) SetItemDone(ctx context.Context, itemID string, done bool) error {
	item, err := e.env.Store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !CanUserToggle(item.Controller) {
		return fmt.Errorf("item %s is controlled by %s: %w", itemID, item.Controller, ErrControllerForbidden)
	}

	if done {
		now := time.Now().UTC()
		item.Done = &now
	} else {
		item.Done = nil
	}
	if err := e.env.Store.UpdateItem(ctx, item); err != nil {
		return err
	}
	if item.TaskID != "" {
		if err := e.env.Tasks.SetItemTaskDone(ctx, item.TaskID, item.Done); err != nil {
			return fmt.Errorf("failed to propagate done state: %w", err)
		}
	}
	return nil
}

// SetController re-assigns an item's controller tag. This is a separate
// mutation from toggling completion: it changes who is allowed to write
// the done timestamp without touching the timestamp itself, which is what
// lets a user take over a synced item without losing its history.
//
// Rules: None and Manual are freely selectable; Plugin requires that the
// item has synced remote task state; PluginList requires that the item
// was ever produced by a list; Service is never user-selectable.
func (e *Engine) SetController(ctx context.Context, itemID string, target store.Controller) error {
	if !target.Valid() {
		return fmt.Errorf("unknown controller %q", target)
	}

	item, err := e.env.Store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	switch target {
	case store.ControllerNone, store.ControllerManual:
		// Always allowed.
	case store.ControllerPlugin:
		if !item.HasTask {
			return fmt.Errorf("item %s has no synced remote task state: %w", itemID, ErrControllerForbidden)
		}
	case store.ControllerPluginList:
		if !item.FromList {
			return fmt.Errorf("item %s was never produced by a list: %w", itemID, ErrControllerForbidden)
		}
	case store.ControllerService:
		return fmt.Errorf("service control is assigned only at creation: %w", ErrControllerForbidden)
	}

	item.Controller = target
	return e.env.Store.UpdateItem(ctx, item)
}
