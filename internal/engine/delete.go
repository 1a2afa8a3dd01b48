package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskdock/taskdock/internal/store"
)

// DeleteItem removes a local item: the shared task record is disconnected
// first, carrying the last-known URL and icon for display, then the item
// row is deleted.
func (e *Engine) DeleteItem(ctx context.Context, itemID string) error {
	item, err := e.env.Store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	if item.TaskID != "" {
		if err := e.env.Tasks.DisconnectItem(ctx, item.TaskID, item.URL, item.Icon); err != nil {
			e.env.Logger.Printf("Warning: failed to disconnect task %s: %v", item.TaskID, err)
		}
	}
	if err := e.env.Store.DeleteItem(ctx, item.ID); err != nil {
		return err
	}

	e.env.Events.Notify(Event{
		Type:      EventItemUpdate,
		AccountID: item.AccountID,
		ItemID:    item.ID,
		Action:    "deleted",
		Summary:   item.Summary,
		Time:      time.Now(),
	})
	return nil
}

// DeleteList removes a list's tracking record and its shared registry
// entry. Member items are NOT touched; they become orphans and are
// refreshed (or individually removed) on the next reconciliation cycle.
func (e *Engine) DeleteList(ctx context.Context, listID string) error {
	list, err := e.env.Store.GetList(ctx, listID)
	if err != nil {
		return err
	}

	if list.HubListID != "" {
		if err := e.env.Lists.DeleteList(ctx, list.HubListID); err != nil {
			e.env.Logger.Printf("Warning: failed to remove registry entry %s: %v", list.HubListID, err)
		}
	}
	return e.env.Store.DeleteList(ctx, list.ID)
}

// DeleteAccount cascades: every list is refreshed once more and deleted,
// capturing the union of item ids the lists reported as seen; every item
// outside that set is refreshed individually before deletion, so a final
// synced state (say, a bug closing as resolved) is pushed instead of the
// item being silently dropped. Finally every item and the account record
// itself are removed.
//
// List-driven items are refreshed via their lists because that path is
// batched and cheaper than one fetch per item.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	acct, err := e.env.Store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	integ, err := e.integration(acct.Kind)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	lists, err := e.env.Store.ListLists(ctx, acct.ID)
	if err != nil {
		return err
	}
	for _, list := range lists {
		members, err := e.UpdateList(ctx, acct, list)
		if err != nil {
			// A final refresh is best effort during teardown.
			e.env.Logger.Printf("Warning: final update of list %q failed: %v", list.Name, err)
		}
		for _, id := range members {
			seen[id] = true
		}
		if err := e.DeleteList(ctx, list.ID); err != nil {
			return fmt.Errorf("failed to delete list %q: %w", list.Name, err)
		}
	}

	items, err := e.env.Store.ListItems(ctx, store.ItemFilter{AccountID: acct.ID})
	if err != nil {
		return err
	}
	for _, item := range items {
		if !seen[item.ID] {
			if err := integ.UpdateItem(ctx, acct, item); err != nil && !errors.Is(err, ErrRemoteGone) {
				e.env.Logger.Printf("Warning: final update of item %s failed: %v", item.ID, err)
			}
		}
		if err := e.DeleteItem(ctx, item.ID); err != nil {
			return fmt.Errorf("failed to delete item %s: %w", item.ID, err)
		}
	}

	e.problems.Clear(acct.ID)
	return e.env.Store.DeleteAccount(ctx, acct.ID)
}
