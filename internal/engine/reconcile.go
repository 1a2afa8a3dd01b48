package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/taskhub"
)

// ReconcileKind runs one reconciliation pass over every stored account of
// the given integration kind. A failure inside one account's pass is
// recorded against that account and never aborts the others; the
// returned error is non-nil only when the account set itself cannot be
// read.
func (e *Engine) ReconcileKind(ctx context.Context, kind string) error {
	accts, err := e.env.Store.ListAccounts(ctx, store.AccountFilter{Kind: kind})
	if err != nil {
		return fmt.Errorf("failed to list %s accounts: %w", kind, err)
	}

	start := time.Now()
	failed := 0
	for _, acct := range accts {
		if err := e.ReconcileAccount(ctx, acct); err != nil {
			failed++
			e.env.Logger.Printf("Account %s (%s) skipped this cycle: %v", acct.ID, kind, err)
			e.problems.Record(acct, err)
			e.env.Events.Notify(Event{
				Type:      EventProblem,
				Kind:      kind,
				AccountID: acct.ID,
				Error:     err.Error(),
				Time:      time.Now(),
			})
			continue
		}
		e.problems.Clear(acct.ID)
	}

	e.env.Events.Notify(Event{
		Type:    EventPassComplete,
		Kind:    kind,
		Summary: fmt.Sprintf("%d accounts, %d failed, %v", len(accts), failed, time.Since(start).Round(time.Millisecond)),
		Time:    time.Now(),
	})
	return nil
}

// ReconcileAccount runs one consistent update pass for a single account:
//
//  1. Refresh account metadata.
//  2. Update every list, accumulating the union of member item ids into a
//     seen set. List updates are idempotent; duplicates cannot be created.
//  3. Update every item the seen set did not cover ("orphans") directly,
//     so each tracked item is refreshed exactly once per cycle.
//
// An item update that reports ErrRemoteGone deletes the item instead of
// leaving stale state. Any provider failure aborts this account's pass;
// the next scheduled cycle retries from scratch.
func (e *Engine) ReconcileAccount(ctx context.Context, acct *store.AccountRecord) error {
	integ, err := e.integration(acct.Kind)
	if err != nil {
		return err
	}

	if err := integ.UpdateAccount(ctx, acct); err != nil {
		return fmt.Errorf("account refresh failed: %w", err)
	}

	lists, err := e.env.Store.ListLists(ctx, acct.ID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, list := range lists {
		members, err := e.UpdateList(ctx, acct, list)
		if err != nil {
			return fmt.Errorf("list %q update failed: %w", list.Name, err)
		}
		for _, id := range members {
			seen[id] = true
		}
	}

	items, err := e.env.Store.ListItems(ctx, store.ItemFilter{AccountID: acct.ID})
	if err != nil {
		return err
	}
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		if err := integ.UpdateItem(ctx, acct, item); err != nil {
			if errors.Is(err, ErrRemoteGone) {
				if err := e.DeleteItem(ctx, item.ID); err != nil {
					return fmt.Errorf("failed to delete vanished item %s: %w", item.ID, err)
				}
				continue
			}
			return fmt.Errorf("item %s update failed: %w", item.ID, err)
		}
	}

	return nil
}

// UpdateList runs one list's remote query through its integration and
// unconditionally republishes the resulting membership and display
// metadata to the shared list registry. Returns the member item ids.
func (e *Engine) UpdateList(ctx context.Context, acct *store.AccountRecord, list *store.ListRecord) ([]string, error) {
	integ, err := e.integration(acct.Kind)
	if err != nil {
		return nil, err
	}

	members, err := integ.UpdateList(ctx, acct, list)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}

	if list.HubListID == "" {
		hubID, err := e.env.Lists.AddList(ctx, acct.UserID, list.Name, list.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to register list %q: %w", list.Name, err)
		}
		list.HubListID = hubID
	}

	// Membership in the registry is expressed as shared task ids, not
	// local item ids.
	taskIDs := make([]string, 0, len(members))
	for _, id := range members {
		item, err := e.env.Store.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if item.TaskID != "" {
			taskIDs = append(taskIDs, item.TaskID)
		}
	}

	update := taskhub.ListUpdate{
		Name:  &list.Name,
		URL:   &list.URL,
		Items: taskIDs,
	}
	if list.Due != nil {
		update.Due = list.Due
	}
	if err := e.env.Lists.UpdateList(ctx, list.HubListID, update); err != nil {
		return nil, fmt.Errorf("failed to republish list %q: %w", list.Name, err)
	}

	list.Members = members
	if err := e.env.Store.UpdateList(ctx, list); err != nil {
		return nil, err
	}

	e.env.Events.Notify(Event{
		Type:      EventListUpdate,
		Kind:      acct.Kind,
		AccountID: acct.ID,
		ListID:    list.ID,
		Summary:   fmt.Sprintf("%s: %d items", list.Name, len(members)),
		Time:      time.Now(),
	})
	return members, nil
}
