package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/taskhub"
)

// UpsertItem reconciles one observed remote entity into the local item
// set. It looks up the existing item by natural key first and updates it
// in place; only when none exists is a new item (and its shared task
// record) created. Calling it twice with the same observation is a no-op
// the second time, which is what makes list updates idempotent.
//
// The item record is written in a single row update after every field is
// computed; if the shared task store rejects the propagation the whole
// update is abandoned for this cycle.
func (e *Env) UpsertItem(ctx context.Context, acct *store.AccountRecord, remote RemoteItem, origin ItemOrigin, isTask bool) (*store.ItemRecord, error) {
	if remote.Key == "" {
		return nil, fmt.Errorf("remote item has no natural key")
	}

	payload := "{}"
	if remote.Payload != nil {
		data, err := json.Marshal(remote.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal item payload: %w", err)
		}
		payload = string(data)
	}

	existing, err := e.Store.FirstItem(ctx, store.ItemFilter{
		AccountID: acct.ID,
		RemoteKey: remote.Key,
	})
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return e.createItem(ctx, acct, remote, origin, isTask, payload)
	}
	return e.refreshItem(ctx, existing, remote, origin, payload)
}

// controllerFor decides the controller tag assigned at item creation.
func controllerFor(remote RemoteItem, origin ItemOrigin, isTask bool) store.Controller {
	if remote.Service {
		return store.ControllerService
	}
	if origin == OriginList {
		return store.ControllerPluginList
	}
	if !isTask {
		return store.ControllerNone
	}
	if remote.Closed {
		// Adopting an already-finished entity as a plugin-controlled task
		// is nonsensical; control reverts to the user.
		return store.ControllerManual
	}
	return store.ControllerPlugin
}

func (e *Env) createItem(ctx context.Context, acct *store.AccountRecord, remote RemoteItem, origin ItemOrigin, isTask bool, payload string) (*store.ItemRecord, error) {
	controller := controllerFor(remote, origin, isTask)

	taskID, err := e.Tasks.CreateItem(ctx, acct.UserID, taskhub.TaskFields{
		Summary:    remote.Summary,
		Done:       remote.Done,
		Controller: string(controller),
		URL:        remote.URL,
		Icon:       remote.Icon,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shared task record: %w", err)
	}

	rec := &store.ItemRecord{
		AccountID:  acct.ID,
		RemoteKey:  remote.Key,
		Summary:    remote.Summary,
		URL:        remote.URL,
		Icon:       remote.Icon,
		Controller: controller,
		TaskID:     taskID,
		Done:       remote.Done,
		Due:        remote.Due,
		HasTask:    remote.HasTask,
		FromList:   origin == OriginList,
		Payload:    payload,
	}
	rec, err = e.Store.InsertItem(ctx, rec)
	if err != nil {
		return nil, err
	}

	e.Events.Notify(Event{
		Type:      EventItemUpdate,
		Kind:      acct.Kind,
		AccountID: acct.ID,
		ItemID:    rec.ID,
		Action:    "created",
		Summary:   rec.Summary,
		Time:      time.Now(),
	})
	return rec, nil
}

func (e *Env) refreshItem(ctx context.Context, rec *store.ItemRecord, remote RemoteItem, origin ItemOrigin, payload string) (*store.ItemRecord, error) {
	rec.Summary = remote.Summary
	rec.URL = remote.URL
	rec.Icon = remote.Icon
	rec.Due = remote.Due
	rec.Payload = payload
	rec.HasTask = rec.HasTask || remote.HasTask
	rec.FromList = rec.FromList || origin == OriginList

	// Only the integrations write done-state for non-manual controllers;
	// a manually controlled item keeps whatever the user set.
	syncDone := rec.Controller != store.ControllerManual
	if syncDone {
		rec.Done = remote.Done
	}

	if err := e.Store.UpdateItem(ctx, rec); err != nil {
		return nil, err
	}

	// Propagate the externally observable fields to the shared task
	// record synchronously with the store write.
	if rec.TaskID != "" {
		if err := e.Tasks.SetItemSummary(ctx, rec.TaskID, rec.Summary); err != nil {
			return nil, fmt.Errorf("failed to propagate summary: %w", err)
		}
		if syncDone {
			if err := e.Tasks.SetItemTaskDone(ctx, rec.TaskID, rec.Done); err != nil {
				return nil, fmt.Errorf("failed to propagate done state: %w", err)
			}
		}
	}

	e.Events.Notify(Event{
		Type:      EventItemUpdate,
		AccountID: rec.AccountID,
		ItemID:    rec.ID,
		Action:    "updated",
		Summary:   rec.Summary,
		Time:      time.Now(),
	})
	return rec, nil
}
