// Package gtasks implements the Google Tasks integration. Remote
// tasklists become lists and their tasks become items. Google Tasks is
// itself the authoritative task system, so created items carry service
// control: done-state always mirrors the remote side.
package gtasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/taskdock/taskdock/internal/engine"
	"github.com/taskdock/taskdock/internal/store"
)

const (
	// Kind is the integration registry key.
	Kind = "gtasks"

	// PageSize is the number of tasks fetched per page.
	PageSize = 100

	// APITimeout bounds every remote call.
	APITimeout = 15 * time.Second

	icon = "google-tasks"
)

// Metadata describes the integration in the registry side table.
var Metadata = engine.Metadata{
	Name:        "Google Tasks",
	Description: "Tasklists and tasks from the Google Tasks API",
}

// credentials is the account credential blob: a stored OAuth token.
type credentials struct {
	Token *oauth2.Token `json:"token"`
}

// Integration implements engine.Integration for Google Tasks.
type Integration struct {
	env  *engine.Env
	opts []option.ClientOption
}

// New constructs the integration against the public API.
func New(env *engine.Env) (engine.Integration, error) {
	return &Integration{env: env}, nil
}

// NewWithOptions constructs the integration with extra client options
// (custom endpoint, injected HTTP client). Used by tests.
func NewWithOptions(env *engine.Env, opts ...option.ClientOption) *Integration {
	return &Integration{env: env, opts: opts}
}

// Kind implements engine.Integration.
func (g *Integration) Kind() string { return Kind }

// UpdateAccount is a no-op: the Tasks API exposes no profile metadata.
func (g *Integration) UpdateAccount(ctx context.Context, acct *store.AccountRecord) error {
	return nil
}

// UpdateList fetches every task in the remote tasklist named by the
// list's query and upserts each one. Hidden and completed tasks are
// included so done-state transitions are observed.
func (g *Integration) UpdateList(ctx context.Context, acct *store.AccountRecord, list *store.ListRecord) ([]string, error) {
	if list.Query == "" {
		return nil, fmt.Errorf("list %q has no tasklist id", list.Name)
	}

	svc, err := g.service(ctx, acct)
	if err != nil {
		return nil, err
	}

	var members []string
	pageToken := ""
	for {
		call := svc.Tasks.List(list.Query).
			MaxResults(PageSize).
			ShowCompleted(true).
			ShowHidden(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, wrapError(err)
		}

		for _, task := range page.Items {
			item, err := g.env.UpsertItem(ctx, acct, g.remoteItem(list.Query, task), engine.OriginList, true)
			if err != nil {
				return nil, err
			}
			members = append(members, item.ID)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return members, nil
}

// UpdateItem refreshes one task. A deleted or missing remote task reports
// ErrRemoteGone.
func (g *Integration) UpdateItem(ctx context.Context, acct *store.AccountRecord, item *store.ItemRecord) error {
	listID, taskID, err := parseKey(item.RemoteKey)
	if err != nil {
		return err
	}

	svc, err := g.service(ctx, acct)
	if err != nil {
		return err
	}

	task, err := svc.Tasks.Get(listID, taskID).Context(ctx).Do()
	if err != nil {
		return wrapError(err)
	}
	if task.Deleted {
		return engine.ErrRemoteGone
	}

	_, err = g.env.UpsertItem(ctx, acct, g.remoteItem(listID, task), engine.OriginDirect, false)
	return err
}

// ItemFromURL never matches: Google Tasks has no stable public per-task
// URL scheme to adopt. The resolution chain moves on to the next
// integration.
func (g *Integration) ItemFromURL(ctx context.Context, userID, rawURL string, isTask bool) (*store.ItemRecord, error) {
	return nil, nil
}

// remoteItem maps an API task onto the engine's observation type.
func (g *Integration) remoteItem(listID string, task *tasks.Task) engine.RemoteItem {
	var done *time.Time
	if task.Completed != nil {
		if t, err := time.Parse(time.RFC3339, *task.Completed); err == nil {
			done = &t
		}
	}
	var due *time.Time
	if task.Due != "" {
		if t, err := time.Parse(time.RFC3339, task.Due); err == nil {
			due = &t
		}
	}

	return engine.RemoteItem{
		Key:     listID + "/" + task.Id,
		Summary: task.Title,
		URL:     task.SelfLink,
		Icon:    icon,
		Done:    done,
		Due:     due,
		Closed:  task.Status == "completed",
		HasTask: true,
		Service: true,
		Payload: map[string]interface{}{
			"status": task.Status,
			"notes":  task.Notes,
		},
	}
}

// service builds an authenticated Tasks client from the account's stored
// token.
func (g *Integration) service(ctx context.Context, acct *store.AccountRecord) (*tasks.Service, error) {
	opts := g.opts
	if len(opts) == 0 {
		var creds credentials
		if acct.Credentials == "" {
			return nil, fmt.Errorf("account %s has no stored token", acct.ID)
		}
		if err := json.Unmarshal([]byte(acct.Credentials), &creds); err != nil {
			return nil, fmt.Errorf("invalid google tasks credentials: %w", err)
		}
		if creds.Token == nil {
			return nil, fmt.Errorf("account %s has no stored token", acct.ID)
		}
		opts = []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(creds.Token))}
	}

	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return svc, nil
}

// wrapError translates API errors, mapping a missing resource onto
// ErrRemoteGone.
func wrapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 404 || apiErr.Code == 410 {
			return engine.ErrRemoteGone
		}
	}
	return fmt.Errorf("google tasks request failed: %w", err)
}

// parseKey splits a natural key of the form tasklistID/taskID.
func parseKey(key string) (listID, taskID string, err error) {
	idx := strings.LastIndexByte(key, '/')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("malformed google tasks item key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}
