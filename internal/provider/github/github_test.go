package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskdock/taskdock/internal/engine"
	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/taskhub"
)

// fixture wires the integration against a fake GitHub API.
type fixture struct {
	integ *Integration
	env   *engine.Env
	st    *store.Store
	acct  *store.AccountRecord
}

func setup(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	ctx := context.Background()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	hub := taskhub.New(st.RawDB(), nil)
	if err := hub.InitSchema(ctx); err != nil {
		t.Fatalf("hub InitSchema() failed: %v", err)
	}

	env := engine.NewEnv(st, hub, hub, nil, nil)
	integ := NewWithBaseURL(env, server.URL, "github.test")

	acct, err := st.InsertAccount(ctx, &store.AccountRecord{
		UserID:      "u1",
		Kind:        Kind,
		Credentials: `{"token":"tok_test"}`,
	})
	if err != nil {
		t.Fatalf("InsertAccount() failed: %v", err)
	}

	return &fixture{integ: integ, env: env, st: st, acct: acct}
}

func issueJSON(repo string, number int, title, state string, closedAt string) string {
	closed := "null"
	if closedAt != "" {
		closed = fmt.Sprintf("%q", closedAt)
	}
	return fmt.Sprintf(`{
		"number": %d,
		"title": %q,
		"state": %q,
		"html_url": "https://github.test/%s/issues/%d",
		"repository_url": "https://api.github.test/repos/%s",
		"closed_at": %s
	}`, number, title, state, repo, number, repo, closed)
}

func TestUpdateAccount_SetsIdentity(t *testing.T) {
	var gotAuth string
	f := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"login":"octocat","name":"The Octocat","avatar_url":"https://github.test/avatar.png"}`)
	}))

	ctx := context.Background()
	if err := f.integ.UpdateAccount(ctx, f.acct); err != nil {
		t.Fatalf("UpdateAccount() failed: %v", err)
	}

	if gotAuth != "Bearer tok_test" {
		t.Errorf("Authorization = %q, want the stored token", gotAuth)
	}

	acct, err := f.st.GetAccount(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("GetAccount() failed: %v", err)
	}
	if acct.DisplayName != "The Octocat" {
		t.Errorf("DisplayName = %q, want %q", acct.DisplayName, "The Octocat")
	}
	if acct.Icon != "https://github.test/avatar.png" {
		t.Errorf("Icon = %q, want the avatar url", acct.Icon)
	}
}

func TestUpdateAccount_LoginFallback(t *testing.T) {
	f := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"login":"octocat","name":""}`)
	}))

	ctx := context.Background()
	if err := f.integ.UpdateAccount(ctx, f.acct); err != nil {
		t.Fatalf("UpdateAccount() failed: %v", err)
	}
	acct, _ := f.st.GetAccount(ctx, f.acct.ID)
	if acct.DisplayName != "octocat" {
		t.Errorf("DisplayName = %q, want the login fallback", acct.DisplayName)
	}
}

func TestUpdateList_UpsertsSearchResults(t *testing.T) {
	f := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/issues" {
			http.NotFound(w, r)
			return
		}
		if q := r.URL.Query().Get("q"); q != "assignee:octocat is:open" {
			t.Errorf("query = %q, want the list query", q)
		}
		fmt.Fprintf(w, `{"items":[%s,%s]}`,
			issueJSON("org/repo", 1, "First bug", "open", ""),
			issueJSON("org/repo", 2, "Second bug", "open", ""))
	}))

	ctx := context.Background()
	list, err := f.st.InsertList(ctx, &store.ListRecord{
		AccountID: f.acct.ID,
		Name:      "assigned",
		Query:     "assignee:octocat is:open",
	})
	if err != nil {
		t.Fatalf("InsertList() failed: %v", err)
	}

	members, err := f.integ.UpdateList(ctx, f.acct, list)
	if err != nil {
		t.Fatalf("UpdateList() failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}

	item, err := f.st.FirstItem(ctx, store.ItemFilter{AccountID: f.acct.ID, RemoteKey: "org/repo#1"})
	if err != nil {
		t.Fatalf("FirstItem() failed: %v", err)
	}
	if item == nil {
		t.Fatal("search result was not upserted")
	}
	if item.Summary != "First bug" {
		t.Errorf("Summary = %q, want %q", item.Summary, "First bug")
	}
	if item.Controller != store.ControllerPluginList {
		t.Errorf("Controller = %q, want plugin_list", item.Controller)
	}
}

func TestUpdateList_RequiresQuery(t *testing.T) {
	f := setup(t, http.NotFoundHandler())
	list := &store.ListRecord{AccountID: f.acct.ID, Name: "empty"}
	if _, err := f.integ.UpdateList(context.Background(), f.acct, list); err == nil {
		t.Error("UpdateList() accepted a list without a query")
	}
}

func TestUpdateItem_RefreshesFromIssueEndpoint(t *testing.T) {
	closedAt := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	f := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/org/repo/issues/7" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, issueJSON("org/repo", 7, "Now closed", "closed", closedAt.Format(time.RFC3339)))
	}))

	ctx := context.Background()
	item, err := f.env.UpsertItem(ctx, f.acct, engine.RemoteItem{
		Key:     "org/repo#7",
		Summary: "Still open",
	}, engine.OriginList, true)
	if err != nil {
		t.Fatalf("UpsertItem() failed: %v", err)
	}

	if err := f.integ.UpdateItem(ctx, f.acct, item); err != nil {
		t.Fatalf("UpdateItem() failed: %v", err)
	}

	got, err := f.st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem() failed: %v", err)
	}
	if got.Summary != "Now closed" {
		t.Errorf("Summary = %q, want the refreshed title", got.Summary)
	}
	if got.Done == nil || !got.Done.Equal(closedAt) {
		t.Errorf("Done = %v, want %v", got.Done, closedAt)
	}
}

func TestUpdateItem_GoneOn404(t *testing.T) {
	f := setup(t, http.NotFoundHandler())

	item := &store.ItemRecord{AccountID: f.acct.ID, RemoteKey: "org/repo#404", Controller: store.ControllerPlugin}
	err := f.integ.UpdateItem(context.Background(), f.acct, item)
	if !errors.Is(err, engine.ErrRemoteGone) {
		t.Errorf("UpdateItem() error = %v, want ErrRemoteGone", err)
	}
}

func TestItemFromURL_AdoptsIssue(t *testing.T) {
	f := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/org/repo/issues/9" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, issueJSON("org/repo", 9, "Pasted issue", "open", ""))
	}))

	ctx := context.Background()
	item, err := f.integ.ItemFromURL(ctx, "u1", "https://github.test/org/repo/issues/9", true)
	if err != nil {
		t.Fatalf("ItemFromURL() failed: %v", err)
	}
	if item == nil {
		t.Fatal("ItemFromURL() = nil, want an adopted item")
	}
	if item.RemoteKey != "org/repo#9" {
		t.Errorf("RemoteKey = %q, want %q", item.RemoteKey, "org/repo#9")
	}
	if item.Controller != store.ControllerPlugin {
		t.Errorf("Controller = %q, want plugin for an open task adoption", item.Controller)
	}

	// Pasting again yields the same item.
	again, err := f.integ.ItemFromURL(ctx, "u1", "https://github.test/org/repo/issues/9", true)
	if err != nil {
		t.Fatalf("ItemFromURL() failed: %v", err)
	}
	if again == nil || again.ID != item.ID {
		t.Errorf("second adoption = %+v, want the same item %s", again, item.ID)
	}
}

func TestItemFromURL_ForeignHost(t *testing.T) {
	f := setup(t, http.NotFoundHandler())
	item, err := f.integ.ItemFromURL(context.Background(), "u1", "https://elsewhere.test/org/repo/issues/9", false)
	if err != nil || item != nil {
		t.Errorf("ItemFromURL() = (%+v, %v), want (nil, nil)", item, err)
	}
}

func TestItemFromURL_NonIssuePath(t *testing.T) {
	f := setup(t, http.NotFoundHandler())
	item, err := f.integ.ItemFromURL(context.Background(), "u1", "https://github.test/org/repo/wiki", false)
	if err != nil || item != nil {
		t.Errorf("ItemFromURL() = (%+v, %v), want (nil, nil)", item, err)
	}
}

func TestItemFromURL_DeadLink(t *testing.T) {
	f := setup(t, http.NotFoundHandler())
	item, err := f.integ.ItemFromURL(context.Background(), "u1", "https://github.test/org/repo/issues/410", false)
	if err != nil || item != nil {
		t.Errorf("dead link = (%+v, %v), want (nil, nil)", item, err)
	}
}

func TestParseKey(t *testing.T) {
	owner, repo, number, err := parseKey("org/repo#42")
	if err != nil {
		t.Fatalf("parseKey() failed: %v", err)
	}
	if owner != "org" || repo != "repo" || number != "42" {
		t.Errorf("parseKey() = %q/%q#%q", owner, repo, number)
	}

	if _, _, _, err := parseKey("garbage"); err == nil {
		t.Error("parseKey() accepted a malformed key")
	}
}
