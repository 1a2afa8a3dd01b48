// Package github implements the GitHub integration: issues and pull
// requests become tracked items, saved search queries become lists, and
// issue/PR URLs can be adopted directly.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/taskdock/taskdock/internal/engine"
	"github.com/taskdock/taskdock/internal/store"
)

const (
	// Kind is the integration registry key.
	Kind = "github"

	// DefaultAPIBase is the public GitHub REST endpoint.
	DefaultAPIBase = "https://api.github.com"

	// APITimeout bounds every remote call.
	APITimeout = 15 * time.Second

	icon = "github"
)

// Metadata describes the integration in the registry side table.
var Metadata = engine.Metadata{
	Name:        "GitHub",
	Description: "Issues and pull requests from github.com or GitHub Enterprise",
}

// issueURLPattern matches web URLs like
// https://github.com/owner/repo/issues/123 and .../pull/456.
var issueURLPattern = regexp.MustCompile(`^/([^/]+)/([^/]+)/(?:issues|pull)/(\d+)$`)

// credentials is the account credential blob for this integration.
type credentials struct {
	Token string `json:"token"`
}

// Integration implements engine.Integration for GitHub.
type Integration struct {
	env     *engine.Env
	apiBase string
	webHost string
}

// New constructs the integration against the public GitHub API.
func New(env *engine.Env) (engine.Integration, error) {
	return &Integration{env: env, apiBase: DefaultAPIBase, webHost: "github.com"}, nil
}

// NewWithBaseURL constructs the integration against a custom API
// endpoint. Used for GitHub Enterprise and for tests.
func NewWithBaseURL(env *engine.Env, apiBase, webHost string) *Integration {
	return &Integration{env: env, apiBase: strings.TrimRight(apiBase, "/"), webHost: webHost}
}

// Kind implements engine.Integration.
func (g *Integration) Kind() string { return Kind }

// apiUser is the GET /user response subset we read.
type apiUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// apiIssue is the issue/PR response subset we read. The search API and
// the single-issue API share this shape.
type apiIssue struct {
	Number        int        `json:"number"`
	Title         string     `json:"title"`
	State         string     `json:"state"`
	HTMLURL       string     `json:"html_url"`
	RepositoryURL string     `json:"repository_url"`
	ClosedAt      *time.Time `json:"closed_at"`
	PullRequest   *struct{}  `json:"pull_request,omitempty"`
	Assignee      *apiUser   `json:"assignee,omitempty"`
}

type searchResult struct {
	Items []apiIssue `json:"items"`
}

// itemPayload is the provider-specific field set rendered by the UI.
type itemPayload struct {
	Repo     string `json:"repo"`
	Number   int    `json:"number"`
	State    string `json:"state"`
	IsPull   bool   `json:"is_pull,omitempty"`
	Assignee string `json:"assignee,omitempty"`
}

// UpdateAccount refreshes the display name and avatar from GET /user.
func (g *Integration) UpdateAccount(ctx context.Context, acct *store.AccountRecord) error {
	var user apiUser
	if err := g.get(ctx, acct, "/user", &user); err != nil {
		return err
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	acct.DisplayName = name
	acct.Icon = user.AvatarURL
	return g.env.Store.UpdateAccount(ctx, acct)
}

// UpdateList runs the list's saved search query and upserts every result.
// Result order is the remote search order.
func (g *Integration) UpdateList(ctx context.Context, acct *store.AccountRecord, list *store.ListRecord) ([]string, error) {
	if list.Query == "" {
		return nil, fmt.Errorf("list %q has no search query", list.Name)
	}

	path := "/search/issues?q=" + url.QueryEscape(list.Query)
	var result searchResult
	if err := g.get(ctx, acct, path, &result); err != nil {
		return nil, err
	}

	members := make([]string, 0, len(result.Items))
	for _, issue := range result.Items {
		remote, err := g.remoteItem(issue)
		if err != nil {
			return nil, err
		}
		item, err := g.env.UpsertItem(ctx, acct, remote, engine.OriginList, true)
		if err != nil {
			return nil, err
		}
		members = append(members, item.ID)
	}
	return members, nil
}

// UpdateItem refreshes a single issue or pull request. A 404 or 410 means
// the remote entity is gone.
func (g *Integration) UpdateItem(ctx context.Context, acct *store.AccountRecord, item *store.ItemRecord) error {
	owner, repo, number, err := parseKey(item.RemoteKey)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/repos/%s/%s/issues/%s", owner, repo, number)
	var issue apiIssue
	if err := g.get(ctx, acct, path, &issue); err != nil {
		return err
	}

	remote, err := g.remoteItem(issue)
	if err != nil {
		return err
	}
	// The single-issue endpoint omits repository_url context we already
	// know from the key.
	remote.Key = item.RemoteKey
	_, err = g.env.UpsertItem(ctx, acct, remote, engine.OriginDirect, false)
	return err
}

// ItemFromURL adopts a pasted issue or pull request URL. URLs outside
// this integration's host resolve to (nil, nil).
func (g *Integration) ItemFromURL(ctx context.Context, userID, rawURL string, isTask bool) (*store.ItemRecord, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host != g.webHost {
		return nil, nil
	}
	m := issueURLPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, nil
	}
	owner, repo, number := m[1], m[2], m[3]

	acct, err := g.env.Store.FirstAccount(ctx, store.AccountFilter{UserID: userID, Kind: Kind})
	if err != nil {
		return nil, err
	}
	if acct == nil {
		// URL looks like ours but the user has no GitHub account; let the
		// chain continue.
		return nil, nil
	}

	path := fmt.Sprintf("/repos/%s/%s/issues/%s", owner, repo, number)
	var issue apiIssue
	if err := g.get(ctx, acct, path, &issue); err != nil {
		if errors.Is(err, engine.ErrRemoteGone) {
			// A dead link is an unresolvable URL, not a failure.
			return nil, nil
		}
		return nil, err
	}

	remote, err := g.remoteItem(issue)
	if err != nil {
		return nil, err
	}
	remote.Key = fmt.Sprintf("%s/%s#%s", owner, repo, number)
	return g.env.UpsertItem(ctx, acct, remote, engine.OriginURL, isTask)
}

// remoteItem maps an API issue onto the engine's observation type.
func (g *Integration) remoteItem(issue apiIssue) (engine.RemoteItem, error) {
	repo := repoFromURL(issue.RepositoryURL)
	key := fmt.Sprintf("%s#%d", repo, issue.Number)
	if repo == "" {
		key = ""
	}

	payload := itemPayload{
		Repo:   repo,
		Number: issue.Number,
		State:  issue.State,
		IsPull: issue.PullRequest != nil,
	}
	if issue.Assignee != nil {
		payload.Assignee = issue.Assignee.Login
	}

	return engine.RemoteItem{
		Key:     key,
		Summary: issue.Title,
		URL:     issue.HTMLURL,
		Icon:    icon,
		Done:    issue.ClosedAt,
		Closed:  issue.State == "closed",
		HasTask: true,
		Payload: payload,
	}, nil
}

// get performs an authenticated GET against the API and decodes JSON.
func (g *Integration) get(ctx context.Context, acct *store.AccountRecord, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var creds credentials
	if acct.Credentials != "" {
		if err := json.Unmarshal([]byte(acct.Credentials), &creds); err != nil {
			return fmt.Errorf("invalid github credentials: %w", err)
		}
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return engine.ErrRemoteGone
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("github returned %s for %s", resp.Status, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode github response: %w", err)
	}
	return nil
}

// parseKey splits a natural key of the form owner/repo#number.
func parseKey(key string) (owner, repo, number string, err error) {
	slash := strings.IndexByte(key, '/')
	hash := strings.LastIndexByte(key, '#')
	if slash < 0 || hash < slash {
		return "", "", "", fmt.Errorf("malformed github item key %q", key)
	}
	return key[:slash], key[slash+1 : hash], key[hash+1:], nil
}

// repoFromURL extracts owner/repo from an API repository URL like
// https://api.github.com/repos/owner/repo.
func repoFromURL(repositoryURL string) string {
	const marker = "/repos/"
	idx := strings.Index(repositoryURL, marker)
	if idx < 0 {
		return ""
	}
	return repositoryURL[idx+len(marker):]
}
