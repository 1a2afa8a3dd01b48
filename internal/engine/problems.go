package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/taskdock/taskdock/internal/store"
)

// Problem describes a persistent per-account failure surfaced to the
// user. Transient failures are recorded too, but a clean pass clears the
// entry, so only accounts that keep failing stay listed.
type Problem struct {
	AccountID   string    `json:"account_id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	URL         string    `json:"url,omitempty"`
	Count       int       `json:"count"`
	LastSeen    time.Time `json:"last_seen"`
}

// Problems tracks reconciliation failures per account. It is an explicit
// object owned by the engine, not a process-wide singleton, and is safe
// for concurrent use by parallel account passes.
type Problems struct {
	mu        sync.Mutex
	byAccount map[string]*Problem
}

// NewProblems returns an empty problem table.
func NewProblems() *Problems {
	return &Problems{byAccount: make(map[string]*Problem)}
}

// Record notes a failed pass for an account, bumping the failure count if
// one is already recorded.
func (p *Problems) Record(acct *store.AccountRecord, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.byAccount[acct.ID]; ok {
		existing.Description = err.Error()
		existing.Count++
		existing.LastSeen = time.Now()
		return
	}
	p.byAccount[acct.ID] = &Problem{
		AccountID:   acct.ID,
		UserID:      acct.UserID,
		Kind:        acct.Kind,
		Description: err.Error(),
		URL:         acct.ServerURL,
		Count:       1,
		LastSeen:    time.Now(),
	}
}

// Clear removes the entry for an account after a clean pass.
func (p *Problems) Clear(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byAccount, accountID)
}

// ForUser returns the problems affecting one user's accounts, most
// recent first.
func (p *Problems) ForUser(userID string) []Problem {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Problem
	for _, prob := range p.byAccount {
		if prob.UserID == userID {
			out = append(out, *prob)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// All returns every recorded problem, most recent first.
func (p *Problems) All() []Problem {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Problem, 0, len(p.byAccount))
	for _, prob := range p.byAccount {
		out = append(out, *prob)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}
