// Package migrate moves sync engine state in and out of the database:
// snapshot export for backup/inspection and bulk account provisioning
// from a TOML file.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/taskdock/taskdock/internal/store"
)

// Snapshot is a full dump of one user's sync engine records.
type Snapshot struct {
	Accounts []*store.AccountRecord `json:"accounts" yaml:"accounts"`
	Lists    []*store.ListRecord    `json:"lists" yaml:"lists"`
	Items    []*store.ItemRecord    `json:"items" yaml:"items"`
}

// Export collects every account, list and item belonging to userID.
func Export(ctx context.Context, st *store.Store, userID string) (*Snapshot, error) {
	accts, err := st.ListAccounts(ctx, store.AccountFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Accounts: accts}
	for _, acct := range accts {
		lists, err := st.ListLists(ctx, acct.ID)
		if err != nil {
			return nil, err
		}
		snap.Lists = append(snap.Lists, lists...)

		items, err := st.ListItems(ctx, store.ItemFilter{AccountID: acct.ID})
		if err != nil {
			return nil, err
		}
		snap.Items = append(snap.Items, items...)
	}
	return snap, nil
}

// record is one JSONL line: a type tag plus the record body.
type record struct {
	Type    string               `json:"type"`
	Account *store.AccountRecord `json:"account,omitempty"`
	List    *store.ListRecord    `json:"list,omitempty"`
	Item    *store.ItemRecord    `json:"item,omitempty"`
}

// WriteJSONL streams the snapshot as one record per line, accounts
// first so a future import can restore ownership order.
func WriteJSONL(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	for _, a := range snap.Accounts {
		if err := enc.Encode(record{Type: "account", Account: a}); err != nil {
			return fmt.Errorf("failed to encode account: %w", err)
		}
	}
	for _, l := range snap.Lists {
		if err := enc.Encode(record{Type: "list", List: l}); err != nil {
			return fmt.Errorf("failed to encode list: %w", err)
		}
	}
	for _, i := range snap.Items {
		if err := enc.Encode(record{Type: "item", Item: i}); err != nil {
			return fmt.Errorf("failed to encode item: %w", err)
		}
	}
	return nil
}

// ReadJSONL parses a snapshot written by WriteJSONL. Unknown record
// types are skipped so newer exports stay readable.
func ReadJSONL(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		switch rec.Type {
		case "account":
			snap.Accounts = append(snap.Accounts, rec.Account)
		case "list":
			snap.Lists = append(snap.Lists, rec.List)
		case "item":
			snap.Items = append(snap.Items, rec.Item)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return snap, nil
}

// WriteYAML writes the snapshot as one YAML document.
func WriteYAML(w io.Writer, snap *Snapshot) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// AccountSeed is one entry of a TOML provisioning file:
//
//	[[accounts]]
//	kind = "github"
//	display_name = "work"
//	token = "ghp_..."
type AccountSeed struct {
	Kind        string `toml:"kind"`
	DisplayName string `toml:"display_name"`
	ServerURL   string `toml:"server_url"`
	Token       string `toml:"token"`
}

type seedFile struct {
	Accounts []AccountSeed `toml:"accounts"`
}

// ReadAccountSeeds parses a TOML provisioning file.
func ReadAccountSeeds(path string) ([]AccountSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var f seedFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid provisioning file %s: %w", path, err)
	}
	for i, seed := range f.Accounts {
		if seed.Kind == "" {
			return nil, fmt.Errorf("%s: account %d has no kind", path, i+1)
		}
	}
	return f.Accounts, nil
}

// SeedAccounts inserts provisioned accounts for userID. Existing
// accounts with the same kind and display name are skipped, so running
// an import twice is safe.
func SeedAccounts(ctx context.Context, st *store.Store, userID string, seeds []AccountSeed) (created int, err error) {
	for _, seed := range seeds {
		existing, err := st.ListAccounts(ctx, store.AccountFilter{UserID: userID, Kind: seed.Kind})
		if err != nil {
			return created, err
		}
		dup := false
		for _, acct := range existing {
			if acct.DisplayName == seed.DisplayName {
				dup = true
				break
			}
		}
		if dup {
			continue
		}

		creds, err := json.Marshal(map[string]string{"token": seed.Token})
		if err != nil {
			return created, fmt.Errorf("failed to encode credentials: %w", err)
		}
		_, err = st.InsertAccount(ctx, &store.AccountRecord{
			UserID:      userID,
			Kind:        seed.Kind,
			DisplayName: seed.DisplayName,
			ServerURL:   seed.ServerURL,
			Credentials: string(creds),
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
