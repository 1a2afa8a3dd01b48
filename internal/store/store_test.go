package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// testStore opens a fresh database with the schema applied.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return st
}

func testAccount(t *testing.T, st *Store) *AccountRecord {
	t.Helper()
	acct, err := st.InsertAccount(context.Background(), &AccountRecord{
		UserID:      "u1",
		Kind:        "github",
		DisplayName: "work",
	})
	if err != nil {
		t.Fatalf("InsertAccount() failed: %v", err)
	}
	return acct
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.InitSchema(context.Background()); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

// TestInitSchema_Tables checks that all tables exist
func TestInitSchema_Tables(t *testing.T) {
	st := testStore(t)

	tables := []string{"accounts", "ext_lists", "ext_items"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := st.RawDB().QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

// TestInsertAccount_AssignsID tests that ids are generated when absent
func TestInsertAccount_AssignsID(t *testing.T) {
	st := testStore(t)
	acct := testAccount(t, st)

	if acct.ID == "" {
		t.Error("InsertAccount() did not assign an id")
	}
	if acct.CreatedAt.IsZero() {
		t.Error("InsertAccount() did not set created_at")
	}
}

func TestInsertAccount_RequiresUser(t *testing.T) {
	st := testStore(t)
	_, err := st.InsertAccount(context.Background(), &AccountRecord{Kind: "github"})
	if err == nil {
		t.Error("InsertAccount() accepted an account without a user")
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	st := testStore(t)
	_, err := st.GetAccount(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateAccount_RoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	acct.DisplayName = "renamed"
	acct.Icon = "https://example.com/avatar.png"
	if err := st.UpdateAccount(ctx, acct); err != nil {
		t.Fatalf("UpdateAccount() failed: %v", err)
	}

	got, err := st.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetAccount() failed: %v", err)
	}
	if got.DisplayName != "renamed" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "renamed")
	}
	if got.Icon != acct.Icon {
		t.Errorf("Icon = %q, want %q", got.Icon, acct.Icon)
	}
}

func TestListAccounts_FilterByKind(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	testAccount(t, st)
	if _, err := st.InsertAccount(ctx, &AccountRecord{UserID: "u1", Kind: "gtasks"}); err != nil {
		t.Fatalf("InsertAccount() failed: %v", err)
	}

	got, err := st.ListAccounts(ctx, AccountFilter{UserID: "u1", Kind: "gtasks"})
	if err != nil {
		t.Fatalf("ListAccounts() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListAccounts() returned %d accounts, want 1", len(got))
	}
	if got[0].Kind != "gtasks" {
		t.Errorf("Kind = %q, want %q", got[0].Kind, "gtasks")
	}
}

func TestFirstAccount_NoneIsNil(t *testing.T) {
	st := testStore(t)
	acct, err := st.FirstAccount(context.Background(), AccountFilter{UserID: "nobody"})
	if err != nil {
		t.Fatalf("FirstAccount() failed: %v", err)
	}
	if acct != nil {
		t.Errorf("FirstAccount() = %+v, want nil", acct)
	}
}

func TestDeleteAccount_Idempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	if err := st.DeleteAccount(ctx, acct.ID); err != nil {
		t.Fatalf("DeleteAccount() failed: %v", err)
	}
	if err := st.DeleteAccount(ctx, acct.ID); err != nil {
		t.Errorf("Second DeleteAccount() failed: %v", err)
	}
}

func TestInsertList_MembersRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	list, err := st.InsertList(ctx, &ListRecord{
		AccountID: acct.ID,
		Name:      "assigned",
		Query:     "assignee:me",
		Members:   []string{"i1", "i2"},
		Due:       &due,
	})
	if err != nil {
		t.Fatalf("InsertList() failed: %v", err)
	}

	got, err := st.GetList(ctx, list.ID)
	if err != nil {
		t.Fatalf("GetList() failed: %v", err)
	}
	if len(got.Members) != 2 || got.Members[0] != "i1" {
		t.Errorf("Members = %v, want [i1 i2]", got.Members)
	}
	if got.Due == nil || !got.Due.Equal(due) {
		t.Errorf("Due = %v, want %v", got.Due, due)
	}
}

func TestUpdateList_EmptyMembers(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	list, err := st.InsertList(ctx, &ListRecord{
		AccountID: acct.ID,
		Name:      "assigned",
		Members:   []string{"i1"},
	})
	if err != nil {
		t.Fatalf("InsertList() failed: %v", err)
	}

	list.Members = nil
	if err := st.UpdateList(ctx, list); err != nil {
		t.Fatalf("UpdateList() failed: %v", err)
	}

	got, err := st.GetList(ctx, list.ID)
	if err != nil {
		t.Fatalf("GetList() failed: %v", err)
	}
	if len(got.Members) != 0 {
		t.Errorf("Members = %v, want empty", got.Members)
	}
}

func TestFirstList_ByName(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	if _, err := st.InsertList(ctx, &ListRecord{AccountID: acct.ID, Name: "inbox"}); err != nil {
		t.Fatalf("InsertList() failed: %v", err)
	}

	got, err := st.FirstList(ctx, acct.ID, "inbox")
	if err != nil {
		t.Fatalf("FirstList() failed: %v", err)
	}
	if got == nil || got.Name != "inbox" {
		t.Errorf("FirstList() = %+v, want list named inbox", got)
	}

	missing, err := st.FirstList(ctx, acct.ID, "nope")
	if err != nil {
		t.Fatalf("FirstList() failed: %v", err)
	}
	if missing != nil {
		t.Errorf("FirstList() = %+v, want nil", missing)
	}
}

func TestInsertItem_RoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	done := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	item, err := st.InsertItem(ctx, &ItemRecord{
		AccountID:  acct.ID,
		RemoteKey:  "org/repo#42",
		Summary:    "Fix the thing",
		URL:        "https://github.com/org/repo/issues/42",
		Controller: ControllerPlugin,
		TaskID:     "t1",
		HasTask:    true,
		Done:       &done,
		Payload:    `{"number":42}`,
	})
	if err != nil {
		t.Fatalf("InsertItem() failed: %v", err)
	}

	got, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem() failed: %v", err)
	}
	if got.RemoteKey != "org/repo#42" {
		t.Errorf("RemoteKey = %q, want %q", got.RemoteKey, "org/repo#42")
	}
	if got.Controller != ControllerPlugin {
		t.Errorf("Controller = %q, want %q", got.Controller, ControllerPlugin)
	}
	if !got.HasTask {
		t.Error("HasTask = false, want true")
	}
	if got.Done == nil || !got.Done.Equal(done) {
		t.Errorf("Done = %v, want %v", got.Done, done)
	}
	if got.Payload != `{"number":42}` {
		t.Errorf("Payload = %q", got.Payload)
	}
}

// TestInsertItem_DuplicateRemoteKey verifies the natural-key unique index.
func TestInsertItem_DuplicateRemoteKey(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	rec := &ItemRecord{AccountID: acct.ID, RemoteKey: "k1", Controller: ControllerNone}
	if _, err := st.InsertItem(ctx, rec); err != nil {
		t.Fatalf("InsertItem() failed: %v", err)
	}
	dup := &ItemRecord{AccountID: acct.ID, RemoteKey: "k1", Controller: ControllerNone}
	if _, err := st.InsertItem(ctx, dup); err == nil {
		t.Error("InsertItem() accepted a duplicate (account, remote key) pair")
	}
}

func TestFirstItem_NaturalKey(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	if _, err := st.InsertItem(ctx, &ItemRecord{AccountID: acct.ID, RemoteKey: "k1", Controller: ControllerNone}); err != nil {
		t.Fatalf("InsertItem() failed: %v", err)
	}

	got, err := st.FirstItem(ctx, ItemFilter{AccountID: acct.ID, RemoteKey: "k1"})
	if err != nil {
		t.Fatalf("FirstItem() failed: %v", err)
	}
	if got == nil {
		t.Fatal("FirstItem() = nil, want the inserted item")
	}

	missing, err := st.FirstItem(ctx, ItemFilter{AccountID: acct.ID, RemoteKey: "k2"})
	if err != nil {
		t.Fatalf("FirstItem() failed: %v", err)
	}
	if missing != nil {
		t.Errorf("FirstItem() = %+v, want nil", missing)
	}
}

// TestListItems_ByUser checks the user filter joins through accounts.
func TestListItems_ByUser(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)
	other, err := st.InsertAccount(ctx, &AccountRecord{UserID: "u2", Kind: "github"})
	if err != nil {
		t.Fatalf("InsertAccount() failed: %v", err)
	}

	if _, err := st.InsertItem(ctx, &ItemRecord{AccountID: acct.ID, RemoteKey: "a", Controller: ControllerNone}); err != nil {
		t.Fatalf("InsertItem() failed: %v", err)
	}
	if _, err := st.InsertItem(ctx, &ItemRecord{AccountID: other.ID, RemoteKey: "b", Controller: ControllerNone}); err != nil {
		t.Fatalf("InsertItem() failed: %v", err)
	}

	got, err := st.ListItems(ctx, ItemFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListItems() failed: %v", err)
	}
	if len(got) != 1 || got[0].RemoteKey != "a" {
		t.Errorf("ListItems() = %d items, want only u1's item", len(got))
	}
}

func TestUpdateItem_ClearsDone(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	acct := testAccount(t, st)

	done := time.Now().UTC()
	item, err := st.InsertItem(ctx, &ItemRecord{AccountID: acct.ID, RemoteKey: "k", Controller: ControllerManual, Done: &done})
	if err != nil {
		t.Fatalf("InsertItem() failed: %v", err)
	}

	item.Done = nil
	if err := st.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem() failed: %v", err)
	}

	got, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem() failed: %v", err)
	}
	if got.Done != nil {
		t.Errorf("Done = %v, want nil", got.Done)
	}
}

func TestControllerValid(t *testing.T) {
	for _, c := range []Controller{ControllerNone, ControllerManual, ControllerPlugin, ControllerPluginList, ControllerService} {
		if !c.Valid() {
			t.Errorf("%q.Valid() = false, want true", c)
		}
	}
	if Controller("robot").Valid() {
		t.Error(`Controller("robot").Valid() = true, want false`)
	}
}
