package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcher_FiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync_interval: 1m\n"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	changed := make(chan struct{}, 1)
	w, err := NewConfigWatcher(path, 20*time.Millisecond, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewConfigWatcher() failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("sync_interval: 5m\n"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("config change was never reported")
	}
}

// TestConfigWatcher_RenameReplace covers editors that write a temp file
// and rename it over the original.
func TestConfigWatcher_RenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	changed := make(chan struct{}, 1)
	w, err := NewConfigWatcher(path, 20*time.Millisecond, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewConfigWatcher() failed: %v", err)
	}
	defer w.Stop()

	tmp := filepath.Join(dir, "config.yaml.tmp")
	if err := os.WriteFile(tmp, []byte("a: 2\n"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("rename-replace was never reported")
	}
}

func TestConfigWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	changed := make(chan struct{}, 1)
	w, err := NewConfigWatcher(path, 20*time.Millisecond, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewConfigWatcher() failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	select {
	case <-changed:
		t.Error("change reported for an unrelated sibling file")
	case <-time.After(200 * time.Millisecond):
	}
}
