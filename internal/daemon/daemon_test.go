package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskdock/taskdock/internal/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.NewEnv(nil, nil, nil, nil, nil), engine.NewRegistry())
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	return eng
}

func TestNew_RequiresEngine(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New() accepted a nil engine")
	}
}

func TestNew_Defaults(t *testing.T) {
	d, err := New(testEngine(t), nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if got := time.Duration(d.interval.Load()); got != time.Minute {
		t.Errorf("default interval = %v, want 1m", got)
	}
}

func TestSetInterval_IgnoresNonPositive(t *testing.T) {
	d, err := New(testEngine(t), nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	d.SetInterval(5 * time.Minute)
	if got := time.Duration(d.interval.Load()); got != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", got)
	}
	d.SetInterval(-time.Second)
	if got := time.Duration(d.interval.Load()); got != 5*time.Minute {
		t.Errorf("interval = %v, non-positive value was applied", got)
	}
}

func TestStart_SingleInstanceLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "daemon.lock")

	d1, err := New(testEngine(t), &Config{LockPath: lockPath})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan error, 1)
	go func() { started <- d1.Start(ctx) }()

	// Wait until the first daemon holds the lock.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(lockPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first daemon never created its lock file")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Give TryLock a moment to complete after file creation.
	time.Sleep(50 * time.Millisecond)

	d2, err := New(testEngine(t), &Config{LockPath: lockPath})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	// A bounded context so a wrongly-acquired lock cannot hang the test.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := d2.Start(ctx2); err == nil {
		t.Error("second daemon acquired an already-held lock")
	}

	cancel()
	select {
	case err := <-started:
		if err != nil {
			t.Errorf("Start() returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first daemon did not shut down")
	}
}

func TestKindInterval_Overrides(t *testing.T) {
	d, err := New(testEngine(t), &Config{
		Interval:  time.Minute,
		Intervals: map[string]time.Duration{"github": 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if got := d.kindInterval("github"); got != 10*time.Second {
		t.Errorf("kindInterval(github) = %v, want the override", got)
	}
	if got := d.kindInterval("gtasks"); got != time.Minute {
		t.Errorf("kindInterval(gtasks) = %v, want the default", got)
	}
}
