package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/taskdock/taskdock/internal/engine"
)

// Config holds configuration for the daemon.
type Config struct {
	// LockPath is the single-instance lock file. Exactly one daemon may
	// reconcile a given database; the overlapping-pass assumption in the
	// engine depends on it.
	LockPath string

	// Interval is the default delay between reconciliation passes for
	// each integration plugin.
	Interval time.Duration

	// Intervals overrides Interval per integration kind.
	Intervals map[string]time.Duration

	// ConfigPath, when set, is watched for changes; OnReload is invoked
	// after edits settle.
	ConfigPath string
	OnReload   func()

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: time.Minute,
		Logger:   log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon ties the scheduler, the engine and the config watcher together.
// Each registered integration kind gets its own recurring timer; a firing
// performs one full pass over that kind's accounts and reschedules
// itself, decoupled from every other kind's timer.
type Daemon struct {
	eng    *engine.Engine
	config *Config

	sched   *Scheduler
	lock    *flock.Flock
	watcher *ConfigWatcher

	// interval is re-read on every firing so config reloads take effect
	// without restarting timers.
	interval atomic.Int64
	overrides map[string]time.Duration
}

// New creates a new Daemon instance.
func New(eng *engine.Engine, config *Config) (*Daemon, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}

	d := &Daemon{
		eng:       eng,
		config:    config,
		sched:     NewScheduler(config.Logger),
		overrides: config.Intervals,
	}
	d.interval.Store(int64(config.Interval))
	return d, nil
}

// SetInterval changes the default pass interval for subsequent firings.
func (d *Daemon) SetInterval(interval time.Duration) {
	if interval > 0 {
		d.interval.Store(int64(interval))
	}
}

// Start acquires the instance lock, queues one recurring reconciliation
// task per registered integration kind, and starts the config watcher.
// It blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	if d.config.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(d.config.LockPath), 0755); err != nil {
			return fmt.Errorf("failed to create lock directory: %w", err)
		}
		d.lock = flock.New(d.config.LockPath)
		locked, err := d.lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire daemon lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another daemon already holds %s", d.config.LockPath)
		}
	}

	if d.config.ConfigPath != "" && d.config.OnReload != nil {
		watcher, err := NewConfigWatcher(d.config.ConfigPath, 500*time.Millisecond, d.config.OnReload, d.config.Logger)
		if err != nil {
			d.config.Logger.Printf("Warning: config watch disabled: %v", err)
		} else {
			d.watcher = watcher
		}
	}

	kinds := d.eng.Kinds()
	d.config.Logger.Printf("Starting daemon: %d integrations", len(kinds))
	for _, kind := range kinds {
		kind := kind
		// Stagger initial firings so plugins don't all hit the store at
		// the same instant on startup.
		initial := time.Duration(len(kind)%5+1) * time.Second
		err := d.sched.QueueRecurring(kind, initial, func(ctx context.Context) time.Duration {
			start := time.Now()
			if err := d.eng.ReconcileKind(ctx, kind); err != nil {
				d.config.Logger.Printf("Pass for %s failed: %v", kind, err)
			} else {
				d.config.Logger.Printf("Pass for %s complete in %v", kind, time.Since(start).Round(time.Millisecond))
			}
			return d.kindInterval(kind)
		})
		if err != nil {
			d.Stop()
			return err
		}
	}

	<-ctx.Done()
	d.config.Logger.Println("Shutdown signal received")
	d.Stop()
	return nil
}

// Stop shuts everything down and releases the instance lock.
func (d *Daemon) Stop() {
	if d.watcher != nil {
		d.watcher.Stop()
		d.watcher = nil
	}
	d.sched.Stop()
	if d.lock != nil {
		_ = d.lock.Unlock()
		d.lock = nil
	}
	d.config.Logger.Println("Daemon stopped")
}

func (d *Daemon) kindInterval(kind string) time.Duration {
	if iv, ok := d.overrides[kind]; ok && iv > 0 {
		return iv
	}
	return time.Duration(d.interval.Load())
}
