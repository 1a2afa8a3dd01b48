package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskdock/taskdock/internal/config"
	"github.com/taskdock/taskdock/internal/daemon"
	"github.com/taskdock/taskdock/internal/dashboard"
	"github.com/taskdock/taskdock/internal/engine"
)

// eventRelay forwards engine events to a notifier chosen after the
// engine is built. The dashboard server needs the loaded config (for
// its port), but the engine needs its notifier up front; the relay
// breaks the cycle. The target is set before any reconciliation starts.
type eventRelay struct {
	target engine.Notifier
}

func (r *eventRelay) Notify(ev engine.Event) {
	if r.target != nil {
		r.target.Notify(ev)
	}
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run reconciliation passes continuously, one independent timer per
service kind. A lock file guarantees a single daemon per config
directory. The config file is watched; edits to sync intervals take
effect without a restart.

With a dashboard port configured, a WebSocket status server broadcasts
item and list updates to connected clients.

Example usage:
  taskdock daemon                # sync forever with configured intervals
  taskdock daemon --once         # one pass, then exit (for cron)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		relay := &eventRelay{}
		a, err := openApp(cmd, relay)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if once, _ := cmd.Flags().GetBool("once"); once {
			for _, kind := range a.eng.Kinds() {
				if err := a.eng.ReconcileKind(ctx, kind); err != nil {
					return fmt.Errorf("%s sync failed: %w", kind, err)
				}
			}
			return nil
		}

		var d *daemon.Daemon
		d, err = daemon.New(a.eng, &daemon.Config{
			LockPath:   a.cfg.LockPath(),
			Interval:   a.cfg.SyncInterval,
			Intervals:  a.cfg.SyncIntervals,
			ConfigPath: a.cfg.Path(),
			OnReload: func() {
				fresh, err := config.Load(a.cfg.Dir)
				if err != nil {
					fmt.Fprintf(os.Stderr, "config reload failed: %v\n", err)
					return
				}
				d.SetInterval(fresh.SyncInterval)
			},
		})
		if err != nil {
			return err
		}

		if a.cfg.DashboardPort > 0 {
			srv := dashboard.NewServer(&dashboard.Config{
				Port: a.cfg.DashboardPort,
				Status: func(ctx context.Context) (dashboard.Status, error) {
					accounts, lists, items, err := a.status(ctx)
					if err != nil {
						return dashboard.Status{}, err
					}
					return dashboard.Status{
						Accounts: accounts,
						Lists:    lists,
						Items:    items,
						Problems: len(a.eng.Problems().All()),
					}, nil
				},
				Problems: func() []engine.Problem {
					return a.eng.Problems().All()
				},
			})
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer srv.Stop()
			relay.target = srv
			fmt.Printf("Dashboard: http://%s (ws://%s/ws)\n", srv.GetAddr(), srv.GetAddr())
		}

		fmt.Printf("Syncing %v every %v. Press Ctrl+C to stop.\n", a.eng.Kinds(), a.cfg.SyncInterval)
		return d.Start(ctx)
	},
}

func init() {
	daemonCmd.Flags().Bool("once", false, "Run a single pass and exit")
	rootCmd.AddCommand(daemonCmd)
}
