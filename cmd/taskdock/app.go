package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/taskdock/taskdock/internal/config"
	"github.com/taskdock/taskdock/internal/engine"
	"github.com/taskdock/taskdock/internal/logging"
	"github.com/taskdock/taskdock/internal/provider/github"
	"github.com/taskdock/taskdock/internal/provider/gtasks"
	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/taskhub"
)

// app bundles everything a command needs: config, the record store, the
// shared task hub and the engine with all integrations registered.
type app struct {
	cfg *config.Config
	st  *store.Store
	hub *taskhub.Hub
	eng *engine.Engine

	logClose io.Closer
}

// newRegistry registers every built-in integration. Registration order
// fixes the URL resolution order.
func newRegistry() (*engine.Registry, error) {
	reg := engine.NewRegistry()
	if err := reg.Register(github.Kind, github.Metadata, github.New); err != nil {
		return nil, err
	}
	if err := reg.Register(gtasks.Kind, gtasks.Metadata, gtasks.New); err != nil {
		return nil, err
	}
	return reg, nil
}

// openApp loads config and wires up the full stack. events may be nil
// for commands that do not need engine notifications.
func openApp(cmd *cobra.Command, events engine.Notifier) (*app, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = config.DefaultDir()
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	logger, logClose := logging.New("[taskdock] ", logging.Options{Path: cfg.LogPath, Quiet: true})

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logClose.Close()
		return nil, err
	}

	ctx := cmd.Context()
	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		logClose.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	hub := taskhub.New(st.RawDB(), logger)
	if err := hub.InitSchema(ctx); err != nil {
		st.Close()
		logClose.Close()
		return nil, fmt.Errorf("failed to initialize hub schema: %w", err)
	}

	reg, err := newRegistry()
	if err != nil {
		st.Close()
		logClose.Close()
		return nil, err
	}

	env := engine.NewEnv(st, hub, hub, logger, events)
	eng, err := engine.New(env, reg)
	if err != nil {
		st.Close()
		logClose.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		st:       st,
		hub:      hub,
		eng:      eng,
		logClose: logClose,
	}, nil
}

func (a *app) Close() {
	a.st.Close()
	a.logClose.Close()
}

// status is the dashboard's counts provider.
func (a *app) status(ctx context.Context) (int, int, int, error) {
	accts, err := a.st.ListAccounts(ctx, store.AccountFilter{UserID: a.cfg.User})
	if err != nil {
		return 0, 0, 0, err
	}
	lists, items := 0, 0
	for _, acct := range accts {
		ls, err := a.st.ListLists(ctx, acct.ID)
		if err != nil {
			return 0, 0, 0, err
		}
		lists += len(ls)
		is, err := a.st.ListItems(ctx, store.ItemFilter{AccountID: acct.ID})
		if err != nil {
			return 0, 0, 0, err
		}
		items += len(is)
	}
	return len(accts), lists, items, nil
}
