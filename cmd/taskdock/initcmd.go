package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskdock/taskdock/internal/config"
	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/taskhub"
	"github.com/taskdock/taskdock/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create the config directory and database",
	Long: `Create the taskdock config directory with a starter config file,
and initialize the database schema.

Running init on an existing setup is safe; it never overwrites an
existing config file or database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = config.DefaultDir()
		}

		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		if err := cfg.EnsureDir(); err != nil {
			return err
		}
		if _, err := os.Stat(cfg.Path()); os.IsNotExist(err) {
			if err := cfg.WriteDefault(); err != nil {
				return err
			}
			fmt.Printf("Created %s\n", cfg.Path())
		}

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		if err := st.InitSchema(ctx); err != nil {
			return err
		}
		if err := taskhub.New(st.RawDB(), nil).InitSchema(ctx); err != nil {
			return err
		}

		fmt.Printf("%s Initialized %s\n", ui.RenderPass("✓"), dir)
		fmt.Println("\nNext: taskdock account add")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
