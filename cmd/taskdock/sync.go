package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdock/taskdock/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync [kind]",
	GroupID: "sync",
	Short:   "Run one reconciliation pass",
	Long: `Run one reconciliation pass over every connected account, one service
kind, or a single account.

Each pass refreshes account metadata, re-fetches every list, refreshes
items that fell out of all lists, and detects items deleted remotely.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		start := time.Now()

		if accountID, _ := cmd.Flags().GetString("account"); accountID != "" {
			acct, err := a.st.GetAccount(ctx, accountID)
			if err != nil {
				return fmt.Errorf("account %s: %w", accountID, err)
			}
			if err := a.eng.ReconcileAccount(ctx, acct); err != nil {
				return fmt.Errorf("%s sync failed: %w", acct.Kind, err)
			}
		} else {
			kinds := a.eng.Kinds()
			if len(args) == 1 {
				if _, ok := a.eng.Metadata(args[0]); !ok {
					return fmt.Errorf("unknown service kind %q (have: %v)", args[0], kinds)
				}
				kinds = args[0:1]
			}
			for _, kind := range kinds {
				if err := a.eng.ReconcileKind(ctx, kind); err != nil {
					return fmt.Errorf("%s sync failed: %w", kind, err)
				}
			}
		}

		problems := a.eng.Problems().ForUser(a.cfg.User)
		if len(problems) > 0 {
			fmt.Printf("%s Sync finished in %v with %d problem(s)\n",
				ui.RenderFail("!"), time.Since(start).Round(time.Millisecond), len(problems))
			for _, p := range problems {
				fmt.Printf("  %s: %s\n", p.Kind, p.Description)
			}
			fmt.Println("\nDetails: taskdock problems")
			return nil
		}

		fmt.Printf("%s Sync finished in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	syncCmd.Flags().String("account", "", "Sync only this account ID")
	rootCmd.AddCommand(syncCmd)
}
