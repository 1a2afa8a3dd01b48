package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "setup",
	Short:   "Manage synced lists",
	Long: `Manage the lists an account syncs. What a list means depends on the
service: a GitHub list is a search query, a Google Tasks list is one of
the account's task lists.`,
}

var listAddCmd = &cobra.Command{
	Use:   "add <account-id> <name>",
	Short: "Add a list to an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		acct, err := a.st.GetAccount(ctx, args[0])
		if err != nil {
			return err
		}

		query, _ := cmd.Flags().GetString("query")
		url, _ := cmd.Flags().GetString("url")

		list, err := a.st.InsertList(ctx, &store.ListRecord{
			AccountID: acct.ID,
			Name:      args[1],
			Query:     query,
			URL:       url,
		})
		if err != nil {
			return err
		}

		// Populate immediately rather than waiting for the next pass.
		if _, err := a.eng.UpdateList(ctx, acct, list); err != nil {
			fmt.Fprintf(os.Stderr, "%s list saved but first sync failed: %v\n", ui.RenderFail("!"), err)
		} else {
			fmt.Printf("%s Added list %s\n", ui.RenderPass("✓"), ui.RenderAccent(list.Name))
		}
		fmt.Printf("List ID: %s\n", list.ID)
		return nil
	},
}

var listLsCmd = &cobra.Command{
	Use:   "ls [account-id]",
	Short: "Show synced lists",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		var accts []*store.AccountRecord
		if len(args) == 1 {
			acct, err := a.st.GetAccount(ctx, args[0])
			if err != nil {
				return err
			}
			accts = append(accts, acct)
		} else {
			accts, err = a.st.ListAccounts(ctx, store.AccountFilter{UserID: a.cfg.User})
			if err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACCOUNT\tNAME\tMEMBERS")
		for _, acct := range accts {
			lists, err := a.st.ListLists(ctx, acct.ID)
			if err != nil {
				return err
			}
			for _, l := range lists {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", l.ID, acct.DisplayName, l.Name, len(l.Members))
			}
		}
		return w.Flush()
	},
}

var listRmCmd = &cobra.Command{
	Use:   "rm <list-id>",
	Short: "Stop syncing a list",
	Long: `Remove a list. Items that came from it stay synced; only the list
grouping disappears.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.eng.DeleteList(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Removed list %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	listAddCmd.Flags().String("query", "", "Service-side query or list id")
	listAddCmd.Flags().String("url", "", "Web URL for the list")

	listCmd.AddCommand(listAddCmd)
	listCmd.AddCommand(listLsCmd)
	listCmd.AddCommand(listRmCmd)
	rootCmd.AddCommand(listCmd)
}
