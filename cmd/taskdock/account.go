package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/taskdock/taskdock/internal/migrate"
	"github.com/taskdock/taskdock/internal/provider/gtasks"
	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/ui"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	GroupID: "setup",
	Short:   "Manage connected service accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect a new service account",
	Long: `Connect an external service account interactively.

Flags can pre-fill any answer; with --kind, --name and --token all set
the form is skipped entirely, which is what scripts want.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		kind, _ := cmd.Flags().GetString("kind")
		name, _ := cmd.Flags().GetString("name")
		token, _ := cmd.Flags().GetString("token")
		serverURL, _ := cmd.Flags().GetString("server")

		if kind == "" || name == "" || token == "" {
			var kindOptions []huh.Option[string]
			for _, k := range a.eng.Kinds() {
				meta, _ := a.eng.Metadata(k)
				kindOptions = append(kindOptions, huh.NewOption(meta.Name, k))
			}
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("Service").
						Options(kindOptions...).
						Value(&kind),
					huh.NewInput().
						Title("Account name").
						Description("A label to tell accounts apart, e.g. \"work\"").
						Value(&name),
					huh.NewInput().
						Title("Access token").
						EchoMode(huh.EchoModePassword).
						Value(&token),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}
		}
		if _, ok := a.eng.Metadata(kind); !ok {
			return fmt.Errorf("unknown service kind %q (have: %v)", kind, a.eng.Kinds())
		}
		if name == "" || token == "" {
			return fmt.Errorf("account name and token are required")
		}

		creds, err := credentialBlob(kind, token)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		acct, err := a.st.InsertAccount(ctx, &store.AccountRecord{
			UserID:      a.cfg.User,
			Kind:        kind,
			DisplayName: name,
			ServerURL:   serverURL,
			Credentials: creds,
		})
		if err != nil {
			return err
		}

		// First pass fetches the remote identity and any configured lists.
		if err := a.eng.ReconcileAccount(ctx, acct); err != nil {
			fmt.Fprintf(os.Stderr, "%s account saved but first sync failed: %v\n", ui.RenderFail("!"), err)
		} else {
			fmt.Printf("%s Connected %s account %s\n", ui.RenderPass("✓"), kind, ui.RenderAccent(name))
		}
		fmt.Printf("Account ID: %s\n", acct.ID)
		return nil
	},
}

// credentialBlob encodes a raw token the way the integration expects it.
func credentialBlob(kind, token string) (string, error) {
	var blob interface{}
	switch kind {
	case gtasks.Kind:
		blob = map[string]*oauth2.Token{"token": {AccessToken: token}}
	default:
		blob = map[string]string{"token": token}
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("failed to encode credentials: %w", err)
	}
	return string(data), nil
}

var accountListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List connected accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		accts, err := a.st.ListAccounts(cmd.Context(), store.AccountFilter{UserID: a.cfg.User})
		if err != nil {
			return err
		}
		if len(accts) == 0 {
			fmt.Println("No accounts. Run: taskdock account add")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tNAME")
		for _, acct := range accts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", acct.ID, acct.Kind, acct.DisplayName)
		}
		return w.Flush()
	},
}

var accountRmCmd = &cobra.Command{
	Use:   "rm <account-id>",
	Short: "Disconnect an account and remove its synced items",
	Long: `Disconnect an account. Its lists are refreshed one last time so every
synced task is released back to the shared task store before the
account record is deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.eng.DeleteAccount(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Removed account %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var accountImportCmd = &cobra.Command{
	Use:   "import <file.toml>",
	Short: "Bulk-provision accounts from a TOML file",
	Long: `Create accounts from a TOML provisioning file:

  [[accounts]]
  kind = "github"
  display_name = "work"
  token = "ghp_..."

Accounts that already exist (same kind and name) are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		seeds, err := migrate.ReadAccountSeeds(args[0])
		if err != nil {
			return err
		}
		for _, seed := range seeds {
			if _, ok := a.eng.Metadata(seed.Kind); !ok {
				return fmt.Errorf("unknown service kind %q in %s", seed.Kind, args[0])
			}
		}

		created, err := migrate.SeedAccounts(cmd.Context(), a.st, a.cfg.User, seeds)
		if err != nil {
			return err
		}
		fmt.Printf("%s Created %d account(s), skipped %d\n", ui.RenderPass("✓"), created, len(seeds)-created)
		return nil
	},
}

func init() {
	accountAddCmd.Flags().String("kind", "", "Service kind (github, gtasks)")
	accountAddCmd.Flags().String("name", "", "Account display name")
	accountAddCmd.Flags().String("token", "", "Access token")
	accountAddCmd.Flags().String("server", "", "Server URL for self-hosted instances")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountRmCmd)
	accountCmd.AddCommand(accountImportCmd)
	rootCmd.AddCommand(accountCmd)
}
