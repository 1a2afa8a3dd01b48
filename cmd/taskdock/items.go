package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/taskdock/taskdock/internal/engine"
	"github.com/taskdock/taskdock/internal/store"
	"github.com/taskdock/taskdock/internal/ui"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve <url>",
	GroupID: "tasks",
	Short:   "Turn a pasted service URL into a tracked item",
	Long: `Resolve a URL against every connected integration, in registration
order. The first integration that recognizes the URL fetches the entity
and creates (or refreshes) a local item for it.

By default the item is tracked without being a task; pass --task to
adopt it as a task immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		isTask, _ := cmd.Flags().GetBool("task")
		item, err := a.eng.CreateItemFromURL(cmd.Context(), a.cfg.User, args[0], isTask)
		if err != nil {
			return err
		}
		if item == nil {
			fmt.Printf("%s No integration recognized that URL\n", ui.RenderDim("·"))
			return nil
		}

		fmt.Printf("%s %s\n", ui.RenderPass("✓"), item.Summary)
		fmt.Printf("Item ID: %s (controller: %s)\n", item.ID, item.Controller)
		return nil
	},
}

var itemsCmd = &cobra.Command{
	Use:     "items",
	GroupID: "tasks",
	Short:   "Show synced items",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.st.ListItems(cmd.Context(), store.ItemFilter{UserID: a.cfg.User})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No items yet. Add a list or resolve a URL.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDONE\tCTRL\tSUMMARY")
		for _, it := range items {
			mark := ui.RenderDim("·")
			if it.Done != nil {
				mark = ui.RenderPass("✓")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.ID, mark, it.Controller, it.Summary)
		}
		return w.Flush()
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <item-id>",
	GroupID: "tasks",
	Short:   "Mark an item done (manual items only)",
	Long: `Mark an item completed, or un-mark it with --undo.

Only manually controlled items accept this; items whose completion is
owned by an integration or an external service refuse the toggle.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		undo, _ := cmd.Flags().GetBool("undo")
		if err := a.eng.SetItemDone(cmd.Context(), args[0], !undo); err != nil {
			return err
		}
		if undo {
			fmt.Printf("%s Reopened %s\n", ui.RenderPass("✓"), args[0])
		} else {
			fmt.Printf("%s Completed %s\n", ui.RenderPass("✓"), args[0])
		}
		return nil
	},
}

var controllerCmd = &cobra.Command{
	Use:     "controller <item-id> <none|manual|plugin|plugin_list>",
	GroupID: "tasks",
	Short:   "Change who controls an item's completion",
	Long: `Re-assign an item's completion authority.

"plugin" requires the item to be a task; "plugin_list" requires it to
have come from a list. Service-controlled items can never be
re-assigned.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		target := store.Controller(args[1])
		if !target.Valid() {
			return fmt.Errorf("unknown controller %q", args[1])
		}
		if err := a.eng.SetController(cmd.Context(), args[0], target); err != nil {
			return err
		}
		fmt.Printf("%s %s is now %s-controlled\n", ui.RenderPass("✓"), args[0], target)
		return nil
	},
}

var snoozeCmd = &cobra.Command{
	Use:     "snooze <item-id> <when...>",
	GroupID: "tasks",
	Short:   "Hide an item's task until a point in time",
	Long: `Snooze the task behind an item using a natural language time:

  taskdock snooze 3f2a tomorrow
  taskdock snooze 3f2a next friday at 9am
  taskdock snooze 3f2a in 2 hours

Use "clear" to un-snooze.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		item, err := a.eng.GetItem(ctx, args[0])
		if err != nil {
			return err
		}
		if item.TaskID == "" {
			return fmt.Errorf("item %s has no task to snooze", item.ID)
		}

		phrase := ""
		for i, arg := range args[1:] {
			if i > 0 {
				phrase += " "
			}
			phrase += arg
		}

		if phrase == "clear" {
			if err := a.hub.SetItemSnoozed(ctx, item.TaskID, nil); err != nil {
				return err
			}
			fmt.Printf("%s Unsnoozed %s\n", ui.RenderPass("✓"), item.Summary)
			return nil
		}

		w := when.New(nil)
		w.Add(en.All...)
		w.Add(common.All...)
		result, err := w.Parse(phrase, time.Now())
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("could not understand %q", phrase)
		}

		until := result.Time
		if err := a.hub.SetItemSnoozed(ctx, item.TaskID, &until); err != nil {
			return err
		}
		fmt.Printf("%s Snoozed %s until %s\n", ui.RenderPass("✓"), item.Summary, until.Format("Mon Jan 2 15:04"))
		return nil
	},
}

var problemsCmd = &cobra.Command{
	Use:     "problems",
	GroupID: "sync",
	Short:   "Show accounts that failed their last sync",
	Long: `Show per-account sync failures. Problems live in the syncing process,
so this asks a running daemon's dashboard first and falls back to this
process's own state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		problems := fetchDaemonProblems(a.cfg.DashboardPort)
		if problems == nil {
			problems = a.eng.Problems().ForUser(a.cfg.User)
		}
		if len(problems) == 0 {
			fmt.Printf("%s No sync problems\n", ui.RenderPass("✓"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tKIND\tCOUNT\tLAST SEEN\tPROBLEM")
		for _, p := range problems {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				p.AccountID, p.Kind, p.Count, p.LastSeen.Format(time.RFC3339), p.Description)
		}
		return w.Flush()
	},
}

// fetchDaemonProblems asks a running daemon's dashboard for the problem
// list. Returns nil when no daemon is reachable.
func fetchDaemonProblems(port int) []engine.Problem {
	if port <= 0 {
		return nil
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/problems", port))
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var problems []engine.Problem
	if err := json.NewDecoder(resp.Body).Decode(&problems); err != nil {
		return nil
	}
	if problems == nil {
		problems = []engine.Problem{}
	}
	return problems
}

func init() {
	resolveCmd.Flags().Bool("task", false, "Adopt the resolved item as a task")
	doneCmd.Flags().Bool("undo", false, "Clear the done state instead")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(controllerCmd)
	rootCmd.AddCommand(snoozeCmd)
	rootCmd.AddCommand(problemsCmd)
}
