package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskdock/taskdock/internal/migrate"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "tasks",
	Short:   "Export accounts, lists and items",
	Long: `Export the full sync state as JSONL (one record per line, the default)
or a single YAML document. Credentials are included, so treat the
output as secret.

Example usage:
  taskdock export > backup.jsonl
  taskdock export --format yaml -o state.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := migrate.Export(cmd.Context(), a.st, a.cfg.User)
		if err != nil {
			return err
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "jsonl":
			return migrate.WriteJSONL(out, snap)
		case "yaml":
			return migrate.WriteYAML(out, snap)
		default:
			return fmt.Errorf("unknown format %q (want jsonl or yaml)", format)
		}
	},
}

func init() {
	exportCmd.Flags().String("format", "jsonl", "Output format: jsonl or yaml")
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	rootCmd.AddCommand(exportCmd)
}
