package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provisio/provisio/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Audit recorded configuration passes",
		Long: `Audit past configuration passes from the history database.

Passes recorded with configure --history keep every per-package verdict,
the preference that produced it, and any probe failures, so a surprising
decision can be traced after the fact.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded passes",
		Example: `  # Most recent passes first
  provisio history list

  # Page through older passes
  provisio history list --limit 10 --offset 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if dbPath == "" {
				settings, err := loadSettings()
				if err != nil {
					return err
				}
				dbPath = settings.HistoryPath
			}

			store, err := openHistory(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			passes, err := store.ListPasses(ctx, limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(passes) == 0 {
				fmt.Fprintln(out, "no recorded passes")
				return nil
			}

			fmt.Fprintf(out, "%-36s %-10s %-28s %s\n", "PASS", "STATUS", "CATALOG", "STARTED")
			for _, p := range passes {
				fmt.Fprintf(out, "%-36s %-10s %-28s %s\n",
					p.ID, p.Status, p.CatalogPath, p.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "history database path (defaults to the configured one)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum passes to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "passes to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var (
		dbPath string
		output string
	)

	cmd := &cobra.Command{
		Use:   "show <pass-id>",
		Short: "Show one recorded pass in full",
		Args:  cobra.ExactArgs(1),
		Example: `  # Show a pass with its per-package verdicts
  provisio history show 7b0e7a2e-0b5a-4b7e-9f3e-2d1c8a9b0c1d

  # Emit the pass as JSON
  provisio history show 7b0e7a2e-0b5a-4b7e-9f3e-2d1c8a9b0c1d --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			passID := args[0]

			if output != "table" && output != "json" {
				return fmt.Errorf("bad --output %q (want table or json)", output)
			}
			if dbPath == "" {
				settings, err := loadSettings()
				if err != nil {
					return err
				}
				dbPath = settings.HistoryPath
			}

			store, err := openHistory(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			pass, err := store.GetPass(ctx, passID)
			if err != nil {
				return err
			}
			decisions, err := store.ListDecisions(ctx, passID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				data, err := json.MarshalIndent(struct {
					Pass      *stores.Pass       `json:"pass"`
					Decisions []*stores.Decision `json:"decisions"`
				}{pass, decisions}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Pass %s\n", pass.ID)
			fmt.Fprintf(out, "  catalog: %s\n", pass.CatalogPath)
			fmt.Fprintf(out, "  status:  %s\n", pass.Status)
			fmt.Fprintf(out, "  started: %s\n", pass.StartedAt.Format("2006-01-02 15:04:05"))
			if pass.CompletedAt != nil {
				fmt.Fprintf(out, "  ended:   %s\n", pass.CompletedAt.Format("2006-01-02 15:04:05"))
			}
			if pass.FailurePackage != nil {
				fmt.Fprintf(out, "  failure: package %s", *pass.FailurePackage)
				if pass.FailureMessage != nil {
					fmt.Fprintf(out, ": %s", *pass.FailureMessage)
				}
				fmt.Fprintln(out)
			}

			fmt.Fprintf(out, "\n%-24s %-12s %-14s %-10s %s\n",
				"PACKAGE", "VERDICT", "PREFERENCE", "REQUIRED", "NOTE")
			for _, d := range decisions {
				verdict := "use system"
				if d.Verdict == "yes" {
					verdict = "build"
				}
				note := ""
				if d.Note != nil {
					note = *d.Note
				}
				if d.AlreadyBuilt {
					if note != "" {
						note = "already built; " + note
					} else {
						note = "already built"
					}
				}
				fmt.Fprintf(out, "%-24s %-12s %-14s %-10s %s\n",
					d.Package, verdict, d.Preference, d.Required, note)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "history database path (defaults to the configured one)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table or json)")

	return cmd
}
