package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/provisio/provisio/pkg/markers"
)

func newMarkersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markers",
		Short: "Inspect installation-record markers",
		Long: `Inspect the installation-records directory the engine consults.

A marker is a <package>-<version> entry left behind by a previous
from-source build. A marked package is always rebuilt from source on
later passes; clearing its marker re-opens the system-copy question.`,
	}

	cmd.AddCommand(newMarkersListCommand())

	return cmd
}

func newMarkersListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded installs",
		Example: `  # List markers in the configured directory
  provisio markers list

  # List markers in a specific tree
  provisio markers list --dir /opt/tree/var/lib/provisio/installed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				settings, err := loadSettings()
				if err != nil {
					return err
				}
				dir = settings.MarkerDir
			}

			list, err := markers.NewDir(dir, log.Logger).List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(out, "no markers in %s\n", dir)
				return nil
			}

			fmt.Fprintf(out, "%-24s %-16s %s\n", "PACKAGE", "VERSION", "RECORDED")
			for _, m := range list {
				version := m.Version
				if version == "" {
					version = "-"
				}
				fmt.Fprintf(out, "%-24s %-16s %s\n",
					m.Name, version, m.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "installation-records directory (defaults to the configured one)")

	return cmd
}
