package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate package catalogs",
		Long: `Inspect the packages a catalog declares without running a pass.

A catalog is an ordered list of package descriptors, each naming:
  - The package identifier and its toggle's default and help text
  - An optional availability probe (detects an adequate system copy)
  - An optional requirement probe (platforms that need the package)
  - Optional pre and post hooks`,
	}

	cmd.AddCommand(newCatalogListCommand())
	cmd.AddCommand(newCatalogShowCommand())
	cmd.AddCommand(newCatalogOptionsCommand())
	cmd.AddCommand(newCatalogValidateCommand())

	return cmd
}

// loadCatalogFile loads and validates a catalog for inspection commands.
func loadCatalogFile(cmd *cobra.Command, path string) (*catalog.Catalog, error) {
	loader, err := catalog.NewLoader(log.Logger)
	if err != nil {
		return nil, err
	}
	return loader.Load(cmd.Context(), path)
}

func newCatalogListCommand() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the packages in a catalog",
		Example: `  # List packages with their defaults and probes
  provisio catalog list --catalog packages.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalogFile(cmd, catalogPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-24s %-10s %-14s %-12s %s\n",
				"PACKAGE", "DEFAULT", "AVAILABILITY", "REQUIREMENT", "DESCRIPTION")
			for i := range cat.Packages {
				d := &cat.Packages[i]
				def, err := d.DefaultPreference()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-24s %-10s %-14s %-12s %s\n",
					d.Name, surfaceToken(def),
					probeType(d.Probes.Availability), probeType(d.Probes.Requirement),
					d.Description)
			}
			fmt.Fprintf(out, "\n%d packages in %s\n", len(cat.Packages), cat.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "package catalog file (.cue or .yaml)")
	cmd.MarkFlagRequired("catalog")

	return cmd
}

func probeType(spec *catalog.ProbeSpec) string {
	if spec == nil {
		return "-"
	}
	return spec.Type
}

func newCatalogShowCommand() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "show <package>",
		Short: "Show one package descriptor in full",
		Args:  cobra.ExactArgs(1),
		Example: `  # Show the zlib descriptor as JSON
  provisio catalog show zlib --catalog packages.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalogFile(cmd, catalogPath)
			if err != nil {
				return err
			}

			d, ok := cat.Package(args[0])
			if !ok {
				return fmt.Errorf("package %s is not in %s", args[0], cat.Path)
			}

			data, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "package catalog file (.cue or .yaml)")
	cmd.MarkFlagRequired("catalog")

	return cmd
}

func newCatalogOptionsCommand() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "options",
		Short: "Print the generated configure toggles",
		Long: `Print the per-package --with-system toggle of every catalog package,
with its help text and documented default. This is the option listing a
configure surface built on this catalog would present.`,
		Example: `  # Show the toggles packages.yaml generates
  provisio catalog options --catalog packages.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalogFile(cmd, catalogPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i := range cat.Packages {
				d := &cat.Packages[i]
				def, err := d.DefaultPreference()
				if err != nil {
					return err
				}
				toggle := engine.Toggle{Package: d.Name, Default: def, Help: d.Description}
				fmt.Fprintf(out, "  %s\n", toggle.Flag())
				if toggle.Help != "" {
					fmt.Fprintf(out, "      %s\n", toggle.Help)
				}
				fmt.Fprintf(out, "      (default %s)\n", surfaceToken(def))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "package catalog file (.cue or .yaml)")
	cmd.MarkFlagRequired("catalog")

	return cmd
}

func newCatalogValidateCommand() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a catalog without running a pass",
		Long: `Parse and validate a catalog: schema conformance, unique package
names, parseable defaults, and complete probe and hook specs. Exits
non-zero when the catalog is unusable.`,
		Example: `  # Validate before committing
  provisio catalog validate --catalog packages.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalogFile(cmd, catalogPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog OK: %d packages in %s\n",
				len(cat.Packages), cat.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "package catalog file (.cue or .yaml)")
	cmd.MarkFlagRequired("catalog")

	return cmd
}
