package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/facts"
	"github.com/provisio/provisio/pkg/markers"
	"github.com/provisio/provisio/pkg/probes"
	"github.com/provisio/provisio/pkg/telemetry"
)

func newConfigureCommand() *cobra.Command {
	var (
		catalogPath string
		withSystem  []string
		prefsPath   string
		markerDir   string
		history     bool
		output      string
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Run a configuration pass over a catalog",
		Long: `Evaluate every package in the catalog, in declaration order, and decide
for each whether to rely on the system copy or build the bundled one.

For each package the pass consults:
  - The prior-build marker (a marked package is always rebuilt from source)
  - The requirement probe (platforms where the package is not needed)
  - The availability probe (whether an adequate system copy exists)
  - The user preference: --with-system flag, prefs file, catalog default

A --with-system pkg=force directive that cannot be satisfied aborts the
pass with the offending package named.`,
		Example: `  # Decide with catalog defaults
  provisio configure --catalog packages.yaml

  # Prefer the system zlib, always bundle gmp
  provisio configure --catalog packages.yaml \
    --with-system zlib=yes --with-system gmp=no

  # Demand the system openssl; abort if it is missing
  provisio configure --catalog packages.yaml --with-system openssl=force

  # Record the pass for auditing and emit JSON
  provisio configure --catalog packages.yaml --history --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if output != "table" && output != "json" {
				return fmt.Errorf("bad --output %q (want table or json)", output)
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if markerDir != "" {
				settings.MarkerDir = markerDir
			}

			flags, err := catalog.ParseWithSystemFlags(withSystem)
			if err != nil {
				return err
			}
			filePrefs := catalog.Preferences{}
			if prefsPath != "" {
				filePrefs, err = catalog.LoadPreferences(prefsPath)
				if err != nil {
					return err
				}
			}

			tel, err := telemetry.NewTelemetry(settings.TelemetryConfig(toolVersion))
			if err != nil {
				return err
			}
			defer func() {
				if err := tel.Shutdown(ctx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()
			if err := tel.StartMetricsServer(); err != nil {
				log.Warn().Err(err).Msg("Metrics server failed to start")
			}
			tel.Events.Subscribe(func(event telemetry.Event) {
				log.Debug().
					Str("type", event.Type).
					Str("package", event.Package).
					Msg(event.Message)
			}, nil)

			logger := tel.Logger.Zerolog()

			loader, err := catalog.NewLoader(logger)
			if err != nil {
				return err
			}
			cat, err := loader.Load(ctx, catalogPath)
			if err != nil {
				return err
			}

			hostFacts, err := facts.NewCollector(logger).Collect(ctx)
			if err != nil {
				return err
			}

			baseDir := settings.Probes.BaseDir
			if baseDir == "" {
				baseDir = filepath.Dir(catalogPath)
			}
			registry := probes.NewRegistry(probes.Config{
				BaseDir: baseDir,
				Timeout: settings.Probes.Timeout.Std(),
				Facts:   hostFacts,
				Metrics: tel.Metrics,
			}, logger)
			defer func() {
				if err := registry.Close(context.Background()); err != nil {
					log.Warn().Err(err).Msg("Probe registry close failed")
				}
			}()

			evals, err := registry.CompileCatalog(ctx, cat, flags, filePrefs)
			if err != nil {
				return err
			}

			runnerCfg := engine.RunnerConfig{
				Metrics: tel.Metrics,
				Tracer:  tel.Tracer,
				Events:  tel.Events,
			}
			if history {
				store, err := openHistory(ctx, settings.HistoryPath)
				if err != nil {
					return err
				}
				defer store.Close()
				runnerCfg.Store = store
			}

			markerSource := markers.NewDir(settings.MarkerDir, logger)
			runner := engine.NewRunner(engine.NewEvaluator(markerSource, logger), logger, runnerCfg)

			report, runErr := runner.Run(ctx, catalogPath, evals)

			if output == "json" {
				data, err := report.RenderJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), report.RenderTable())
			}

			return runErr
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "package catalog file (.cue or .yaml)")
	cmd.Flags().StringArrayVar(&withSystem, "with-system", nil, "per-package preference (package=yes|no|force), repeatable")
	cmd.Flags().StringVar(&prefsPath, "prefs", "", "preferences file mapping packages to yes|no|force")
	cmd.Flags().StringVar(&markerDir, "markers", "", "installation-records directory (overrides config)")
	cmd.Flags().BoolVar(&history, "history", false, "record the pass in the history database")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "report format (table or json)")
	cmd.MarkFlagRequired("catalog")

	return cmd
}
