package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/facts"
	"github.com/provisio/provisio/pkg/markers"
	"github.com/provisio/provisio/pkg/probes"
	"github.com/provisio/provisio/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		catalogPath string
		withSystem  []string
		prefsPath   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-evaluate the catalog whenever it changes",
		Long: `Run a configuration pass, then watch the catalog file and re-run a
pass on every change. Verdicts that differ from the previous pass are
reported through the event bus as they resolve.

A reload that fails to parse keeps the previous catalog in effect.
Watching stops on interrupt.`,
		Example: `  # Watch a catalog under active editing
  provisio watch --catalog packages.yaml

  # Watch with an explicit preference pinned
  provisio watch --catalog packages.yaml --with-system zlib=force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			settings, err := loadSettings()
			if err != nil {
				return err
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

			// Report verdict changes between passes off the decision events.
			var (
				verdictMu sync.Mutex
				previous  = make(map[string]string)
			)
			tel.Events.Subscribe(func(event telemetry.Event) {
				switch event.Type {
				case telemetry.EventTypeDecision:
					verdict, _ := event.Data["verdict"].(string)
					verdictMu.Lock()
					prev, seen := previous[event.Package]
					previous[event.Package] = verdict
					verdictMu.Unlock()
					if seen && prev != verdict {
						log.Info().
							Str("package", event.Package).
							Str("was", prev).
							Str("now", verdict).
							Msg("Verdict changed")
					}
				case telemetry.EventTypeConflict:
					log.Error().Str("package", event.Package).Msg(event.Message)
				case telemetry.EventTypeCatalogReloaded:
					log.Info().Msg(event.Message)
				}
			}, nil)

			logger := tel.Logger.Zerolog()

			hostFacts, err := facts.NewCollector(logger).Collect(ctx)
			if err != nil {
				return err
			}

			baseDir := settings.Probes.BaseDir
			if baseDir == "" {
				baseDir = filepath.Dir(catalogPath)
			}

			markerSource := markers.NewDir(settings.MarkerDir, logger)
			runner := engine.NewRunner(engine.NewEvaluator(markerSource, logger), logger, engine.RunnerConfig{
				Metrics: tel.Metrics,
				Tracer:  tel.Tracer,
				Events:  tel.Events,
			})

			var passMu sync.Mutex
			runPass := func(cat *catalog.Catalog) {
				passMu.Lock()
				defer passMu.Unlock()

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
					log.Error().Err(err).Msg("Catalog compilation failed, keeping previous verdicts")
					return
				}

				report, err := runner.Run(ctx, cat.Path, evals)
				if err != nil {
					log.Error().Err(err).Msg("Configuration pass failed")
				}
				fmt.Fprint(cmd.OutOrStdout(), report.RenderTable())
			}

			loader, err := catalog.NewLoader(logger)
			if err != nil {
				return err
			}
			cat, err := loader.Load(ctx, catalogPath)
			if err != nil {
				return err
			}
			runPass(cat)

			err = loader.Watch(ctx, catalogPath, func(cat *catalog.Catalog) {
				if err := tel.Events.PublishCatalogReloaded(cat.Path); err != nil {
					log.Warn().Err(err).Msg("Failed to publish reload event")
				}
				runPass(cat)
			})
			if err != nil {
				return err
			}
			defer loader.StopWatching()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "package catalog file (.cue or .yaml)")
	cmd.Flags().StringArrayVar(&withSystem, "with-system", nil, "per-package preference (package=yes|no|force), repeatable")
	cmd.Flags().StringVar(&prefsPath, "prefs", "", "preferences file mapping packages to yes|no|force")
	cmd.MarkFlagRequired("catalog")

	return cmd
}
