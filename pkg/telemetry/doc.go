// Package telemetry provides observability instrumentation for provisio.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring configuration passes.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Event system for audit and watch-mode notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "provisio"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with pass and package
// context:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithPassID("pass-123").WithPackage("zlib")
//	logger.Info("deciding provisioning source")
//	logger.WithError(err).Warn("availability probe failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Spans cover a whole pass, each package evaluation, and each probe run:
//
//	ctx, span := tel.Tracer.StartPassSpan(ctx, passID, catalogPath)
//	defer span.End()
//
//	ctx, span := tel.Tracer.StartEvaluationSpan(ctx, "zlib", "system")
//	telemetry.AddVerdictEvent(span, "zlib", "no")
//
// Supported exporters: OTLP (collectors), Stdout (development), none.
//
// # Metrics
//
// Key metrics exposed (namespace "provisio"):
//
//   - provisio_passes_started_total{catalog}
//   - provisio_passes_completed_total{status}
//   - provisio_pass_duration_seconds{status}
//   - provisio_evaluations_total{verdict}
//   - provisio_evaluation_duration_seconds{verdict}
//   - provisio_probe_runs_total{kind,runtime,outcome}
//   - provisio_probe_duration_seconds{kind,runtime}
//   - provisio_marker_hits_total
//   - provisio_policy_conflicts_total
//   - provisio_errors_by_class_total{class}
//   - provisio_active_passes
//
// Metrics are exposed via HTTP at /metrics when enabled.
//
// # Event Publishing
//
// The event system feeds the history audit trail and watch mode:
//
//	tel.Events.PublishPassStarted(passID, catalogPath)
//	tel.Events.PublishDecision(passID, "zlib", "no", false)
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("%s: %s\n", event.Type, event.Message)
//	}, telemetry.FilterByType(telemetry.EventTypeDecision))
//
// Delivery is synchronous by default so watch-mode subscribers observe
// decisions in catalog order; EnableAsync trades ordering for buffering.
//
// # Graceful Shutdown
//
// Always shut down telemetry to flush pending traces and events:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("telemetry shutdown error: %v", err)
//	}
package telemetry
