package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/provisio/provisio/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	// Create configuration
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "provisio"
	cfg.ServiceVersion = "1.0.0"

	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	// Use telemetry
	logger := telemetry.FromContext(ctx)
	logger.Info("Configuration pass starting")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific logger
	logger := tel.Logger.NewComponentLogger("engine")

	// Add pass and package context
	logger = logger.WithPassID("pass-123").WithPackage("zlib")

	// Log at different levels
	logger.Debug("Running availability probe")
	logger.Info("System copy accepted")
	logger.Warn("Requirement probe inconclusive")

	// Log with error
	err := fmt.Errorf("pkg-config not found")
	logger.WithError(err).Error("Probe execution failed")

	// Output varies, no output specified
}

// Example_distributedTracing demonstrates distributed tracing usage.
func Example_distributedTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a pass span
	ctx, span := tel.Tracer.StartPassSpan(ctx, "pass-789", "catalog/packages.yaml")
	defer span.End()

	// Nested evaluation span
	_, childSpan := tel.Tracer.StartEvaluationSpan(ctx, "zlib", "system")
	defer childSpan.End()

	childSpan.SetAttributes(
		attribute.Bool("package.required", true),
	)

	// Simulate probe work
	time.Sleep(10 * time.Millisecond)

	// Record the resolved verdict and success
	telemetry.AddVerdictEvent(childSpan, "zlib", "no")
	telemetry.RecordSuccess(childSpan)

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Record pass metrics
	tel.Metrics.RecordPassStarted("catalog/packages.yaml")

	// Simulate pass execution
	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	duration := time.Since(start)

	tel.Metrics.RecordPassCompleted("completed", duration)

	// Record evaluation metrics
	tel.Metrics.RecordEvaluation("no", 25*time.Millisecond)

	// Record probe metrics
	tel.Metrics.RecordProbeRun("availability", "command", "ok", 15*time.Millisecond)

	// Record marker and error metrics
	tel.Metrics.RecordMarkerHit()
	tel.Metrics.RecordError("probe", "PROBE_TIMEOUT")

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// Example_eventPublishing demonstrates event publishing and subscription.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false // Synchronous for deterministic output

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe to events
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
	}, nil) // No filter, receive all events

	// Publish events
	tel.Events.PublishPassStarted("pass-123", "catalog/packages.yaml")
	tel.Events.PublishDecision("pass-123", "zlib", "no", false)
	tel.Events.PublishPassCompleted("pass-123", "completed", 25*time.Millisecond)

	// Output:
	// Event: pass.started - Configuration pass pass-123 started on catalog/packages.yaml
	// Event: package.decided - Package zlib resolved to no
	// Event: pass.completed - Configuration pass pass-123 completed with status: completed
}

// Example_passInstrumentation demonstrates instrumenting a complete pass.
func Example_passInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Enabled = false // keep span dumps off stdout
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start pass context
	passID := "pass-123"
	ctx = telemetry.WithPassContext(ctx, passID, "catalog/packages.yaml")

	// Evaluate packages (simulated)
	evaluatePackages(ctx)

	// End pass context
	telemetry.EndPassContext(ctx, passID, "completed", nil)

	fmt.Println("Pass instrumentation complete")
	// Output: Pass instrumentation complete
}

func evaluatePackages(ctx context.Context) {
	// Get logger from context
	logger := telemetry.FromContext(ctx)
	logger.WithPackage("zlib").Info("Deciding provisioning source")

	// Simulate probe work
	time.Sleep(10 * time.Millisecond)
}

// Example_probeInstrumentation demonstrates instrumenting probe execution.
func Example_probeInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Record probe operation
	err := telemetry.RecordProbeOperation(ctx, "zlib", "availability", "pkgconfig", func(ctx context.Context) error {
		// Simulate probe work
		time.Sleep(15 * time.Millisecond)
		return nil
	})

	if err == nil {
		fmt.Println("Probe operation completed successfully")
	}

	// Output: Probe operation completed successfully
}

// Example_instrumentedOperation demonstrates using the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start instrumented operation
	ic := telemetry.StartOperation(ctx, "catalog.load",
		attribute.String("catalog.path", "catalog/packages.cue"),
	)
	defer ic.End(nil)

	// Use the instrumented context
	ic.Logger.Info("Loading package catalog")

	// Simulate load
	time.Sleep(5 * time.Millisecond)

	ic.Logger.Debug("Catalog validation complete")

	fmt.Println("Operation instrumentation complete")
	// Output: Operation instrumentation complete
}

// Example_eventFiltering demonstrates event filtering.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe with level filter (only warnings and errors)
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Important event: %s\n", event.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	// Subscribe with type filter (only probe failures)
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Probe event: %s\n", event.Message)
	}, telemetry.FilterByType(telemetry.EventTypeProbeFailed))

	// Publish various events
	tel.Events.PublishPassStarted("pass-123", "catalog/packages.yaml")          // Info, filtered out
	tel.Events.PublishProbeFailed("pass-123", "gmp", "availability", "timeout") // Warning, passes both
	tel.Events.PublishConflict("pass-123", "yasm", "forced system unsatisfied") // Error, passes level filter

	// Output:
	// Important event: probe.failed
	// Probe event: availability probe for gmp failed: timeout
	// Important event: package.conflict
}

// Example_ciConfiguration demonstrates CI-oriented configuration.
func Example_ciConfiguration() {
	cfg := telemetry.CIConfig()

	// Customize for your environment
	cfg.ServiceName = "provisio"
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "ci"

	// Configure OTLP exporter for a collector sidecar
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "otel-collector:4317"
	cfg.Tracing.SamplingRate = 1.0

	// Configure metrics
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ":9090"

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("CI configuration validated")
	// Output: CI configuration validated
}

// Example_errorRecording demonstrates error recording with classification.
func Example_errorRecording() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a span
	ctx, span := tel.Tracer.StartProbeSpan(ctx, "gfortran", "availability", "command")
	defer span.End()

	// Simulate an error
	err := fmt.Errorf("executable not found in PATH")

	if err != nil {
		// Record error on span
		telemetry.RecordError(span, err)

		// Record error metric with classification
		tel.Metrics.RecordError("probe", "PROBE_FAILED")

		// Log error
		logger := telemetry.FromContext(ctx)
		logger.WithError(err).Error("Probe failed")
	}

	fmt.Println("Error recording complete")
	// Output: Error recording complete
}

// Example_multipleComponents demonstrates telemetry in a multi-component system.
func Example_multipleComponents() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific loggers
	engineLogger := tel.Logger.NewComponentLogger("engine")
	catalogLogger := tel.Logger.NewComponentLogger("catalog")
	probeLogger := tel.Logger.NewComponentLogger("probes")

	engineLogger.Info("Evaluator initialized")
	catalogLogger.Info("Catalog loaded")
	probeLogger.Info("Probe registry ready")

	fmt.Println("Multi-component logging complete")
	// Output: Multi-component logging complete
}
