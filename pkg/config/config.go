package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/provisio/provisio/pkg/telemetry"
)

// Default locations, relative to the build tree the tool runs in.
const (
	DefaultMarkerDir   = "var/lib/provisio/installed"
	DefaultHistoryPath = "var/lib/provisio/history.db"

	// DefaultProbeTimeout bounds a single probe execution.
	DefaultProbeTimeout = 30 * time.Second
)

var validate = validator.New()

// Duration is a time.Duration that unmarshals from YAML scalars in
// time.ParseDuration syntax ("30s", "2m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Settings is the provisio tool configuration. Every field has a working
// default; a config file and PROVISIO_* environment variables override it.
type Settings struct {
	// MarkerDir is the installation-records directory consulted for
	// prior-build markers.
	MarkerDir string `yaml:"marker_dir"`

	// HistoryPath is the SQLite pass-history database path, used when
	// history recording is requested.
	HistoryPath string `yaml:"history_path"`

	// Log configures structured logging.
	Log LogSettings `yaml:"log"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsSettings `yaml:"metrics"`

	// Tracing configures OpenTelemetry trace export.
	Tracing TracingSettings `yaml:"tracing"`

	// Probes configures probe execution.
	Probes ProbeSettings `yaml:"probes"`
}

// LogSettings selects the log level and format.
type LogSettings struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// MetricsSettings controls the metrics HTTP endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// TracingSettings controls trace export.
type TracingSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint string `yaml:"endpoint"`
}

// ProbeSettings bounds probe execution.
type ProbeSettings struct {
	// Timeout applies per probe run.
	Timeout Duration `yaml:"timeout"`

	// BaseDir anchors relative script and module paths in probe specs.
	// Empty means paths resolve against the catalog file's directory.
	BaseDir string `yaml:"base_dir"`
}

// Default returns the settings used when no config file exists.
func Default() *Settings {
	return &Settings{
		MarkerDir:   DefaultMarkerDir,
		HistoryPath: DefaultHistoryPath,
		Log:         LogSettings{Level: "info", Format: "console"},
		Metrics:     MetricsSettings{Listen: ":9090"},
		Tracing:     TracingSettings{Exporter: "stdout"},
		Probes:      ProbeSettings{Timeout: Duration(DefaultProbeTimeout)},
	}
}

// Load builds the settings from defaults, the YAML file at path when one
// is given, and finally the PROVISIO_* environment, in that order.
// Unknown keys in the file are rejected.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config %s does not parse: %w", path, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// applyEnv folds the PROVISIO_* environment variables into the settings.
func (s *Settings) applyEnv() error {
	if v := os.Getenv("PROVISIO_LOG_LEVEL"); v != "" {
		s.Log.Level = v
	}
	if v := os.Getenv("PROVISIO_LOG_FORMAT"); v != "" {
		s.Log.Format = v
	}
	if v := os.Getenv("PROVISIO_MARKER_DIR"); v != "" {
		s.MarkerDir = v
	}
	if v := os.Getenv("PROVISIO_HISTORY_PATH"); v != "" {
		s.HistoryPath = v
	}
	if v := os.Getenv("PROVISIO_PROBE_TIMEOUT"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROVISIO_PROBE_TIMEOUT: bad duration %q: %w", v, err)
		}
		s.Probes.Timeout = Duration(parsed)
	}
	return nil
}

// Validate checks the settings for internal consistency.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.MarkerDir == "" {
		return fmt.Errorf("marker_dir must not be empty")
	}
	if s.Metrics.Enabled && s.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	if s.Probes.Timeout < 0 {
		return fmt.Errorf("probes.timeout must not be negative")
	}
	return nil
}

// TelemetryConfig maps the settings onto the telemetry stack's
// configuration, carrying the binary's version for service identity.
func (s *Settings) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	if s.Log.Level != "" {
		cfg.Logging.Level = s.Log.Level
	}
	if s.Log.Format != "" {
		cfg.Logging.Format = s.Log.Format
	}
	cfg.Metrics.Enabled = s.Metrics.Enabled
	if s.Metrics.Listen != "" {
		cfg.Metrics.ListenAddress = s.Metrics.Listen
	}
	cfg.Tracing.Enabled = s.Tracing.Enabled
	if s.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = s.Tracing.Exporter
	}
	cfg.Tracing.Endpoint = s.Tracing.Endpoint
	return cfg
}
