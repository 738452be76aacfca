// Package config loads the provisio tool configuration.
//
// # Overview
//
// Settings control where the tool finds its collaborating state (marker
// directory, history database) and how it behaves (log level and format,
// metrics and tracing, probe timeouts). They are distinct from the
// catalog, which describes packages; settings describe the tool itself.
//
// # Precedence
//
// Settings are resolved in three layers, later layers winning:
//
//  1. Built-in defaults (Default).
//  2. The YAML config file, when one is passed. Unknown keys are
//     rejected so typos fail loudly.
//  3. PROVISIO_* environment variables: PROVISIO_LOG_LEVEL,
//     PROVISIO_LOG_FORMAT, PROVISIO_MARKER_DIR, PROVISIO_HISTORY_PATH,
//     and PROVISIO_PROBE_TIMEOUT.
//
// # Example
//
//	marker_dir: /opt/tree/var/lib/provisio/installed
//	history_path: /opt/tree/var/lib/provisio/history.db
//	log:
//	  level: debug
//	  format: json
//	metrics:
//	  enabled: true
//	  listen: ":9090"
//	probes:
//	  timeout: 45s
//
// Durations use time.ParseDuration syntax. Validation combines struct
// tags (go-playground/validator) with consistency checks that tags
// cannot express.
package config
