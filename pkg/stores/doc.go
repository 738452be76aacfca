// Package stores provides the pass-history persistence layer for provisio.
// It includes SQLite-based storage with WAL mode, connection pooling, and
// embedded schema migrations for configuration passes and their per-package
// decisions.
package stores
