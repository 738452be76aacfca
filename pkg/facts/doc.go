// Package facts collects a read-only snapshot of the build host for
// probes: platform and architecture, os-release identity, kernel,
// hostname, CPU count, and toolchain paths. Collection happens once per
// configuration pass; sources that fail leave their fields empty rather
// than failing the pass.
package facts
