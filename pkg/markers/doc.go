// Package markers reads the build-state marker directory. A package
// counts as already built from source when an entry matching `<name>-*`
// exists; entries are version-suffixed files left by the external build
// step. A missing directory means no markers, never an error.
package markers
