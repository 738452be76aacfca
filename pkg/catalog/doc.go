// Package catalog loads and validates package catalogs.
//
// A catalog is a single CUE or YAML file listing package descriptors in
// evaluation order. Each descriptor names the package, an optional
// default preference, availability and requirement probes, and pre and
// post hooks. CUE catalogs are unified with an embedded schema before
// decoding; YAML catalogs get the equivalent checks from struct
// validation after decode. Empty names, duplicate names, and incomplete
// probe specs are fatal at load time.
//
// The loader can also watch a catalog file and reload it with a short
// debounce, which backs watch mode. Preference handling lives here too:
// a YAML prefs file and --with-system flags both produce a Preferences
// map, and ResolvePreference applies the flag > file > default
// precedence.
package catalog
