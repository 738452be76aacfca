package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/provisio/provisio/pkg/engine"
)

// Preferences maps package names to explicit preferences, collected from
// a prefs file or from repeated --with-system flags.
type Preferences map[string]engine.Preference

// LoadPreferences reads a YAML prefs file mapping package names to
// preference tokens (yes, no, force, or their long forms).
func LoadPreferences(path string) (Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewCatalogError(fmt.Sprintf("reading preferences %s", path), err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, engine.NewCatalogError("preferences do not parse", err).
			WithCode(engine.ErrCodeValidation).
			WithDetail("path", path)
	}

	prefs := make(Preferences, len(raw))
	for pkg, token := range raw {
		p, err := engine.ParsePreference(token)
		if err != nil {
			return nil, engine.NewCatalogError(fmt.Sprintf("preference for %s: %v", pkg, err), nil).
				WithCode(engine.ErrCodeValidation).
				WithPackage(pkg).
				WithDetail("path", path)
		}
		prefs[pkg] = p
	}
	return prefs, nil
}

// ParseWithSystemFlags parses repeated --with-system package=token
// values into a preference map.
func ParseWithSystemFlags(flags []string) (Preferences, error) {
	prefs := make(Preferences, len(flags))
	for _, f := range flags {
		pkg, token, ok := strings.Cut(f, "=")
		if !ok || pkg == "" {
			return nil, fmt.Errorf("bad --with-system value %q (want package=yes|no|force)", f)
		}
		p, err := engine.ParsePreference(token)
		if err != nil {
			return nil, fmt.Errorf("--with-system %s: %w", pkg, err)
		}
		prefs[pkg] = p
	}
	return prefs, nil
}

// ResolvePreference picks the effective preference for a descriptor:
// flags beat the prefs file, the prefs file beats the catalog default,
// and the fallback is the system preference.
func ResolvePreference(d *Descriptor, flags, file Preferences) (engine.Preference, error) {
	if p, ok := flags[d.Name]; ok {
		return p, nil
	}
	if p, ok := file[d.Name]; ok {
		return p, nil
	}
	return d.DefaultPreference()
}
