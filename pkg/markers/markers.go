package markers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Marker is one installation record: a `<name>-<version>` entry in the
// marker directory left behind by a previous from-source build.
type Marker struct {
	Name    string    `json:"name"`
	Version string    `json:"version,omitempty"`
	Entry   string    `json:"entry"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

// Dir reads and writes a marker directory. The engine only reads; Record
// exists for tests and for the external build step's tooling.
type Dir struct {
	path   string
	logger zerolog.Logger
}

// NewDir creates a marker directory handle. The directory does not have
// to exist: a missing directory simply has no markers.
func NewDir(path string, logger zerolog.Logger) *Dir {
	return &Dir{
		path:   path,
		logger: logger.With().Str("component", "markers").Logger(),
	}
}

// Path returns the marker directory path.
func (d *Dir) Path() string {
	return d.path
}

// Has reports whether any entry matching `<name>-*` exists.
func (d *Dir) Has(name string) (bool, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading marker directory %s: %w", d.path, err)
	}

	prefix := name + "-"
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			return true, nil
		}
	}
	return false, nil
}

// List returns every marker in the directory, in directory order.
func (d *Dir) List() ([]Marker, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading marker directory %s: %w", d.path, err)
	}

	markers := make([]Marker, 0, len(entries))
	for _, entry := range entries {
		name, version := splitMarker(entry.Name())
		m := Marker{
			Name:    name,
			Version: version,
			Entry:   entry.Name(),
		}
		if info, err := entry.Info(); err == nil {
			m.ModTime = info.ModTime()
		}
		markers = append(markers, m)
	}
	return markers, nil
}

// Record writes a `<name>-<version>` marker, creating the directory if
// needed.
func (d *Dir) Record(name, version string) error {
	if name == "" {
		return fmt.Errorf("marker name must not be empty")
	}
	if version == "" {
		return fmt.Errorf("marker version must not be empty")
	}

	if err := os.MkdirAll(d.path, 0755); err != nil {
		return fmt.Errorf("creating marker directory %s: %w", d.path, err)
	}

	entry := filepath.Join(d.path, name+"-"+version)
	if err := os.WriteFile(entry, nil, 0644); err != nil {
		return fmt.Errorf("writing marker %s: %w", entry, err)
	}

	d.logger.Debug().Str("package", name).Str("version", version).Msg("Marker recorded")
	return nil
}

// splitMarker splits an entry at the first dash that starts the version,
// taken to be the first dash followed by a digit. Entries without a
// version-looking suffix come back whole.
func splitMarker(entry string) (name, version string) {
	for i := 0; i+1 < len(entry); i++ {
		if entry[i] == '-' && entry[i+1] >= '0' && entry[i+1] <= '9' {
			return entry[:i], entry[i+1:]
		}
	}
	return entry, ""
}
