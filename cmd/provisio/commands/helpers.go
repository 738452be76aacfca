package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/provisio/provisio/pkg/config"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/stores"
)

// loadSettings resolves the tool settings from the --config flag, the
// environment, and the defaults. --verbose bumps the log level.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Log.Level = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return settings, nil
}

// openHistory opens the pass-history database, creating its directory
// and schema as needed. The caller closes the store.
func openHistory(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// surfaceToken maps a preference to its configure-surface spelling.
func surfaceToken(p engine.Preference) string {
	switch p {
	case engine.UseBundled:
		return "no"
	case engine.ForceSystem:
		return "force"
	default:
		return "yes"
	}
}
