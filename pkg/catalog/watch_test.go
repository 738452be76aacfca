package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReload(t *testing.T) {
	loader := testLoader(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("packages:\n  - name: zlib\n"), 0644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Catalog, 1)
	err := loader.Watch(ctx, path, func(c *Catalog) {
		select {
		case reloaded <- c:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Failed to start watch: %v", err)
	}
	defer loader.StopWatching()

	updated := "packages:\n  - name: zlib\n  - name: gmp\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("Failed to update catalog file: %v", err)
	}

	select {
	case cat := <-reloaded:
		if len(cat.Packages) != 2 {
			t.Errorf("Expected 2 packages after reload, got %d", len(cat.Packages))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for catalog reload")
	}
}

func TestWatchBadReloadKeepsPrevious(t *testing.T) {
	loader := testLoader(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("packages:\n  - name: zlib\n"), 0644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Catalog, 4)
	err := loader.Watch(ctx, path, func(c *Catalog) {
		reloaded <- c
	})
	if err != nil {
		t.Fatalf("Failed to start watch: %v", err)
	}
	defer loader.StopWatching()

	// A broken catalog must not reach the callback.
	bad := "packages:\n  - name: zlib\n  - name: zlib\n"
	if err := os.WriteFile(path, []byte(bad), 0644); err != nil {
		t.Fatalf("Failed to write bad catalog: %v", err)
	}

	good := "packages:\n  - name: zlib\n  - name: gmp\n  - name: mpfr\n"
	time.Sleep(time.Second)
	if err := os.WriteFile(path, []byte(good), 0644); err != nil {
		t.Fatalf("Failed to write good catalog: %v", err)
	}

	select {
	case cat := <-reloaded:
		if len(cat.Packages) != 3 {
			t.Errorf("Expected only the valid catalog to arrive, got %d packages", len(cat.Packages))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for catalog reload")
	}
}

func TestWatchTwice(t *testing.T) {
	loader := testLoader(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("packages:\n  - name: zlib\n"), 0644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loader.Watch(ctx, path, func(*Catalog) {}); err != nil {
		t.Fatalf("Failed to start watch: %v", err)
	}
	defer loader.StopWatching()

	if err := loader.Watch(ctx, path, func(*Catalog) {}); err == nil {
		t.Error("Expected error for second watch")
	}
}

func TestStopWatchingIdempotent(t *testing.T) {
	loader := testLoader(t)

	loader.StopWatching()
	loader.StopWatching()
}

func TestStopWatchingUnderLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := []byte("packages:\n  - name: zlib\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}

	// Stop while write events are still arriving. The event loop must
	// drain out through its closed channels, never crash.
	for i := 0; i < 20; i++ {
		loader := testLoader(t)

		ctx, cancel := context.WithCancel(context.Background())

		if err := loader.Watch(ctx, path, func(*Catalog) {}); err != nil {
			t.Fatalf("Failed to start watch: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				if err := os.WriteFile(path, content, 0644); err != nil {
					return
				}
			}
		}()

		loader.StopWatching()
		cancel()
		<-done
	}
}

func TestNoReloadAfterStop(t *testing.T) {
	loader := testLoader(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("packages:\n  - name: zlib\n"), 0644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Catalog, 1)
	onChange := func(c *Catalog) { reloaded <- c }
	if err := loader.Watch(ctx, path, onChange); err != nil {
		t.Fatalf("Failed to start watch: %v", err)
	}
	loader.StopWatching()

	// An event the loop picked up just before the stop must not arm a
	// reload once the watcher is gone.
	loader.scheduleReload(ctx, path, onChange)

	select {
	case <-reloaded:
		t.Fatal("Reload fired after StopWatching")
	case <-time.After(3 * reloadDebounce):
	}
}
