package stores

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomicFile replaces path with data via a temp file in the same
// directory: write, fsync, close, then rename. Readers never observe a
// partial record and a crash mid-write leaves the old contents intact.
func writeAtomicFile(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanup := func(step string, err error) error {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s %s: %w", step, tmpPath, err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		return cleanup("writing", err)
	}
	// Flush to disk before the rename so the swap never installs an empty file
	if err := tmpFile.Sync(); err != nil {
		return cleanup("syncing", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
