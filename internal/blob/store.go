// Package blob stores device screenshots on the local filesystem.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store writes and lists screenshot blobs, one directory per device.
type Store struct {
	dir string
}

// NewStore creates a screenshot store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Write stores a screenshot captured at ts for the given device and returns
// the generated filename.
func (s *Store) Write(deviceID string, ts time.Time, data []byte) (string, error) {
	deviceDir := filepath.Join(s.dir, deviceID)
	if err := os.MkdirAll(deviceDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create device directory: %w", err)
	}

	filename := fmt.Sprintf("screenshot_%s.png", ts.UTC().Format("20060102-150405.000"))
	path := filepath.Join(deviceDir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	return filename, nil
}

// List returns the stored screenshot filenames for a device, oldest first.
// A device with no screenshots yields an empty slice.
func (s *Store) List(deviceID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, deviceID))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list screenshots: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return names, nil
}

// Path returns the filesystem path for a stored screenshot.
func (s *Store) Path(deviceID, filename string) string {
	return filepath.Join(s.dir, deviceID, filename)
}
