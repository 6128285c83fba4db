package storage

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Asset areas under the root. Live assets belong to active elements,
// unlinked ones wait out their grace period, archived ones are kept cold.
const (
	areaLive     = "live"
	areaUnlinked = "unlinked"
	areaArchive  = "archive"
)

// Manager handles retained asset files. Each asset key is a directory
// holding the media files of one content item.
type Manager struct {
	root       string
	archiveDir string
	mu         sync.Mutex
}

// NewManager creates the asset areas under root. An empty archiveDir puts
// cold storage under root as well.
func NewManager(root, archiveDir string) (*Manager, error) {
	if archiveDir == "" {
		archiveDir = filepath.Join(root, areaArchive)
	}
	m := &Manager{root: root, archiveDir: archiveDir}
	for _, dir := range []string{m.area(areaLive), m.area(areaUnlinked), archiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create asset directory: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) area(name string) string {
	if name == areaArchive {
		return m.archiveDir
	}
	return filepath.Join(m.root, name)
}

func (m *Manager) path(area, key string) (string, error) {
	clean := filepath.Clean(key)
	if key == "" || clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid asset key %q", key)
	}
	return filepath.Join(m.area(area), clean), nil
}

// Save writes one file of the asset and returns its md5 hex digest. The
// file is written to a temporary name and renamed into place.
func (m *Manager) Save(key, name string, r io.Reader) (string, error) {
	dir, err := m.path(areaLive, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}

	filename := filepath.Join(dir, filepath.Base(name))
	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	hash := md5.New()
	_, err = io.Copy(io.MultiWriter(out, hash), r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to save asset data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Exists reports whether the asset is live
func (m *Manager) Exists(key string) bool {
	dir, err := m.path(areaLive, key)
	if err != nil {
		return false
	}
	_, err = os.Stat(dir)
	return err == nil
}

// Detach moves a live asset to the unlinked area
func (m *Manager) Detach(key string) error {
	return m.move(key, areaUnlinked, areaLive)
}

// Archive moves the asset to cold storage from wherever it is
func (m *Manager) Archive(key string) error {
	return m.move(key, areaArchive, areaLive, areaUnlinked)
}

// Remove deletes the retained copy. Archived assets are never removed.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, area := range []string{areaLive, areaUnlinked} {
		dir, err := m.path(area, key)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove asset: %w", err)
		}
	}
	return nil
}

// move relocates key into dst from the first source area that has it.
// A key that is already in dst, or nowhere, is left alone.
func (m *Manager) move(key, dst string, sources ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, err := m.path(dst, key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	for _, src := range sources {
		from, err := m.path(src, key)
		if err != nil {
			return err
		}
		if _, err := os.Stat(from); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create asset directory: %w", err)
		}
		if err := os.Rename(from, target); err != nil {
			return fmt.Errorf("failed to move asset: %w", err)
		}
		return nil
	}
	return nil
}

// Locate returns the directory currently holding the asset, or "" if none
func (m *Manager) Locate(key string) string {
	for _, area := range []string{areaLive, areaUnlinked, areaArchive} {
		dir, err := m.path(area, key)
		if err != nil {
			return ""
		}
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
	}
	return ""
}

// Root returns the asset root directory
func (m *Manager) Root() string {
	return m.root
}
