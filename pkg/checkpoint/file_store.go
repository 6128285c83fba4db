package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// FileStore keeps one JSON file per job
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a store under dir, or the default data directory
// when dir is empty.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dataDir, err := DataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "jobs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return filepath.Join(s.dir, jobID+".json"), nil
}

func (s *FileStore) Load(ctx context.Context, jobID string) (*JobProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(jobID)
}

func (s *FileStore) load(jobID string) (*JobProgress, error) {
	path, err := s.path(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var p JobProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode job file: %w", err)
	}
	return &p, nil
}

func (s *FileStore) Save(ctx context.Context, p *JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(p)
}

// save writes to a temporary file and renames it over the old one
func (s *FileStore) save(p *JobProgress) error {
	path, err := s.path(p.JobID)
	if err != nil {
		return err
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary job file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(p); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode job progress: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync job file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close job file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace job file: %w", err)
	}
	return nil
}

func (s *FileStore) Drain(ctx context.Context, jobID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(jobID)
	if err != nil || p == nil {
		return nil, err
	}
	ids := p.TempIDs
	if len(ids) == 0 {
		return nil, nil
	}
	p.TempIDs = nil
	if err := s.save(p); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *FileStore) Delete(ctx context.Context, jobID string) error {
	path, err := s.path(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete job file: %w", err)
	}
	return nil
}

// DataDirectory returns the per-user data directory for the current OS
func DataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "twscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "twscraper")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "twscraper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "twscraper")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}

// MemoryStore keeps job progress in process memory
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*JobProgress
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*JobProgress)}
}

func (s *MemoryStore) Load(ctx context.Context, jobID string) (*JobProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return clone(p), nil
}

func (s *MemoryStore) Save(ctx context.Context, p *JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[p.JobID] = clone(p)
	return nil
}

func (s *MemoryStore) Drain(ctx context.Context, jobID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.jobs[jobID]
	if !ok || len(p.TempIDs) == 0 {
		return nil, nil
	}
	ids := p.TempIDs
	p.TempIDs = nil
	return ids, nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}
