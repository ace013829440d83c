package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/sjoeboo/commander/internal/logging"
)

// maxBackupGenerations is the number of rolling backups kept per state file.
const maxBackupGenerations = 3

// Store persists one JSON state file with crash-safe writes: temp file,
// fsync, rolling backups, atomic rename. Load falls back to the newest
// readable backup when the main file is corrupted.
type Store struct {
	path string
	mu   sync.Mutex
	log  *slog.Logger
}

// NewStore creates a store for path and removes any temp file left over
// from a previous crash.
func NewStore(path string) *Store {
	s := &Store{
		path: path,
		log:  logging.ForComponent(logging.CompStorage),
	}
	s.cleanupTempFiles()
	return s
}

// Path returns the file path this store writes.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) cleanupTempFiles() {
	tmpPath := s.path + ".tmp"
	if _, err := os.Stat(tmpPath); err == nil {
		if err := os.Remove(tmpPath); err != nil {
			s.log.Warn("failed to remove leftover temp file", "path", tmpPath, "error", err)
		} else {
			s.log.Info("removed leftover temp file", "path", tmpPath)
		}
	}
}

// Save marshals v and writes it atomically:
//  1. write to a temp file (0600)
//  2. fsync the temp file
//  3. rotate backups
//  4. rename temp over the final path
func (s *Store) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	// Without fsync the rename could land before the data does.
	if err := syncFile(tmpPath); err != nil {
		s.log.Warn("fsync failed", "path", tmpPath, "error", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		s.rotateBackups()
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("finalize save: %w", err)
	}
	return nil
}

// Load unmarshals the state file into v. Returns false when no file
// exists yet. A corrupted main file triggers backup recovery.
func (s *Store) Load(v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return false, nil
	}

	if err := s.loadFromFile(s.path, v); err != nil {
		s.log.Warn("state file corrupted, attempting backup recovery", "path", s.path, "error", err)
		if rerr := s.recoverFromBackups(v); rerr != nil {
			return false, fmt.Errorf("load %s: %w", s.path, err)
		}
		s.log.Info("recovered state from backup", "path", s.path)
	}
	return true, nil
}

func (s *Store) loadFromFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal JSON: %w", err)
	}
	return nil
}

func (s *Store) recoverFromBackups(v any) error {
	bakPath := s.path + ".bak"

	paths := []string{bakPath}
	for i := 1; i < maxBackupGenerations; i++ {
		paths = append(paths, fmt.Sprintf("%s.%d", bakPath, i))
	}

	for _, tryPath := range paths {
		if _, err := os.Stat(tryPath); os.IsNotExist(err) {
			continue
		}
		if err := s.loadFromFile(tryPath, v); err != nil {
			s.log.Warn("backup also corrupted", "path", tryPath, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("all backups corrupted or missing")
}

// rotateBackups shifts .bak -> .bak.1 -> .bak.2 and copies the current
// file to .bak.
func (s *Store) rotateBackups() {
	bakPath := s.path + ".bak"

	for i := maxBackupGenerations - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", bakPath, i-1)
		if i == 1 {
			oldPath = bakPath
		}
		newPath := fmt.Sprintf("%s.%d", bakPath, i)

		if i == maxBackupGenerations-1 {
			os.Remove(newPath)
		}
		if _, err := os.Stat(oldPath); err == nil {
			if err := os.Rename(oldPath, newPath); err != nil {
				s.log.Warn("failed to rotate backup", "from", oldPath, "to", newPath, "error", err)
			}
		}
	}

	if err := copyFile(s.path, bakPath); err != nil {
		s.log.Warn("failed to create backup", "path", bakPath, "error", err)
	}
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}
