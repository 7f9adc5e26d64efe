// Package monitor persists the list of monitored systemd units.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Store keeps an ordered, duplicate-free list of unit names in a JSON file.
// Writes go to a temp file that is renamed over the target.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by the JSON file at path. The file is
// created on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the monitored units. A missing file is an empty list.
func (s *Store) Load() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save replaces the list, dropping duplicates while keeping first-seen order.
func (s *Store) Save(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(dedupe(names))
}

// Add appends name unless already present. It reports whether the list
// changed and returns the resulting list.
func (s *Store) Add(name string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.loadLocked()
	if err != nil {
		return nil, false, err
	}
	if slices.Contains(names, name) {
		return names, false, nil
	}
	names = append(names, name)
	if err := s.saveLocked(names); err != nil {
		return nil, false, err
	}
	return names, true, nil
}

// AddMany appends every name not yet present, in order, with a single write.
// It returns the names that were added and the new list length.
func (s *Store) AddMany(names []string) ([]string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked()
	if err != nil {
		return nil, 0, err
	}
	added := []string{}
	for _, name := range names {
		if slices.Contains(current, name) {
			continue
		}
		current = append(current, name)
		added = append(added, name)
	}
	if err := s.saveLocked(current); err != nil {
		return nil, 0, err
	}
	return added, len(current), nil
}

// Remove deletes name. It reports false when name was not monitored.
func (s *Store) Remove(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	i := slices.Index(names, name)
	if i < 0 {
		return false, nil
	}
	names = slices.Delete(names, i, i+1)
	if err := s.saveLocked(names); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) loadLocked() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read monitored list: %w", err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("decode monitored list %s: %w", s.path, err)
	}
	if names == nil {
		names = []string{}
	}
	return dedupe(names), nil
}

func (s *Store) saveLocked(names []string) error {
	if names == nil {
		names = []string{}
	}
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write monitored list: %w", err)
	}
	return nil
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".monitored-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
