// Package storage persists the bulletin board logs as JSON files so a
// coordinator restart can resume a running election by replaying them.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"openvote-backend/board"
)

// logFile is the on-disk shape of one persisted board log.
type logFile struct {
	Entries []*board.Entry `json:"entries"`
}

// JSONStore writes each board log to <basePath>/<name>_log.json.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewJSONStore creates the storage directory if needed.
func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &JSONStore{basePath: basePath}, nil
}

// SaveLog persists the full entry sequence for one log.
func (s *JSONStore) SaveLog(name string, entries []*board.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(logFile{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s log: %w", name, err)
	}

	path := s.logPath(name)

	// Write to a temporary file first, then rename: a crash mid-write must
	// never leave a truncated log behind.
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s log: %w", name, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save %s log: %w", name, err)
	}

	return nil
}

// LoadLog reads one persisted log. A missing file is an empty log.
func (s *JSONStore) LoadLog(name string) ([]*board.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.logPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s log: %w", name, err)
	}

	var file logFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s log: %w", name, err)
	}
	return file.Entries, nil
}

func (s *JSONStore) logPath(name string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s_log.json", name))
}
