package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLimit is how many days the archive keeps by default.
const DefaultLimit = 30

// Store persists the archive as a JSON array on disk. Writes go through a
// temp file rename so readers never observe a half-written archive.
type Store struct {
	path  string
	limit int
}

// NewStore creates a store for the given file path. A non-positive limit
// falls back to DefaultLimit.
func NewStore(path string, limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{path: path, limit: limit}
}

// Load reads the archive. A missing file is an empty archive.
func (s *Store) Load() ([]DayRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive: %w", err)
	}
	var records []DayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}
	return records, nil
}

// Save writes the full archive.
func (s *Store) Save(records []DayRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}
	return nil
}

// Upsert merges one day's record into the archive on disk.
func (s *Store) Upsert(rec DayRecord) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	return s.Save(Merge(records, rec, s.limit))
}
