package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one JSON file per user under a directory. Writes go
// through a temp file and rename so a crash never leaves a truncated
// record.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(userID string) string {
	// User IDs come from external systems; keep them out of path syntax.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, userID)
	return filepath.Join(s.dir, safe+".json")
}

// Load returns the record for userID, or a fresh phase-1 record if the
// user has no file yet.
func (s *FileStore) Load(ctx context.Context, userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(userID)
}

func (s *FileStore) load(userID string) (*Record, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return NewRecord(userID), nil
		}
		return nil, fmt.Errorf("read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record for %s: %w", userID, err)
	}
	return &rec, nil
}

// Apply applies the mutation if revision matches the stored record.
func (s *FileStore) Apply(ctx context.Context, userID string, revision int64, m Mutation) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	if rec.Revision != revision {
		return nil, fmt.Errorf("apply for %s at revision %d (stored %d): %w",
			userID, revision, rec.Revision, ErrConflict)
	}

	if err := applyMutation(rec, m); err != nil {
		return nil, err
	}

	if err := s.write(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FileStore) write(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	filename := s.path(rec.UserID)
	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmpFile, filename); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}
