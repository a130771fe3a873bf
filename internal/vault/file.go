package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one file per key under a directory, the same way the
// cron job store persists its state. Writes go through a temp file and
// rename so a crash never leaves a half-written record.
type FileStore struct {
	dir      string
	maxBytes int
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// NewFileStoreWithLimit rejects values larger than maxBytes with
// ErrCapacity.
func NewFileStoreWithLimit(dir string, maxBytes int) (*FileStore, error) {
	s, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	s.maxBytes = maxBytes
	return s, nil
}

func (s *FileStore) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(s.dir, safe+".json")
}

func (s *FileStore) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read vault record: %w", err)
	}
	return string(data), true, nil
}

func (s *FileStore) Set(key, value string) error {
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return fmt.Errorf("vault record %d bytes over %d budget: %w", len(value), s.maxBytes, ErrCapacity)
	}

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0644); err != nil {
		return fmt.Errorf("write vault record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit vault record: %w", err)
	}
	return nil
}

func (s *FileStore) Remove(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove vault record: %w", err)
	}
	return nil
}
