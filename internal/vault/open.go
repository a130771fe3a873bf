package vault

import (
	"fmt"
	"path/filepath"
)

// OpenStore builds the configured store implementation. The returned
// closer is a no-op for stores without resources to release.
func OpenStore(driver, path string, maxBytes int) (Store, func() error, error) {
	noop := func() error { return nil }

	switch driver {
	case "memory":
		return NewMemoryStoreWithLimit(maxBytes), noop, nil
	case "file":
		s, err := NewFileStoreWithLimit(filepath.Dir(path), maxBytes)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "", "sqlite":
		s, err := NewSQLiteStoreWithLimit(path, maxBytes)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vault driver %q", driver)
	}
}
