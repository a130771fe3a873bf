package vault

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// storeContract exercises the behavior every Store implementation
// shares.
func storeContract(t *testing.T, s Store) {
	t.Helper()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := s.Set("k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, ok, err := s.Get("k"); err != nil || !ok || got != "v1" {
		t.Fatalf("Get = %q ok=%v err=%v, want v1", got, ok, err)
	}

	if err := s.Set("k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _, _ := s.Get("k"); got != "v2" {
		t.Fatalf("Get after overwrite = %q, want v2", got)
	}

	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Fatal("record should be gone after Remove")
	}
	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove of absent key should be a no-op: %v", err)
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestFileStore_Contract(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	storeContract(t, s)
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	storeContract(t, s)
}

func TestMemoryStore_CapacityCountsAllKeys(t *testing.T) {
	s := NewMemoryStoreWithLimit(10)
	if err := s.Set("a", "12345"); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := s.Set("b", "123456"); !errors.Is(err, ErrCapacity) {
		t.Errorf("err = %v, want ErrCapacity once total exceeds limit", err)
	}
	// Replacing an existing key frees its old bytes first.
	if err := s.Set("a", "1234567890"); err != nil {
		t.Errorf("replace within limit: %v", err)
	}
}

func TestFileStore_Capacity(t *testing.T) {
	s, err := NewFileStoreWithLimit(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("NewFileStoreWithLimit: %v", err)
	}
	if err := s.Set("k", "12345"); !errors.Is(err, ErrCapacity) {
		t.Errorf("err = %v, want ErrCapacity", err)
	}
	if err := s.Set("k", "1234"); err != nil {
		t.Errorf("within limit: %v", err)
	}
}

func TestSQLiteStore_Capacity(t *testing.T) {
	s, err := NewSQLiteStoreWithLimit(filepath.Join(t.TempDir(), "vault.db"), 4)
	if err != nil {
		t.Fatalf("NewSQLiteStoreWithLimit: %v", err)
	}
	defer s.Close()
	if err := s.Set("k", "12345"); !errors.Is(err, ErrCapacity) {
		t.Errorf("err = %v, want ErrCapacity", err)
	}
}

func TestFileStore_SanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key := "eve_vault_v1_telegram:12345/../../etc"
	if err := s.Set(key, "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, ok, _ := s.Get(key); !ok || got != "v" {
		t.Fatalf("round trip through sanitized path failed: %q ok=%v", got, ok)
	}
	if !strings.HasPrefix(s.path(key), dir) {
		t.Errorf("path %q escaped store dir", s.path(key))
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if got, ok, _ := s2.Get("k"); !ok || got != "v" {
		t.Errorf("Get after reopen = %q ok=%v, want v", got, ok)
	}
}

func TestOpenStore_Drivers(t *testing.T) {
	dir := t.TempDir()

	for _, driver := range []string{"memory", "file", "sqlite", ""} {
		s, closeFn, err := OpenStore(driver, filepath.Join(dir, driver, "vault.db"), 0)
		if err != nil {
			t.Fatalf("OpenStore(%q): %v", driver, err)
		}
		if err := s.Set("k", "v"); err != nil {
			t.Errorf("Set via %q driver: %v", driver, err)
		}
		if err := closeFn(); err != nil {
			t.Errorf("close %q driver: %v", driver, err)
		}
	}

	if _, _, err := OpenStore("redis", "", 0); err == nil {
		t.Error("unknown driver should error")
	}
}
