package store

import (
	"path/filepath"
	"testing"

	"github.com/webtermd/webterm/internal/config"
)

func testRoundTrip(t *testing.T, s Store) {
	t.Helper()

	key := Namespaced("test-key")

	if _, ok, err := s.Get(key); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(key, `{"tabs":[]}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get after Set: ok=%v err=%v", ok, err)
	}
	if v != `{"tabs":[]}` {
		t.Errorf("unexpected value %q", v)
	}

	if err := s.Set(key, "v2"); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}
	if v, _, _ := s.Get(key); v != "v2" {
		t.Errorf("expected overwrite to win, got %q", v)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(key); ok {
		t.Error("expected key gone after Delete")
	}
	// Deleting a missing key is not an error.
	if err := s.Delete(key); err != nil {
		t.Errorf("Delete (missing): %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testRoundTrip(t, s)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	testRoundTrip(t, s)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Set(Namespaced("session-state"), "saved"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore (reopen): %v", err)
	}
	defer s2.Close()

	v, ok, err := s2.Get(Namespaced("session-state"))
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if v != "saved" {
		t.Errorf("expected persisted value, got %q", v)
	}
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	s := New(config.ClientSettings{StoreBackend: "memory"})
	defer s.Close()
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected memory store, got %T", s)
	}
}

func TestFactoryFallsBackWhenRedisUnreachable(t *testing.T) {
	// Port 1 is never a Redis server; the factory must fall back rather
	// than fail.
	s := New(config.ClientSettings{StoreBackend: "redis", RedisAddr: "127.0.0.1:1"})
	defer s.Close()
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected fallback to memory store, got %T", s)
	}
}
