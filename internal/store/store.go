// Package store is the client-side key-value persistence layer used to
// save and restore tab layout and transcripts. Backends are selected by
// configuration; callers treat every failure as soft (log and continue).
package store

import (
	"log"

	"github.com/webtermd/webterm/internal/config"
)

// KeyPrefix namespaces every key this application writes.
const KeyPrefix = "webterm:"

// Store is a minimal key-value interface. Get reports presence separately
// from errors so a missing key is not a failure.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Namespaced prefixes a key with the application namespace.
func Namespaced(key string) string {
	return KeyPrefix + key
}

// New builds the configured store backend. Backends that fail to open fall
// back to the in-memory store so the client keeps working without
// persistence.
func New(cs config.ClientSettings) Store {
	switch cs.StoreBackend {
	case "sqlite":
		s, err := NewSQLiteStore(cs.StorePath)
		if err != nil {
			log.Printf("[store] sqlite unavailable (%v), falling back to memory", err)
			return NewMemoryStore()
		}
		log.Printf("[store] using sqlite store: %s", cs.StorePath)
		return s
	case "redis":
		s, err := NewRedisStore(cs.RedisAddr, cs.RedisPass)
		if err != nil {
			log.Printf("[store] redis unavailable (%v), falling back to memory", err)
			return NewMemoryStore()
		}
		log.Printf("[store] using redis store: %s", cs.RedisAddr)
		return s
	default:
		return NewMemoryStore()
	}
}
