package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fernet/fernet-go"
)

// CookieName is the credential cookie set on successful verification.
const CookieName = "webterm_session"

// DefaultCredentialMaxAge is how long an issued credential stays valid.
// Expiry is absolute: the browser re-authenticates after this regardless
// of activity.
const DefaultCredentialMaxAge = 24 * time.Hour

type credentialEntry struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CredentialStore issues and validates session credentials. The browser
// holds a fernet token (signed and encrypted) whose payload is an opaque
// store ID; both the token TTL and the server-side entry must agree for a
// credential to be accepted.
type CredentialStore struct {
	mu     sync.RWMutex
	creds  map[string]credentialEntry
	key    *fernet.Key
	maxAge time.Duration
	nowFn  func() time.Time
}

// NewCredentialStore loads (or generates and persists) the fernet signing
// key under dataPath and returns an empty store.
func NewCredentialStore(dataPath string, maxAge time.Duration) (*CredentialStore, error) {
	if maxAge <= 0 {
		maxAge = DefaultCredentialMaxAge
	}
	key, err := loadOrCreateKey(dataPath)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{
		creds:  make(map[string]credentialEntry),
		key:    key,
		maxAge: maxAge,
		nowFn:  time.Now,
	}, nil
}

func loadOrCreateKey(dataPath string) (*fernet.Key, error) {
	keyPath := filepath.Join(dataPath, "credential.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		key, derr := fernet.DecodeKey(string(data))
		if derr != nil {
			return nil, fmt.Errorf("decode credential key: %w", derr)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read credential key: %w", err)
	}

	var key fernet.Key
	if err := key.Generate(); err != nil {
		return nil, fmt.Errorf("generate credential key: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(key.Encode()), 0600); err != nil {
		return nil, fmt.Errorf("save credential key: %w", err)
	}
	return &key, nil
}

// MaxAge returns the configured credential lifetime.
func (s *CredentialStore) MaxAge() time.Duration {
	return s.maxAge
}

// Issue creates a new authenticated credential and returns the signed
// token for the cookie value.
func (s *CredentialStore) Issue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := hex.EncodeToString(b)

	now := s.nowFn()
	s.mu.Lock()
	s.creds[id] = credentialEntry{IssuedAt: now, ExpiresAt: now.Add(s.maxAge)}
	s.mu.Unlock()

	tok, err := fernet.EncryptAndSign([]byte(id), s.key)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return string(tok), nil
}

// Validate checks a cookie token: the fernet signature and TTL must verify
// and the referenced credential must still exist and be unexpired.
func (s *CredentialStore) Validate(token string) bool {
	if token == "" {
		return false
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), s.maxAge, []*fernet.Key{s.key})
	if msg == nil {
		return false
	}

	s.mu.RLock()
	entry, ok := s.creds[string(msg)]
	s.mu.RUnlock()
	return ok && s.nowFn().Before(entry.ExpiresAt)
}

// Revoke invalidates the credential referenced by the token. Unknown or
// garbage tokens are a no-op.
func (s *CredentialStore) Revoke(token string) {
	msg := fernet.VerifyAndDecrypt([]byte(token), s.maxAge, []*fernet.Key{s.key})
	if msg == nil {
		return
	}
	s.mu.Lock()
	delete(s.creds, string(msg))
	s.mu.Unlock()
}

// Sweep removes expired credentials. Called periodically.
func (s *CredentialStore) Sweep() int {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.creds {
		if now.After(entry.ExpiresAt) {
			delete(s.creds, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of live credentials.
func (s *CredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
