package auth

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T, maxAge time.Duration) *CredentialStore {
	t.Helper()
	store, err := NewCredentialStore(t.TempDir(), maxAge)
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}
	return store
}

func TestIssueAndValidate(t *testing.T) {
	store := newTestStore(t, time.Hour)

	token, err := store.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !store.Validate(token) {
		t.Error("freshly issued token should validate")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	store := newTestStore(t, time.Hour)

	if store.Validate("") {
		t.Error("empty token must not validate")
	}
	if store.Validate("not-a-fernet-token") {
		t.Error("garbage token must not validate")
	}
}

func TestValidateRejectsForeignKey(t *testing.T) {
	a := newTestStore(t, time.Hour)
	b := newTestStore(t, time.Hour)

	token, err := a.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if b.Validate(token) {
		t.Error("token signed by another key must not validate")
	}
}

func TestRevoke(t *testing.T) {
	store := newTestStore(t, time.Hour)

	token, err := store.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	store.Revoke(token)
	if store.Validate(token) {
		t.Error("revoked token must not validate")
	}

	// Revoking again, or revoking garbage, must not panic.
	store.Revoke(token)
	store.Revoke("garbage")
}

func TestExpiry(t *testing.T) {
	store := newTestStore(t, time.Hour)
	now := time.Now()
	store.nowFn = func() time.Time { return now }

	token, err := store.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if store.Validate(token) {
		t.Error("expired credential must not validate")
	}

	if removed := store.Sweep(); removed != 1 {
		t.Errorf("expected sweep to remove 1 credential, got %d", removed)
	}
	if store.Count() != 0 {
		t.Errorf("expected empty store after sweep, got %d", store.Count())
	}
}

func TestKeyPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	first, err := NewCredentialStore(dir, time.Hour)
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}
	token, err := first.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// A second store over the same data path shares the signing key, so
	// the fernet layer verifies — but the in-memory entry is gone, so the
	// credential is still rejected (server restart invalidates sessions).
	second, err := NewCredentialStore(dir, time.Hour)
	if err != nil {
		t.Fatalf("NewCredentialStore (reload): %v", err)
	}
	if second.Validate(token) {
		t.Error("credential should not survive a store restart")
	}
}
