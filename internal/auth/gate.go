// Package auth implements the access-code gate that protects PTY spawning:
// constant-time PIN verification with per-address brute-force lockout, and
// an expiring credential store backed by fernet-signed cookie tokens.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/webtermd/webterm/internal/config"
)

// Jitter bounds for verification responses. Every attempt is delayed by a
// random duration in this range to blunt timing channels independent of the
// constant-time comparison.
const (
	jitterMin = 10 * time.Millisecond
	jitterMax = 60 * time.Millisecond
)

// maxCodeLength bounds submitted codes. Anything longer is malformed and
// fails fast without entering the comparison path.
const maxCodeLength = 64

// lockoutRecord tracks failed attempts for one client address.
type lockoutRecord struct {
	failures    int
	lastAttempt time.Time
}

// Gate validates the configured access code and enforces lockout.
// A Gate with no configured code is disabled: every request is treated as
// already authenticated.
type Gate struct {
	mu      sync.Mutex
	code    string
	window  time.Duration
	records map[string]*lockoutRecord

	nowFn   func() time.Time     // injectable clock for testing
	sleepFn func(time.Duration)  // injectable jitter sleep for testing
	randFn  func(int64) int64    // injectable jitter source for testing
}

// NewGate creates a Gate for the given access code. An empty code disables
// the gate. A code starting with "$2" is treated as a bcrypt hash.
func NewGate(code string, window time.Duration) *Gate {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Gate{
		code:    code,
		window:  window,
		records: make(map[string]*lockoutRecord),
		nowFn:   time.Now,
		sleepFn: time.Sleep,
		randFn:  rand.Int63n,
	}
}

// Enabled reports whether an access code is configured.
func (g *Gate) Enabled() bool {
	return g.code != ""
}

// CodeLength returns the length of the configured code, or 0 when the gate
// is disabled or the code is stored hashed (the login UI falls back to a
// free-length field).
func (g *Gate) CodeLength() int {
	if !g.Enabled() || g.hashed() {
		return 0
	}
	return len(g.code)
}

func (g *Gate) hashed() bool {
	return strings.HasPrefix(g.code, "$2")
}

// Verify checks a submitted code for the given client address. It returns
// whether the code matched and, on failure, how many attempts remain before
// lockout. Success resets the caller's lockout record. Every call is
// delayed by a random jitter before returning.
func (g *Gate) Verify(addr, code string) (ok bool, attemptsLeft int) {
	defer g.jitter()

	if !g.Enabled() {
		return true, config.MaxLoginAttempts
	}

	// Malformed or missing codes fail fast, before the comparison.
	if code == "" || len(code) > maxCodeLength {
		return false, g.recordFailure(addr)
	}

	if locked, _ := g.IsLockedOut(addr); locked {
		return false, 0
	}

	if g.match(code) {
		g.mu.Lock()
		delete(g.records, addr)
		g.mu.Unlock()
		return true, config.MaxLoginAttempts
	}

	return false, g.recordFailure(addr)
}

// match compares the submitted code against the configured one. The plain
// path hashes both sides and compares digests so latency does not depend on
// how many characters matched.
func (g *Gate) match(code string) bool {
	if g.hashed() {
		return bcrypt.CompareHashAndPassword([]byte(g.code), []byte(code)) == nil
	}
	want := sha256.Sum256([]byte(g.code))
	got := sha256.Sum256([]byte(code))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

// recordFailure increments the lockout record for addr and returns the
// remaining attempts. A record whose window already elapsed is reset first.
func (g *Gate) recordFailure(addr string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFn()
	rec, ok := g.records[addr]
	if !ok {
		rec = &lockoutRecord{}
		g.records[addr] = rec
	}
	if now.Sub(rec.lastAttempt) >= g.window {
		rec.failures = 0
	}
	rec.failures++
	rec.lastAttempt = now

	if rec.failures >= config.MaxLoginAttempts {
		log.Printf("[gate] address %s locked out after %d failed attempts", addr, rec.failures)
		return 0
	}
	return config.MaxLoginAttempts - rec.failures
}

// IsLockedOut reports whether the address has reached the attempt threshold
// within the lockout window, and how long until the lockout lifts.
func (g *Gate) IsLockedOut(addr string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[addr]
	if !ok || rec.failures < config.MaxLoginAttempts {
		return false, 0
	}
	elapsed := g.nowFn().Sub(rec.lastAttempt)
	if elapsed >= g.window {
		return false, 0
	}
	return true, g.window - elapsed
}

// SweepStale removes lockout records whose last attempt predates the
// window. Safe to run concurrently with Verify; called periodically.
func (g *Gate) SweepStale() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.nowFn().Add(-g.window)
	removed := 0
	for addr, rec := range g.records {
		if rec.lastAttempt.Before(cutoff) {
			delete(g.records, addr)
			removed++
		}
	}
	return removed
}

func (g *Gate) jitter() {
	span := int64(jitterMax - jitterMin)
	g.sleepFn(jitterMin + time.Duration(g.randFn(span)))
}
