package auth

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/webtermd/webterm/internal/config"
)

// newTestGate returns a gate with a controllable clock and no jitter sleep.
func newTestGate(code string, window time.Duration) (*Gate, *time.Time) {
	g := NewGate(code, window)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return now }
	g.sleepFn = func(time.Duration) {}
	return g, &now
}

func TestGateDisabled(t *testing.T) {
	g, _ := newTestGate("", 15*time.Minute)

	if g.Enabled() {
		t.Error("gate with no code should be disabled")
	}
	ok, left := g.Verify("1.2.3.4", "anything")
	if !ok {
		t.Error("disabled gate should accept every request")
	}
	if left != config.MaxLoginAttempts {
		t.Errorf("expected %d attempts left, got %d", config.MaxLoginAttempts, left)
	}
}

func TestVerifyCorrectCode(t *testing.T) {
	g, _ := newTestGate("4321", 15*time.Minute)

	ok, _ := g.Verify("1.2.3.4", "4321")
	if !ok {
		t.Fatal("expected correct code to verify")
	}
}

func TestVerifySuccessResetsLockout(t *testing.T) {
	g, _ := newTestGate("4321", 15*time.Minute)

	g.Verify("1.2.3.4", "0000")
	g.Verify("1.2.3.4", "1111")

	ok, _ := g.Verify("1.2.3.4", "4321")
	if !ok {
		t.Fatal("expected correct code to verify")
	}

	// Record cleared: a fresh failure reports a full attempt budget again.
	_, left := g.Verify("1.2.3.4", "0000")
	if left != config.MaxLoginAttempts-1 {
		t.Errorf("expected %d attempts left after reset, got %d", config.MaxLoginAttempts-1, left)
	}
}

func TestLockoutAfterMaxFailures(t *testing.T) {
	g, _ := newTestGate("4321", 15*time.Minute)

	for i := 0; i < config.MaxLoginAttempts; i++ {
		ok, _ := g.Verify("1.2.3.4", "0000")
		if ok {
			t.Fatal("wrong code must not verify")
		}
	}

	locked, remaining := g.IsLockedOut("1.2.3.4")
	if !locked {
		t.Fatal("expected address to be locked out")
	}
	if remaining <= 0 || remaining > 15*time.Minute {
		t.Errorf("unexpected lockout remaining: %s", remaining)
	}

	// The sixth attempt is rejected even with the correct code.
	ok, left := g.Verify("1.2.3.4", "4321")
	if ok {
		t.Error("locked-out address must not verify, even with the correct code")
	}
	if left != 0 {
		t.Errorf("expected 0 attempts left while locked, got %d", left)
	}
}

func TestLockoutExpiresAfterWindow(t *testing.T) {
	g, now := newTestGate("4321", 15*time.Minute)

	for i := 0; i < config.MaxLoginAttempts; i++ {
		g.Verify("1.2.3.4", "0000")
	}
	if locked, _ := g.IsLockedOut("1.2.3.4"); !locked {
		t.Fatal("expected lockout")
	}

	*now = now.Add(16 * time.Minute)

	if locked, _ := g.IsLockedOut("1.2.3.4"); locked {
		t.Error("lockout should lift after the window elapses")
	}
	ok, _ := g.Verify("1.2.3.4", "4321")
	if !ok {
		t.Error("attempt after window should be evaluated normally")
	}
}

func TestLockoutIsPerAddress(t *testing.T) {
	g, _ := newTestGate("4321", 15*time.Minute)

	for i := 0; i < config.MaxLoginAttempts; i++ {
		g.Verify("10.0.0.1", "0000")
	}

	if locked, _ := g.IsLockedOut("10.0.0.2"); locked {
		t.Error("lockout must not leak across addresses")
	}
	ok, _ := g.Verify("10.0.0.2", "4321")
	if !ok {
		t.Error("other addresses should verify normally")
	}
}

func TestMalformedCodeFailsFast(t *testing.T) {
	g, _ := newTestGate("4321", 15*time.Minute)

	ok, left := g.Verify("1.2.3.4", "")
	if ok {
		t.Error("empty code must fail")
	}
	if left != config.MaxLoginAttempts-1 {
		t.Errorf("empty code should count as a failed attempt, got %d left", left)
	}

	long := make([]byte, maxCodeLength+1)
	for i := range long {
		long[i] = '1'
	}
	if ok, _ := g.Verify("1.2.3.4", string(long)); ok {
		t.Error("oversized code must fail")
	}
}

func TestBcryptConfiguredCode(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("7777"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	g, _ := newTestGate(string(hash), 15*time.Minute)

	if g.CodeLength() != 0 {
		t.Error("hashed code must not reveal its length")
	}
	if ok, _ := g.Verify("1.2.3.4", "7777"); !ok {
		t.Error("expected bcrypt-hashed code to verify")
	}
	if ok, _ := g.Verify("1.2.3.4", "7778"); ok {
		t.Error("wrong code must not verify against hash")
	}
}

func TestJitterWithinBounds(t *testing.T) {
	g := NewGate("4321", 15*time.Minute)
	var slept []time.Duration
	g.sleepFn = func(d time.Duration) { slept = append(slept, d) }

	g.Verify("1.2.3.4", "4321")
	g.Verify("1.2.3.4", "0000")
	g.Verify("1.2.3.4", "")

	if len(slept) != 3 {
		t.Fatalf("expected jitter on every attempt, got %d sleeps", len(slept))
	}
	for _, d := range slept {
		if d < jitterMin || d >= jitterMax {
			t.Errorf("jitter %s outside [%s, %s)", d, jitterMin, jitterMax)
		}
	}
}

func TestSweepStale(t *testing.T) {
	g, now := newTestGate("4321", 15*time.Minute)

	g.Verify("10.0.0.1", "0000")
	g.Verify("10.0.0.2", "0000")

	*now = now.Add(20 * time.Minute)
	g.Verify("10.0.0.3", "0000")

	if removed := g.SweepStale(); removed != 2 {
		t.Errorf("expected 2 stale records removed, got %d", removed)
	}
	if removed := g.SweepStale(); removed != 0 {
		t.Errorf("second sweep should remove nothing, got %d", removed)
	}
}

func TestCodeLength(t *testing.T) {
	g, _ := newTestGate("123456", 15*time.Minute)
	if g.CodeLength() != 6 {
		t.Errorf("expected code length 6, got %d", g.CodeLength())
	}

	disabled, _ := newTestGate("", 15*time.Minute)
	if disabled.CodeLength() != 0 {
		t.Errorf("disabled gate should report length 0, got %d", disabled.CodeLength())
	}
}
