package pty

import (
	"strings"
	"testing"
	"time"
)

// readUntil drains a session's output until the collected text contains
// substr or the timeout elapses.
func readUntil(t *testing.T, s Session, substr string) string {
	t.Helper()
	var sb strings.Builder
	deadline := time.After(5 * time.Second)
	for {
		if strings.Contains(sb.String(), substr) {
			return sb.String()
		}
		select {
		case chunk, ok := <-s.Output():
			if !ok {
				t.Fatalf("output closed before %q appeared; got %q", substr, sb.String())
			}
			sb.Write(chunk)
		case <-deadline:
			t.Fatalf("timed out waiting for %q; got %q", substr, sb.String())
		}
	}
}

func spawnSim(t *testing.T) Session {
	t.Helper()
	s, err := NewSimManager().Spawn(80, 24, "/work", nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return s
}

func TestSimBanner(t *testing.T) {
	s := spawnSim(t)
	defer s.Kill()

	out := readUntil(t, s, simPrompt)
	if !strings.Contains(out, "simulated shell") {
		t.Errorf("expected banner, got %q", out)
	}
}

func TestSimEcho(t *testing.T) {
	s := spawnSim(t)
	defer s.Kill()
	readUntil(t, s, simPrompt)

	s.Write([]byte("echo hello world\r"))
	out := readUntil(t, s, "hello world\r\n")
	// Input is echoed back, then the command output follows.
	if !strings.Contains(out, "echo hello world") {
		t.Errorf("expected input echo in %q", out)
	}
}

func TestSimPwd(t *testing.T) {
	s := spawnSim(t)
	defer s.Kill()
	readUntil(t, s, simPrompt)

	s.Write([]byte("pwd\r"))
	readUntil(t, s, "/work\r\n")
}

func TestSimUnknownCommand(t *testing.T) {
	s := spawnSim(t)
	defer s.Kill()
	readUntil(t, s, simPrompt)

	s.Write([]byte("frobnicate\r"))
	readUntil(t, s, "command not found: frobnicate")
}

func TestSimBackspace(t *testing.T) {
	s := spawnSim(t)
	defer s.Kill()
	readUntil(t, s, simPrompt)

	s.Write([]byte("echo abX\x7fc\r"))
	readUntil(t, s, "abc\r\n")
}

func TestSimExitStatus(t *testing.T) {
	s := spawnSim(t)
	readUntil(t, s, simPrompt)

	s.Write([]byte("exit 3\r"))

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit")
	}
	if s.ExitStatus() != 3 {
		t.Errorf("expected exit status 3, got %d", s.ExitStatus())
	}

	// Output channel ends at process exit.
	for range s.Output() {
	}

	// Writes after exit are no-ops.
	if _, err := s.Write([]byte("echo after\r")); err != nil {
		t.Errorf("write after exit must not error: %v", err)
	}
}

func TestSimCtrlDEndsSession(t *testing.T) {
	s := spawnSim(t)
	readUntil(t, s, simPrompt)

	s.Write([]byte{0x04})

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Ctrl-D did not end the session")
	}
	if s.ExitStatus() != 0 {
		t.Errorf("expected exit status 0, got %d", s.ExitStatus())
	}
}

func TestSimKillIdempotent(t *testing.T) {
	s := spawnSim(t)

	s.Kill()
	s.Kill()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("killed session did not report done")
	}
	if s.ExitStatus() != -1 {
		t.Errorf("expected exit status -1 after kill, got %d", s.ExitStatus())
	}
	if _, err := s.Write([]byte("x")); err != nil {
		t.Errorf("write after kill must not error: %v", err)
	}
	if err := s.Resize(100, 30); err != nil {
		t.Errorf("resize after kill must not error: %v", err)
	}
}

func TestSimResizeLastWriteWins(t *testing.T) {
	s := spawnSim(t)
	defer s.Kill()

	s.Resize(120, 40)
	s.Resize(90, 30)
	s.Resize(100, 50)

	cols, rows := s.Size()
	if cols != 100 || rows != 50 {
		t.Errorf("expected 100x50, got %dx%d", cols, rows)
	}

	// Zero dimensions are ignored, not applied.
	s.Resize(0, 10)
	if c, r := s.Size(); c != 100 || r != 50 {
		t.Errorf("zero resize should be ignored, got %dx%d", c, r)
	}
}
