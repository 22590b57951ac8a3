package pty

import (
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/uuid"
)

// OSManager spawns real shell processes attached to pseudo-terminals.
type OSManager struct {
	shell string
}

// NewOSManager creates a manager that runs the given shell program.
func NewOSManager(shell string) *OSManager {
	if shell == "" {
		shell = "/bin/bash"
	}
	return &OSManager{shell: shell}
}

// Spawn starts the shell with the given initial geometry, working
// directory, and environment. Failures are wrapped in SpawnError.
func (m *OSManager) Spawn(cols, rows uint16, dir string, env []string) (Session, error) {
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	cmd := exec.Command(m.shell)
	cmd.Dir = dir
	cmd.Env = env

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, &SpawnError{Err: err}
	}

	s := &osSession{
		id:         uuid.New().String(),
		cmd:        cmd,
		ptmx:       ptmx,
		cols:       cols,
		rows:       rows,
		output:     make(chan []byte, 64),
		done:       make(chan struct{}),
		quit:       make(chan struct{}),
		exitStatus: -1,
	}

	go s.readLoop()

	log.Printf("[pty] spawned session %s (shell=%s pid=%d %dx%d)",
		s.id, m.shell, cmd.Process.Pid, cols, rows)
	return s, nil
}

type osSession struct {
	id   string
	cmd  *exec.Cmd
	ptmx *os.File

	mu         sync.Mutex
	cols, rows uint16
	exitStatus int

	output chan []byte
	done   chan struct{}
	quit   chan struct{} // closed by Kill; unblocks a stalled output send

	killOnce sync.Once
}

// readLoop pumps PTY output into the session channel, then reaps the
// process. It is the only writer to output and the only closer of done.
func (s *osSession) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.output <- chunk:
			case <-s.quit:
				// Consumer is gone; drop remaining output.
			}
		}
		if err != nil {
			break
		}
	}
	close(s.output)

	err := s.cmd.Wait()
	status := 0
	if err != nil {
		status = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			status = exitErr.ExitCode()
		}
	}
	s.mu.Lock()
	s.exitStatus = status
	s.mu.Unlock()

	s.ptmx.Close()
	close(s.done)
	log.Printf("[pty] session %s exited (status=%d)", s.id, status)
}

func (s *osSession) ID() string {
	return s.id
}

func (s *osSession) Write(p []byte) (int, error) {
	select {
	case <-s.done:
		return len(p), nil
	default:
	}
	n, err := s.ptmx.Write(p)
	if err != nil {
		// The process exited mid-write; writes are best-effort.
		return len(p), nil
	}
	return n, nil
}

func (s *osSession) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return nil
	}
	select {
	case <-s.done:
		return nil
	default:
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return err
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

func (s *osSession) Size() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

func (s *osSession) Output() <-chan []byte {
	return s.output
}

func (s *osSession) Done() <-chan struct{} {
	return s.done
}

func (s *osSession) ExitStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitStatus
}

// Kill terminates the process group. pty.StartWithSize runs the shell in
// its own session, so the negative-pid signal reaches its children too.
func (s *osSession) Kill() {
	s.killOnce.Do(func() {
		close(s.quit)
		if s.cmd.Process != nil {
			if err := syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL); err != nil {
				s.cmd.Process.Kill()
			}
		}
	})
}
