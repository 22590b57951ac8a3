package pty

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const simPrompt = "sim$ "

// SimManager spawns simulated shell sessions. It exists for demo and
// sandboxed environments where the OS cannot allocate PTYs, and implements
// the same Session capability as the OS manager so the relay is unaware of
// the difference.
type SimManager struct{}

// NewSimManager creates a manager for simulated sessions.
func NewSimManager() *SimManager {
	return &SimManager{}
}

// Spawn starts a simulated shell. It never fails.
func (m *SimManager) Spawn(cols, rows uint16, dir string, env []string) (Session, error) {
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	if dir == "" {
		dir = "/"
	}

	s := &simSession{
		id:         uuid.New().String(),
		dir:        dir,
		cols:       cols,
		rows:       rows,
		output:     make(chan []byte, 64),
		done:       make(chan struct{}),
		quit:       make(chan struct{}),
		exitStatus: -1,
	}
	s.emitLocked("simulated shell — type 'help' for commands\r\n" + simPrompt)
	return s, nil
}

// simSession answers a fixed command set: echo, pwd, whoami, help, exit.
// Input is echoed back the way a terminal in canonical mode would, so an
// attached emulator behaves normally.
type simSession struct {
	id  string
	dir string

	mu         sync.Mutex
	cols, rows uint16
	line       []byte
	terminated bool
	exitStatus int

	output chan []byte
	done   chan struct{}
	quit   chan struct{}

	killOnce sync.Once
}

func (s *simSession) ID() string {
	return s.id
}

func (s *simSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return len(p), nil
	}

	for _, b := range p {
		switch b {
		case '\r', '\n':
			s.emitLocked("\r\n")
			s.runLocked(string(s.line))
			s.line = s.line[:0]
			if s.terminated {
				return len(p), nil
			}
			s.emitLocked(simPrompt)
		case 0x7f, '\b':
			if len(s.line) > 0 {
				s.line = s.line[:len(s.line)-1]
				s.emitLocked("\b \b")
			}
		case 0x03: // Ctrl-C
			s.line = s.line[:0]
			s.emitLocked("^C\r\n" + simPrompt)
		case 0x04: // Ctrl-D on an empty line ends the session
			if len(s.line) == 0 {
				s.terminateLocked(0)
				return len(p), nil
			}
		default:
			if b >= 0x20 {
				s.line = append(s.line, b)
				s.emitLocked(string(b))
			}
		}
	}
	return len(p), nil
}

// runLocked executes one command line. Callers hold s.mu.
func (s *simSession) runLocked(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "echo":
		s.emitLocked(strings.Join(fields[1:], " ") + "\r\n")
	case "pwd":
		s.emitLocked(s.dir + "\r\n")
	case "whoami":
		s.emitLocked("webterm\r\n")
	case "help":
		s.emitLocked("commands: echo pwd whoami help exit\r\n")
	case "exit":
		status := 0
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				status = n
			}
		}
		s.emitLocked("logout\r\n")
		s.terminateLocked(status)
	default:
		s.emitLocked(fmt.Sprintf("sim: command not found: %s\r\n", fields[0]))
	}
}

func (s *simSession) emitLocked(text string) {
	if s.terminated {
		return
	}
	select {
	case s.output <- []byte(text):
	case <-s.quit:
	}
}

func (s *simSession) terminateLocked(status int) {
	if s.terminated {
		return
	}
	s.terminated = true
	s.exitStatus = status
	close(s.output)
	close(s.done)
}

func (s *simSession) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return nil
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

func (s *simSession) Size() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

func (s *simSession) Output() <-chan []byte {
	return s.output
}

func (s *simSession) Done() <-chan struct{} {
	return s.done
}

func (s *simSession) ExitStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitStatus
}

func (s *simSession) Kill() {
	s.killOnce.Do(func() {
		close(s.quit)
		s.mu.Lock()
		s.terminateLocked(-1)
		s.mu.Unlock()
	})
}
