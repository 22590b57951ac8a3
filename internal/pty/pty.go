// Package pty manages one shell process per terminal link. Each session
// owns a real OS process attached to a pseudo-terminal (or a simulated
// shell in sandboxed environments) and exposes its output as an ordered
// channel of chunks that ends at process exit.
package pty

import (
	"fmt"
)

// Default geometry for new sessions before the client reports its size.
const (
	DefaultCols uint16 = 80
	DefaultRows uint16 = 24
)

// MaxCols and MaxRows bound resize requests. Values beyond these are
// clamped by callers to prevent abuse.
const (
	MaxCols uint16 = 500
	MaxRows uint16 = 500
)

// SpawnError indicates the OS refused to allocate a process or PTY. It is
// fatal for the connection attempt that triggered it; the caller reports
// it and closes the link without retrying.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn shell: %v", e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Session is one shell process bound to one link.
//
// Output delivers raw process output as an ordered sequence of chunks with
// opaque boundaries; the channel is closed when the process exits and has
// exactly one consumer. Done is closed exactly once on exit, whether
// self-initiated or caused by Kill.
type Session interface {
	// ID is the session's unique identifier.
	ID() string
	// Write forwards raw bytes to the process's PTY input. Best-effort:
	// after the process has exited it is a no-op, never an error.
	Write(p []byte) (int, error)
	// Resize updates the PTY window size live. Last write wins.
	Resize(cols, rows uint16) error
	// Size returns the current terminal geometry.
	Size() (cols, rows uint16)
	// Output is the ordered stream of process output chunks.
	Output() <-chan []byte
	// Done is closed when the process has exited and been reaped.
	Done() <-chan struct{}
	// ExitStatus is the process exit code; valid only after Done.
	ExitStatus() int
	// Kill terminates the process and its children. Idempotent.
	Kill()
}

// Manager spawns sessions. Two implementations exist: the OS-backed
// manager (real PTYs) and the simulated shell, selected by configuration.
type Manager interface {
	Spawn(cols, rows uint16, dir string, env []string) (Session, error)
}

// NewManager returns the manager for the configured backend. Unknown
// backends fall back to the OS manager.
func NewManager(backend, shell string) Manager {
	if backend == "sim" {
		return NewSimManager()
	}
	return NewOSManager(shell)
}
