// Package client implements the session orchestrator that drives a set of
// terminal tabs against a webterm server: per-tab links with reconnection
// backoff and heartbeats, tab lifecycle and ordering, and persistence of
// tab layout and transcripts across restarts.
package client

import "sync"

// RenderSurface is the rendering widget a tab draws into. The widget
// itself is an external collaborator; the orchestrator only writes output
// to it, serializes its visible content for persistence, and focuses it.
type RenderSurface interface {
	Write(p []byte) (int, error)
	Serialize() string
	Focus() error
}

// defaultSurfaceLimit bounds how much transcript a surface retains (1 MB).
const defaultSurfaceLimit = 1024 * 1024

// BufferSurface is a RenderSurface backed by a byte buffer that trims from
// the front when it exceeds its limit. It backs headless tabs and tests;
// interactive clients wrap a real terminal instead.
type BufferSurface struct {
	mu     sync.Mutex
	data   []byte
	maxLen int
}

// NewBufferSurface creates a surface with the given retention limit.
// A non-positive limit uses the default.
func NewBufferSurface(maxLen int) *BufferSurface {
	if maxLen <= 0 {
		maxLen = defaultSurfaceLimit
	}
	return &BufferSurface{maxLen: maxLen}
}

func (b *BufferSurface) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.data = append(b.data, p...)
	if len(b.data) > b.maxLen {
		b.data = b.data[len(b.data)-b.maxLen:]
	}
	b.mu.Unlock()
	return len(p), nil
}

func (b *BufferSurface) Serialize() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

func (b *BufferSurface) Focus() error {
	return nil
}
