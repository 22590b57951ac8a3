package client

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/webtermd/webterm/internal/auth"
	"github.com/webtermd/webterm/internal/protocol"
)

// LinkState is the lifecycle state of a tab's server link.
type LinkState string

const (
	StateConnecting   LinkState = "connecting"
	StateOpen         LinkState = "open"
	StateReconnecting LinkState = "reconnecting"
	StateGaveUp       LinkState = "gave_up"
	StateClosed       LinkState = "closed"
)

const (
	connectTimeout       = 5 * time.Second
	heartbeatInterval    = 10 * time.Second
	backoffBase          = 1 * time.Second
	maxReconnectAttempts = 5
	writeTimeout         = 10 * time.Second
)

// backoffDelay returns the wait before reconnect attempt n (1-based),
// doubling from the base each attempt.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return backoffBase << (attempt - 1)
}

// Conn is the wire connection a Link drives. Production links wrap a
// websocket; tests substitute scripted connections.
type Conn interface {
	ReadFrame(ctx context.Context) (protocol.Frame, error)
	WriteFrame(ctx context.Context, f protocol.Frame) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a fresh Conn to the server.
type Dialer func(ctx context.Context) (Conn, error)

// LinkEvents carries the callbacks a Link raises. All fields are optional.
type LinkEvents struct {
	// OnAuthRequired fires when the server closes the link with the
	// authentication-required code. The link gives up without retrying.
	OnAuthRequired func()
	// OnOutput fires after each output frame has been written to the
	// surface, with the decoded chunk.
	OnOutput func(data string)
	// OnStateChange fires on every state transition.
	OnStateChange func(state LinkState)
}

// Link maintains one websocket link to the server for a single tab,
// relaying output frames to its surface and reconnecting with exponential
// backoff when the link drops unexpectedly.
type Link struct {
	dial    Dialer
	surface RenderSurface
	events  LinkEvents

	mu       sync.Mutex
	state    LinkState
	attempts int
	conn     Conn
	closing  bool

	done chan struct{}

	sleepFn func(time.Duration)
}

// NewLink creates a link that dials with the given dialer and renders
// output frames onto surface. Call Start to begin connecting.
func NewLink(dial Dialer, surface RenderSurface, events LinkEvents) *Link {
	return &Link{
		dial:    dial,
		surface: surface,
		events:  events,
		state:   StateConnecting,
		done:    make(chan struct{}),
		sleepFn: time.Sleep,
	}
}

// WebsocketDialer returns a Dialer that opens a websocket to url, sending
// the credential cookie when token is non-empty.
func WebsocketDialer(url, token string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		opts := &websocket.DialOptions{}
		if token != "" {
			h := http.Header{}
			h.Set("Cookie", fmt.Sprintf("%s=%s", auth.CookieName, token))
			opts.HTTPHeader = h
		}
		ws, _, err := websocket.Dial(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		ws.SetReadLimit(1024 * 1024)
		return &wsConn{ws: ws}, nil
	}
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.Decode(data)
}

func (c *wsConn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

// Start runs the link's connect/relay/reconnect loop in the background.
func (l *Link) Start() {
	go l.run()
}

// State returns the link's current state.
func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed once the link has terminally stopped.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// SendInput forwards keystrokes to the shell. Input sent while the link
// is not open is dropped.
func (l *Link) SendInput(data string) error {
	return l.writeFrame(protocol.Input(data))
}

// SendResize tells the server the terminal geometry changed.
func (l *Link) SendResize(cols, rows uint16) error {
	return l.writeFrame(protocol.Resize(cols, rows))
}

// Resume resets the reconnect attempt counter. The orchestrator calls it
// when the client regains visibility so a flaky background period does not
// eat into the retry budget.
func (l *Link) Resume() {
	l.mu.Lock()
	l.attempts = 0
	l.mu.Unlock()
}

// Close shuts the link down cleanly. The server treats a clean closure as
// the end of the session and kills the shell.
func (l *Link) Close() {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.closing = true
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
	}
}

func (l *Link) writeFrame(f protocol.Frame) error {
	l.mu.Lock()
	conn := l.conn
	open := l.state == StateOpen
	l.mu.Unlock()
	if !open || conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.WriteFrame(ctx, f)
}

func (l *Link) setState(s LinkState) {
	l.mu.Lock()
	changed := l.state != s
	l.state = s
	l.mu.Unlock()
	if changed && l.events.OnStateChange != nil {
		l.events.OnStateChange(s)
	}
}

func (l *Link) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if l.closing {
			l.mu.Unlock()
			l.setState(StateClosed)
			return
		}
		l.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		conn, err := l.dial(ctx)
		cancel()
		if err == nil {
			l.mu.Lock()
			l.conn = conn
			l.attempts = 0
			l.mu.Unlock()
			l.setState(StateOpen)
			err = l.relay(conn)
			_ = conn.Close(websocket.StatusGoingAway, "link reset")
			l.mu.Lock()
			l.conn = nil
			l.mu.Unlock()
		}

		l.mu.Lock()
		closing := l.closing
		l.mu.Unlock()
		if closing || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			l.setState(StateClosed)
			return
		}
		if websocket.CloseStatus(err) == protocol.CloseAuthRequired {
			l.setState(StateGaveUp)
			if l.events.OnAuthRequired != nil {
				l.events.OnAuthRequired()
			}
			return
		}

		l.mu.Lock()
		l.attempts++
		attempt := l.attempts
		l.mu.Unlock()
		if attempt > maxReconnectAttempts {
			fmt.Fprintf(l.surface, "\r\n[connection lost — reload to reconnect]\r\n")
			l.setState(StateGaveUp)
			return
		}
		log.Printf("link dropped (%v), reconnect attempt %d/%d", err, attempt, maxReconnectAttempts)
		l.setState(StateReconnecting)
		l.sleepFn(backoffDelay(attempt))
	}
}

// relay pumps output frames to the surface and heartbeats to the server
// until the connection errors out.
func (l *Link) relay(conn Conn) error {
	readErr := make(chan error, 1)
	frames := make(chan protocol.Frame, 16)
	go func() {
		for {
			f, err := conn.ReadFrame(context.Background())
			if err != nil {
				readErr <- err
				return
			}
			frames <- f
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case f := <-frames:
			if f.Type != protocol.TypeOutput {
				continue
			}
			if _, err := l.surface.Write([]byte(f.Data)); err != nil {
				log.Printf("surface write failed: %v", err)
			}
			if l.events.OnOutput != nil {
				l.events.OnOutput(f.Data)
			}
		case err := <-readErr:
			return err
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := conn.WriteFrame(ctx, protocol.Heartbeat())
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
