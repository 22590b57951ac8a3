package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/webtermd/webterm/internal/config"
	"github.com/webtermd/webterm/internal/protocol"
	"github.com/webtermd/webterm/internal/pty"
)

// PTYManager is set from main during init.
var PTYManager pty.Manager

// relayRateLimit is the maximum number of messages allowed per second per
// link; relayRateBurst allows short bursts (paste) before limiting kicks in.
const (
	relayRateLimit = 200
	relayRateBurst = 200
)

// maxInputMessageSize caps a single input frame. Larger frames are dropped.
const maxInputMessageSize = 64 * 1024

// pingInterval is the server-side liveness check period. A link that fails
// to answer a ping within the interval is forcibly closed.
const pingInterval = 15 * time.Second

// Terminal handles GET /terminal: one WebSocket link bound to one freshly
// spawned shell for its whole lifetime. The credential cookie is validated
// before any process is spawned (skipped when no access code is
// configured); failures close the link with code 4401 so the client
// redirects to login instead of reconnecting.
func Terminal(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[relay] websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	if !authenticated(r) {
		conn.Close(protocol.CloseAuthRequired, "authentication required")
		return
	}

	session, err := PTYManager.Spawn(pty.DefaultCols, pty.DefaultRows,
		config.Cfg.WorkingDir(), config.Cfg.ProcessEnv())
	if err != nil {
		log.Printf("[relay] spawn failed for %s: %v", clientAddr(r), err)
		conn.Close(protocol.CloseSpawnFailed, "failed to start shell")
		return
	}
	defer session.Kill()

	log.Printf("[relay] link open: session=%s addr=%s", session.ID(), clientAddr(r))

	conn.SetReadLimit(1024 * 1024)

	relayCtx, relayCancel := context.WithCancel(r.Context())
	defer relayCancel()

	// Shell output -> output frames. The output channel ends at process
	// exit, so the pump finishing also closes the link when the shell
	// exits on its own.
	go func() {
		defer relayCancel()
		for chunk := range session.Output() {
			data, err := protocol.Output(string(chunk)).Encode()
			if err != nil {
				return
			}
			if err := conn.Write(relayCtx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}()

	// Transport-level liveness: ping on a fixed interval. Ping blocks
	// until the pong arrives, so a bounded context detects dead peers the
	// transport has not noticed.
	go func() {
		defer relayCancel()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-relayCtx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(relayCtx, pingInterval)
				err := conn.Ping(pingCtx)
				cancel()
				if err != nil {
					log.Printf("[relay] liveness check failed: session=%s: %v", session.ID(), err)
					return
				}
			}
		}
	}()

	limiter := newTokenBucket(relayRateBurst, relayRateLimit)

	// Input frames -> shell.
	for {
		_, data, err := conn.Read(relayCtx)
		if err != nil {
			break
		}

		if !limiter.allow() {
			continue
		}
		if len(data) > maxInputMessageSize {
			log.Printf("[relay] oversized frame dropped: session=%s size=%d", session.ID(), len(data))
			continue
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			log.Printf("[relay] malformed frame dropped: session=%s: %v", session.ID(), err)
			continue
		}

		switch frame.Type {
		case protocol.TypeInput:
			if _, err := session.Write([]byte(frame.Data)); err != nil {
				log.Printf("[relay] input write failed: session=%s: %v", session.ID(), err)
			}
		case protocol.TypeResize:
			if frame.Cols == 0 || frame.Rows == 0 {
				continue
			}
			cols, rows := frame.Cols, frame.Rows
			if cols > pty.MaxCols {
				cols = pty.MaxCols
			}
			if rows > pty.MaxRows {
				rows = pty.MaxRows
			}
			if err := session.Resize(cols, rows); err != nil {
				log.Printf("[relay] resize failed: session=%s: %v", session.ID(), err)
			}
		case protocol.TypeHeartbeat:
			// Application-level liveness signal; transport pings already
			// cover liveness, so it needs no acknowledgment.
		}
	}

	log.Printf("[relay] link closed: session=%s", session.ID())
	conn.Close(websocket.StatusNormalClosure, "")
}

// tokenBucket is a per-link message rate limiter.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow checks if a message is allowed and consumes a token.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}
