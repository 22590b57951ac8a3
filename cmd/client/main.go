// Command client attaches a local terminal to a webterm server. It manages
// tabs (one shell each), reconnects dropped links with backoff, and
// persists tab layout and transcripts to the configured store so a later
// attach restores the workspace.
//
// Tab control uses a Ctrl-] prefix:
//
//	Ctrl-] c   new tab
//	Ctrl-] d   close current tab
//	Ctrl-] n   next tab
//	Ctrl-] p   previous tab
//	Ctrl-] 1-9 jump to tab by position
//	Ctrl-] q   detach (shells keep running server-side until links close)
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/webtermd/webterm/internal/auth"
	"github.com/webtermd/webterm/internal/client"
	"github.com/webtermd/webterm/internal/config"
	"github.com/webtermd/webterm/internal/store"
)

const ctrlRBracket = 0x1d // Ctrl-]

func main() {
	configPath := flag.String("config", config.DefaultClientConfigPath(), "client config file")
	serverURL := flag.String("server", "", "terminal websocket URL (overrides config)")
	pin := flag.String("pin", "", "access PIN (overrides config)")
	flag.Parse()

	cs, err := config.LoadClient(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	if *serverURL != "" {
		cs.ServerURL = *serverURL
	}
	if *pin != "" {
		cs.Pin = *pin
	}

	token, err := login(cs)
	if err != nil {
		log.Fatalf("Login: %v", err)
	}

	st := store.New(cs)
	defer st.Close()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		log.Fatal("stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		log.Fatalf("Raw mode: %v", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	ui := &console{}
	orch, err := client.NewOrchestrator(client.Options{
		Store:      st,
		NewSurface: ui.newSurface,
		OpenLink: func(surface client.RenderSurface, tabID int) client.TermLink {
			return client.NewLink(client.WebsocketDialer(cs.ServerURL, token), surface, client.LinkEvents{
				OnAuthRequired: func() { ui.message("authentication required, run with -pin") },
			})
		},
	})
	if err != nil {
		term.Restore(int(os.Stdin.Fd()), oldState)
		log.Fatalf("Orchestrator: %v", err)
	}
	// Output persistence is driven from the console surfaces, which know
	// which tab is visible.
	ui.orch = orch
	ui.showActive()

	// Propagate terminal geometry now and on every SIGWINCH.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	sendSize := func() {
		cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			return
		}
		for _, t := range orch.Tabs() {
			if t.Link != nil {
				t.Link.SendResize(uint16(cols), uint16(rows))
			}
		}
	}
	sendSize()
	go func() {
		for range winch {
			sendSize()
		}
	}()

	runInputLoop(orch, ui, sendSize)

	orch.Shutdown()
	term.Restore(int(os.Stdin.Fd()), oldState)
	fmt.Println()
}

// runInputLoop reads raw stdin and forwards it to the active tab's shell,
// intercepting the Ctrl-] prefix for tab operations. Returns on detach.
func runInputLoop(orch *client.Orchestrator, ui *console, sendSize func()) {
	buf := make([]byte, 4096)
	prefixed := false
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		chunk := buf[:n]
		for len(chunk) > 0 {
			if prefixed {
				prefixed = false
				c := chunk[0]
				chunk = chunk[1:]
				switch {
				case c == 'c':
					orch.NewTab()
					ui.showActive()
					sendSize()
				case c == 'd':
					if t := orch.ActiveTab(); t != nil {
						orch.CloseTab(t.ID)
					}
					ui.showActive()
					sendSize()
				case c == 'n':
					orch.CycleNext()
					ui.showActive()
				case c == 'p':
					orch.CyclePrev()
					ui.showActive()
				case c >= '1' && c <= '9':
					orch.JumpTo(int(c - '0'))
					ui.showActive()
				case c == 'q':
					return
				case c == ctrlRBracket:
					// Literal Ctrl-] for the shell.
					forward(orch, []byte{ctrlRBracket})
				}
				continue
			}
			if i := bytes.IndexByte(chunk, ctrlRBracket); i >= 0 {
				forward(orch, chunk[:i])
				prefixed = true
				chunk = chunk[i+1:]
				continue
			}
			forward(orch, chunk)
			chunk = nil
		}
	}
}

func forward(orch *client.Orchestrator, data []byte) {
	if len(data) == 0 {
		return
	}
	t := orch.ActiveTab()
	if t == nil || t.Link == nil {
		return
	}
	if err := t.Link.SendInput(string(data)); err != nil {
		log.Printf("send input: %v", err)
	}
}

// console multiplexes tab surfaces onto the one real terminal: only the
// active tab's output reaches the screen, every tab's output lands in its
// buffer for persistence.
type console struct {
	mu     sync.Mutex
	orch   *client.Orchestrator
	active *consoleSurface
}

func (c *console) newSurface() client.RenderSurface {
	return &consoleSurface{console: c, buf: client.NewBufferSurface(0)}
}

// showActive switches screen output to the active tab and repaints its
// transcript.
func (c *console) showActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.orch.ActiveTab()
	if t == nil {
		return
	}
	s, ok := t.Surface.(*consoleSurface)
	if !ok {
		return
	}
	if c.active == s {
		return
	}
	c.active = s
	// Clear the screen and replay the tab's buffer.
	os.Stdout.WriteString("\x1b[2J\x1b[H")
	os.Stdout.WriteString(s.buf.Serialize())
	c.statusLocked(t.ID)
}

func (c *console) message(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(os.Stdout, "\r\n[%s]\r\n", text)
}

func (c *console) statusLocked(activeID int) {
	tabs := c.orch.Tabs()
	names := make([]string, len(tabs))
	for i, t := range tabs {
		marker := " "
		if t.ID == activeID {
			marker = "*"
		}
		names[i] = fmt.Sprintf("%s%d:%s", marker, t.ID, t.Name)
	}
	fmt.Fprintf(os.Stdout, "\r\n[tabs:%s]\r\n", strings.Join(names, " "))
}

type consoleSurface struct {
	console *console
	buf     *client.BufferSurface
}

func (s *consoleSurface) Write(p []byte) (int, error) {
	s.buf.Write(p)
	s.console.mu.Lock()
	visible := s.console.active == s
	s.console.mu.Unlock()
	if visible {
		os.Stdout.Write(p)
	}
	if s.console.orch != nil {
		s.console.orch.NotifyOutput()
	}
	return len(p), nil
}

func (s *consoleSurface) Serialize() string {
	return s.buf.Serialize()
}

func (s *consoleSurface) Focus() error {
	return nil
}

// login exchanges the PIN for a credential cookie when the server requires
// one. Servers without a PIN gate need no credential.
func login(cs config.ClientSettings) (string, error) {
	base, err := httpBase(cs.ServerURL)
	if err != nil {
		return "", err
	}
	httpc := &http.Client{Timeout: 10 * time.Second}

	resp, err := httpc.Get(base + "/api/require-pin")
	if err != nil {
		return "", fmt.Errorf("reach server: %w", err)
	}
	var required struct {
		Required bool `json:"required"`
	}
	err = json.NewDecoder(resp.Body).Decode(&required)
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("parse require-pin response: %w", err)
	}
	if !required.Required {
		return "", nil
	}
	if cs.Pin == "" {
		return "", fmt.Errorf("server requires a PIN; pass -pin or set it in the config")
	}

	body, _ := json.Marshal(map[string]string{"pin": cs.Pin})
	resp, err = httpc.Post(base+"/verify-pin", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("verify pin: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return "", fmt.Errorf("pin rejected: %s", e.Error)
		}
		return "", fmt.Errorf("pin rejected: status %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("server accepted the pin but set no credential cookie")
}

// httpBase converts a ws:// terminal URL into the server's http base URL.
func httpBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = ""
	return u.String(), nil
}
