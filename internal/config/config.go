package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// MaxLoginAttempts is the number of failed PIN verifications from one
// address before lockout. Fixed, not configurable.
const MaxLoginAttempts = 5

type Settings struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath   string `envconfig:"DATA_PATH" default:"/var/lib/webterm"`
	LogPath    string `envconfig:"LOG_PATH" default:""`

	// Shell settings
	ShellPath string   `envconfig:"SHELL_PATH" default:""`
	WorkDir   string   `envconfig:"WORKDIR" default:""`
	ShellEnv  []string `envconfig:"SHELL_ENV" default:""`

	// PTY backend: "os" spawns a real shell, "sim" runs the simulated
	// shell (for sandboxed environments without PTY access).
	PTYBackend string `envconfig:"PTY_BACKEND" default:"os"`

	// Authentication settings. An empty AccessCode disables the gate
	// entirely. A value starting with "$2" is treated as a bcrypt hash.
	AccessCode       string `envconfig:"ACCESS_CODE" default:""`
	LockoutWindow    string `envconfig:"LOCKOUT_WINDOW" default:"15m"`
	CredentialMaxAge string `envconfig:"CREDENTIAL_MAX_AGE" default:"24h"`
}

var Cfg Settings

// Load reads .env (if present) and then the WEBTERM_* environment into Cfg.
func Load() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: .env not loaded: %v", err)
	}
	if err := envconfig.Process("WEBTERM", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// ShellCommand returns the configured shell path, falling back to $SHELL
// and then /bin/bash.
func (s Settings) ShellCommand() string {
	if s.ShellPath != "" {
		return s.ShellPath
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// WorkingDir returns the configured working directory, falling back to
// $HOME and then /tmp.
func (s Settings) WorkingDir() string {
	if s.WorkDir != "" {
		return s.WorkDir
	}
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	return "/tmp"
}

// ProcessEnv builds the environment for spawned shells: the server's own
// environment, a fixed terminal type and locale, then any configured extras.
func (s Settings) ProcessEnv() []string {
	env := os.Environ()
	env = append(env, "TERM=xterm-256color", "LANG=en_US.UTF-8")
	for _, kv := range s.ShellEnv {
		if strings.Contains(kv, "=") {
			env = append(env, kv)
		}
	}
	return env
}
