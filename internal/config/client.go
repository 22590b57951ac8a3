package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ClientSettings is the attach client's configuration, read from a YAML
// file (default ~/.config/webterm/client.yaml). Command-line flags take
// precedence over file values.
type ClientSettings struct {
	ServerURL string `yaml:"server_url"`
	Pin       string `yaml:"pin"`

	// Persistence store for tab state. Backend is one of
	// "memory", "sqlite", "redis".
	StoreBackend string `yaml:"store_backend"`
	StorePath    string `yaml:"store_path"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisPass    string `yaml:"redis_password"`
}

// DefaultClientConfigPath returns the conventional client config location.
func DefaultClientConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "client.yaml"
	}
	return filepath.Join(home, ".config", "webterm", "client.yaml")
}

// LoadClient parses the YAML client config at path. A missing file is not
// an error; defaults are returned.
func LoadClient(path string) (ClientSettings, error) {
	cs := ClientSettings{
		ServerURL:    "ws://localhost:8000/terminal",
		StoreBackend: "memory",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cs, nil
		}
		return cs, fmt.Errorf("read client config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return cs, fmt.Errorf("parse client config: %w", err)
	}
	if cs.ServerURL == "" {
		cs.ServerURL = "ws://localhost:8000/terminal"
	}
	if cs.StoreBackend == "" {
		cs.StoreBackend = "memory"
	}
	return cs, nil
}
