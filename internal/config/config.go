package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Client   ClientConfig   `toml:"client"`
	UI       UIConfig       `toml:"ui"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path" env:"HABITA_DB_PATH"`
}

type ServerConfig struct {
	Bind        string `toml:"bind" env:"HABITA_BIND"`
	APIEndpoint string `toml:"api_endpoint" env:"HABITA_API_ENDPOINT"`
	MCPEndpoint string `toml:"mcp_endpoint" env:"HABITA_MCP_ENDPOINT"`
}

type ClientConfig struct {
	// RemoteURL switches the TUI and CLI from the embedded store to a
	// remote server's API base, e.g. "http://127.0.0.1:8080/api/v1".
	RemoteURL string `toml:"remote_url" env:"HABITA_REMOTE_URL"`
	// WorkerID identifies the operator for attendance and subtask actions.
	WorkerID string `toml:"worker_id" env:"HABITA_WORKER_ID"`
}

type UIConfig struct {
	ShowCancelled  bool `toml:"show_cancelled" env:"HABITA_UI_SHOW_CANCELLED"`
	RefreshSeconds int  `toml:"refresh_seconds" env:"HABITA_UI_REFRESH_SECONDS"`
}

type LoggingConfig struct {
	Level   string        `toml:"level" env:"HABITA_LOG_LEVEL"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the unstyled logfmt sink written in dev mode, so
// runtime events survive the alternate-screen TUI session.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled" env:"HABITA_LOG_DEV_FILE"`
	Dir     string `toml:"dir" env:"HABITA_LOG_DEV_DIR"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		UI: UIConfig{
			ShowCancelled:  false,
			RefreshSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load layers the TOML file over defaults, then environment variables over
// both. A missing file is not an error.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if len(content) > 0 {
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server bind address is required")
	}
	api := normalizeEndpoint(c.Server.APIEndpoint)
	mcp := normalizeEndpoint(c.Server.MCPEndpoint)
	if api == "" || mcp == "" {
		return errors.New("server endpoints are required")
	}
	if api == mcp {
		return fmt.Errorf("server api and mcp endpoints must differ: %q", api)
	}
	if c.UI.RefreshSeconds < 0 {
		return fmt.Errorf("ui.refresh_seconds must be >= 0, got %d", c.UI.RefreshSeconds)
	}
	if remote := strings.TrimSpace(c.Client.RemoteURL); remote != "" {
		if !strings.HasPrefix(remote, "http://") && !strings.HasPrefix(remote, "https://") {
			return fmt.Errorf("client.remote_url must be an http(s) URL: %q", remote)
		}
	}
	return nil
}

func normalizeEndpoint(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
