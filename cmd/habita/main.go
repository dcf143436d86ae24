package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/habitaworks/habita/internal/adapters/server"
	"github.com/habitaworks/habita/internal/adapters/server/common"
	"github.com/habitaworks/habita/internal/adapters/storage/sqlite"
	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/cache"
	"github.com/habitaworks/habita/internal/client"
	"github.com/habitaworks/habita/internal/config"
	"github.com/habitaworks/habita/internal/platform"
	"github.com/habitaworks/habita/internal/tui"
)

var version = "dev"

// program abstracts the TUI event loop for tests.
type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run parses flags, resolves paths and config, and dispatches the command.
// The empty command opens the dashboard.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("habita", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		dbPath     string
		remoteURL  string
		workerID   string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("HABITA_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&dbPath, "db", "", "path to sqlite database")
	fs.StringVar(&remoteURL, "remote", "", "remote API base URL (overrides client.remote_url)")
	fs.StringVar(&workerID, "worker", "", "acting worker id (overrides client.worker_id)")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (habita-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "habita %s\n", version)
		return nil
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: "habita",
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "paths":
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
		return nil
	case "", "serve":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	dbOverridden := strings.TrimSpace(dbPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("HABITA_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !dbOverridden {
		dbPath = paths.DBPath
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if strings.TrimSpace(remoteURL) != "" {
		cfg.Client.RemoteURL = strings.TrimSpace(remoteURL)
	}
	if strings.TrimSpace(workerID) != "" {
		cfg.Client.WorkerID = strings.TrimSpace(workerID)
	}

	// The dashboard owns the whole terminal, so its runtime events go to the
	// dev-file sink (or nowhere) instead of stderr.
	logger, closeLog, err := newLogger(stderr, devMode, command == "", cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer closeLog()

	logger.Info("configuration loaded",
		"config_path", configPath, "db_path", cfg.Database.Path,
		"remote_url", cfg.Client.RemoteURL, "command", command)

	if command == "serve" {
		return runServe(ctx, cfg, logger)
	}
	return runDashboard(cfg, logger)
}

// runServe hosts the REST and MCP surfaces over the embedded store.
func runServe(ctx context.Context, cfg config.Config, logger *charmLog.Logger) error {
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("sqlite close failed", "err", closeErr)
		}
	}()

	svc := app.NewService(repo, uuid.NewString, nil)
	logger.Info("serving", "bind", cfg.Server.Bind,
		"api", cfg.Server.APIEndpoint, "mcp", cfg.Server.MCPEndpoint)
	err = server.Run(ctx, server.Config{
		HTTPBind:      cfg.Server.Bind,
		APIEndpoint:   cfg.Server.APIEndpoint,
		MCPEndpoint:   cfg.Server.MCPEndpoint,
		ServerName:    "habita",
		ServerVersion: version,
	}, svc)
	if err != nil {
		logger.Error("server terminated", "err", err)
		return fmt.Errorf("run server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// runDashboard opens the TUI over either the embedded store or a remote
// server, depending on client.remote_url.
func runDashboard(cfg config.Config, logger *charmLog.Logger) error {
	var svc common.Service
	if remote := strings.TrimSpace(cfg.Client.RemoteURL); remote != "" {
		remoteClient, err := client.New(remote)
		if err != nil {
			return fmt.Errorf("configure remote client: %w", err)
		}
		svc = remoteClient
		logger.Info("dashboard backed by remote server", "remote_url", remote)
	} else {
		repo, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
			return fmt.Errorf("open sqlite repository: %w", err)
		}
		defer func() {
			if closeErr := repo.Close(); closeErr != nil {
				logger.Warn("sqlite close failed", "err", closeErr)
			}
		}()
		svc = app.NewService(repo, uuid.NewString, nil)
		logger.Info("dashboard backed by embedded store", "db_path", cfg.Database.Path)
	}

	store := cache.NewStore()
	defer store.Close()
	m := tui.NewModel(svc, store,
		tui.WithWorkerID(cfg.Client.WorkerID),
		tui.WithShowCancelled(cfg.UI.ShowCancelled),
	)
	if _, err := programFactory(m).Run(); err != nil {
		logger.Error("dashboard terminated", "err", err)
		return fmt.Errorf("run dashboard: %w", err)
	}
	logger.Info("dashboard closed")
	return nil
}

// newLogger builds the runtime logger. In quiet mode (TUI active) events go
// to the dev-mode log file when enabled, otherwise they are discarded.
func newLogger(stderr io.Writer, devMode, quiet bool, cfg config.LoggingConfig) (*charmLog.Logger, func(), error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}

	writer := stderr
	formatter := charmLog.TextFormatter
	closeFn := func() {}
	if quiet {
		writer = io.Discard
		if devMode && cfg.DevFile.Enabled {
			path, err := devLogFilePath(cfg.DevFile.Dir, time.Now().UTC())
			if err != nil {
				return nil, nil, err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create dev log dir: %w", err)
			}
			logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, nil, fmt.Errorf("open dev log file: %w", err)
			}
			writer = logFile
			formatter = charmLog.LogfmtFormatter
			closeFn = func() { _ = logFile.Close() }
		}
	}

	logger := charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           level,
		Prefix:          "habita",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	})
	return logger, closeFn, nil
}

// devLogFilePath resolves one log file per run day under the configured dir.
func devLogFilePath(configDir string, now time.Time) (string, error) {
	baseDir := strings.TrimSpace(configDir)
	if baseDir == "" {
		baseDir = ".habita/log"
	}
	if !filepath.IsAbs(baseDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		baseDir = filepath.Join(cwd, baseDir)
	}
	fileName := fmt.Sprintf("habita-%s.log", now.Format("20060102"))
	return filepath.Join(filepath.Clean(baseDir), fileName), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
