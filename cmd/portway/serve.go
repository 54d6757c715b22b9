package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"portway/internal/config"
	"portway/internal/coolify"
	"portway/internal/deploy"
	"portway/internal/githubcheck"
	"portway/internal/history"
	"portway/internal/portalloc"
	"portway/internal/server"
	"portway/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logFile    string
	host       string
	port       int
	testMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deployment gateway server",
	Long: `Start the HTTP server that exposes the deployment API.

The server talks to the configured Coolify instance and allocates a unique
host port for every application it deploys.`,
	RunE: runServe,
}

func init() {
	// Flags for serve command
	serveCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("PORTWAY_CONFIG_FILE", ""), "Path to portway.yaml configuration file")
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("PORTWAY_LOG_FILE", "./portway.log"), "Path to log file")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("PORTWAY_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("PORTWAY_PORT", 8000), "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("PORTWAY_TEST_MODE") == "1", "Enable test mode (no rate limiting, no history)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Determine config file path
	if configFile == "" {
		searchPaths := fileutil.DefaultConfigPaths("portway.yaml")
		configFile = fileutil.SearchPathsOptional(searchPaths)
		if configFile == "" {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, path := range searchPaths {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return fmt.Errorf("configuration file not found")
		}
	}

	// Set up logging
	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting portway")

	// Load configuration
	logger.Info("Loading configuration", "config", configFile)
	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Build the port counter backend
	alloc, err := buildAllocator(cfg)
	if err != nil {
		logger.Error("Failed to set up port counter", "error", err)
		return err
	}

	// Seed the counter at startup. A failure here is logged but not fatal:
	// the backend may become reachable later, and allocation fails cleanly
	// until then.
	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := alloc.Initialize(initCtx); err != nil {
		logger.Warn("Port counter initialization failed, continuing", "error", err)
	} else {
		logger.Info("Port counter ready", "backend", cfg.PortCounter.Backend, "initial_port", cfg.InitialHostPort)
	}
	cancel()

	// Initialize history database
	var hist *history.History
	if !testMode {
		logger.Info("Initializing history database", "db", cfg.HistoryDBPath)
		hist, err = history.New(cfg.HistoryDBPath)
		if err != nil {
			logger.Error("Failed to initialize history database", "error", err)
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		defer hist.Close()
	}

	checker := githubcheck.New(cfg.GitHubToken)
	if checker.Enabled() {
		logger.Info("GitHub repository pre-check enabled")
	} else {
		logger.Warn("No GitHub token configured, repository pre-check disabled")
	}

	orch := deploy.NewOrchestrator(
		coolify.NewClient(cfg.CoolifyURL, cfg.APIToken),
		alloc,
		checker,
		hist,
		cfg,
		logger,
	)

	// Create and start server
	srv := server.NewServer(orch, hist, cfg, logger, testMode)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(host, port)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// buildAllocator selects the counter backend from configuration.
func buildAllocator(cfg *config.Config) (portalloc.Allocator, error) {
	switch cfg.PortCounter.Backend {
	case config.BackendFile:
		return portalloc.NewFileAllocator(cfg.PortCounter.Path, cfg.InitialHostPort), nil
	case config.BackendDatabase:
		return portalloc.NewDBAllocator(cfg.PortCounter.DBPath, cfg.InitialHostPort)
	default:
		return nil, fmt.Errorf("unknown port counter backend: %s", cfg.PortCounter.Backend)
	}
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)

	return logger, file, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
