package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/api"
	"github.com/kalambet/cinetrait/internal/catalog"
	"github.com/kalambet/cinetrait/internal/config"
	"github.com/kalambet/cinetrait/internal/profile"
	"github.com/kalambet/cinetrait/internal/refresh"
	"github.com/kalambet/cinetrait/internal/storage"
)

// sweepTimeout bounds one scheduled re-analysis of all users.
const sweepTimeout = 30 * time.Minute

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cinetrait server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running cinetrait server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cinetrait server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "cinetrait.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func loadTables(path string) (*analysis.Tables, error) {
	if path == "" {
		return analysis.DefaultTables(), nil
	}
	t, err := analysis.LoadTablesFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading weight tables: %w", err)
	}
	return t, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "cinetrait version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIToken(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	tables, err := loadTables(cfg.Analysis.WeightsFile)
	if err != nil {
		return err
	}
	if cfg.Refresh.Schedule != "" {
		if err := refresh.ValidateSchedule(cfg.Refresh.Schedule); err != nil {
			return err
		}
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("cinetrait is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("cinetrait is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	profileMgr := profile.NewManager(store)
	analyzer := analysis.New(tables, store, catalog.NewResolver(store, tables.Categories), profileMgr)

	worker := refresh.NewWorker(store, analyzer, cfg.Refresh.PollInterval)
	go worker.Run(ctx)

	if cfg.Refresh.Schedule != "" {
		sweeper := refresh.NewSweeper(store, analyzer)
		if err := sweeper.Schedule(ctx, cfg.Refresh.Schedule, sweepTimeout); err != nil {
			return err
		}
		defer sweeper.Stop()
		slog.Info("re-analysis sweep scheduled", "schedule", cfg.Refresh.Schedule)
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    store,
			Analyzer: analyzer,
			Profile:  profileMgr,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewAppHandler(api.AppDeps{
			Store:       store,
			Analyzer:    analyzer,
			Profile:     profileMgr,
			Token:       cfg.Server.APIToken,
			CORSOrigins: cfg.Server.CORSOrigins,
			RateLimit:   cfg.Server.RateLimit,
			MaxAttempts: cfg.Refresh.MaxAttempts,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("cinetrait listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("cinetrait is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop cinetrait (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to cinetrait (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if pid, err := readPIDFile(pidFilePath(cfg.Storage.DataDir)); err == nil {
		printStatus("PID", "%d", pid)
	}
	if cfg.Analysis.WeightsFile != "" {
		printStatus("Weights", "%s", cfg.Analysis.WeightsFile)
	} else {
		printStatus("Weights", "built-in")
	}
	if cfg.Refresh.Schedule != "" {
		printStatus("Sweep", "%s (UTC)", cfg.Refresh.Schedule)
	} else {
		printStatus("Sweep", "disabled")
	}
	printStatus("API token", "%s", tokenState(cfg.Server.APIToken))
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func tokenState(token string) string {
	if token == "" {
		return "missing (set CINETRAIT_API_TOKEN)"
	}
	return "set"
}
