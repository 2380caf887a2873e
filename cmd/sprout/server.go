package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
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

	"github.com/kalambet/sprout/internal/api"
	"github.com/kalambet/sprout/internal/care"
	"github.com/kalambet/sprout/internal/completion"
	"github.com/kalambet/sprout/internal/config"
	"github.com/kalambet/sprout/internal/docstore"
	"github.com/kalambet/sprout/internal/filestore"
	"github.com/kalambet/sprout/internal/session"
)

const (
	serviceCare  = "care"
	serviceFiles = "files"
)

var services = []string{serviceCare, serviceFiles}

var stopCmd = &cobra.Command{
	Use:       "stop <care|files>",
	Short:     "Stop a running sprout service",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: services,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer(args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sprout service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir, service string) string {
	return filepath.Join(dataDir, "sprout-"+service+".pid")
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

func servicePort(cfg config.Config, service string) int {
	if service == serviceCare {
		return cfg.Server.CarePort
	}
	return cfg.Server.FilesPort
}

// localURL is where a client on this machine reaches a service.
func localURL(cfg config.Config, port int) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))
}

func runCare(port int) error {
	fmt.Fprintf(os.Stderr, "sprout care version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.CarePort = port
	}
	if err := cfg.ValidateCare(); err != nil {
		return err
	}
	setupLogging(cfg)

	store, err := docstore.Open(docstore.Options{
		Backend:   cfg.DocStore.Backend,
		BaseURL:   cfg.DocStore.BaseURL,
		AuthToken: cfg.DocStore.AuthToken,
		Timeout:   cfg.DocStore.Timeout,
		DataDir:   cfg.Storage.DataDir,
	})
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing document store: %v\n", err)
		}
	}()
	slog.Info("document store ready", "backend", cfg.DocStore.Backend)

	assistant := completion.NewAssistant(
		completion.NewClientWithBaseURL(cfg.Completion.APIKey, cfg.Completion.BaseURL),
		cfg.Completion.Model,
	)
	handler := api.NewCareHandler(api.CareDeps{
		Care:     care.NewService(store, assistant),
		Sessions: session.NewManager(cfg.Care.SessionSecret, cfg.Care.SessionTTL),
		Logger:   slog.Default(),
	})

	return serve(cfg, serviceCare, cfg.Server.CarePort, handler)
}

func runFiles(port int) error {
	fmt.Fprintf(os.Stderr, "sprout files version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.FilesPort = port
	}
	setupLogging(cfg)

	store, err := filestore.New(cfg.Files.StorageDir)
	if err != nil {
		return err
	}
	slog.Info("file storage ready", "dir", store.Root())
	if cfg.Files.APIToken != "" {
		slog.Info("file API bearer token required")
	}

	handler := api.NewFilesHandler(api.FilesDeps{
		Store:          store,
		Token:          cfg.Files.APIToken,
		MaxUploadBytes: int64(cfg.Files.MaxUploadMB) << 20,
		Logger:         slog.Default(),
	})

	return serve(cfg, serviceFiles, cfg.Server.FilesPort, handler)
}

// runFilesMCP serves the file store to an MCP client over stdio.
func runFilesMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	store, err := filestore.New(cfg.Files.StorageDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewFilesMCPServer(api.MCPDeps{Store: store, Version: version})
	slog.Info("MCP server started (stdio transport)", "dir", store.Root())
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

// serve runs handler until SIGINT or SIGTERM, guarded by a per-service PID file.
func serve(cfg config.Config, service string, port int, handler http.Handler) error {
	pidPath := pidFilePath(cfg.Storage.DataDir, service)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(localURL(cfg, port) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sprout %s is already running (PID %d)", service, pid)
			return fmt.Errorf("%s already running (PID %d)", service, pid)
		}
		printWarning("something is already listening on port %d", port)
		return fmt.Errorf("port %d already in use", port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "sprout %s listening on %s\n", service, addr)
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

func stopServer(service string) error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir, service)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("sprout %s is not running (no PID file)", service)
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sprout %s (PID %d): %v", service, pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sprout %s (PID %d)", service, pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	for _, service := range services {
		port := servicePort(cfg, service)
		label := "Care service"
		if service == serviceFiles {
			label = "Files service"
		}

		resp, err := client.Get(localURL(cfg, port) + "/health")
		if err != nil {
			printStatus(label, "stopped")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			printStatus(label, "error (HTTP %d)", resp.StatusCode)
			continue
		}
		if pid, err := readPIDFile(pidFilePath(cfg.Storage.DataDir, service)); err == nil {
			printStatus(label, "running on port %d (PID %d)", port, pid)
		} else {
			printStatus(label, "running on port %d", port)
		}
	}

	printStatus("Document store", "%s", cfg.DocStore.Backend)
	printStatus("Model", "%s", cfg.Completion.Model)
	if err := cfg.ValidateCare(); err != nil {
		printWarning("%v", err)
	}
	printStatus("Storage dir", "%s", cfg.Files.StorageDir)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
