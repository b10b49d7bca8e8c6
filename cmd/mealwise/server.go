package main

import (
	"context"
	"encoding/json"
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

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mealwise/mealwise/internal/api"
	"github.com/mealwise/mealwise/internal/config"
	"github.com/mealwise/mealwise/internal/importer"
	"github.com/mealwise/mealwise/internal/profile"
	"github.com/mealwise/mealwise/internal/session"
	"github.com/mealwise/mealwise/internal/storage"
	"github.com/mealwise/mealwise/internal/vision"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mealwise server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running mealwise server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mealwise system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "mealwise.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "mealwise version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("mealwise is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("mealwise is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the session layer: profile cache + daily tracking + recommender.
	profileMgr := profile.NewManager(store)
	sess := session.New(store, profileMgr)
	metrics := api.NewMetrics()

	// The AI endpoints are optional; without a key they report 503.
	var visionSvc api.VisionService
	if cfg.Gemini.APIKey != "" {
		visionSvc = vision.New(vision.Options{
			BaseURL:     cfg.Gemini.BaseURL,
			APIKey:      cfg.Gemini.APIKey,
			VisionModel: cfg.Gemini.VisionModel,
			ImageModel:  cfg.Gemini.ImageModel,
			TextModel:   cfg.Gemini.TextModel,
		})
	} else {
		slog.Warn("no Gemini API key configured; analyze/edit-image/nearby endpoints disabled")
	}

	appDeps := api.AppDeps{
		Session: sess,
		Vision:  visionSvc,
		Metrics: metrics,
	}

	// Compose top-level router: app routes + admin routes + metrics.
	topRouter := chi.NewRouter()
	topRouter.Mount("/", api.NewAppHandler(appDeps))
	topRouter.Mount("/admin", api.NewAdminHandler(api.AdminDeps{
		Store:   store,
		Token:   cfg.Admin.Token,
		Metrics: metrics,
	}))
	topRouter.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Menu import worker.
	worker := importer.NewWorker(store, 500*time.Millisecond)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	// MCP server on stdio.
	mcpSrv := api.NewMCPServer(appDeps)
	stdioSrv := server.NewStdioServer(mcpSrv)
	g.Go(func() error {
		err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")

	// HTTP server, shut down gracefully when the group context ends.
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "mealwise listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("mealwise is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop mealwise (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to mealwise (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Gemini.APIKey != "" {
		printStatus("AI features", "enabled (%s)", cfg.Gemini.VisionModel)
	} else {
		printStatus("AI features", "disabled (no API key)")
	}

	// Show today's tracking and catalog size if the server is running.
	if err == nil && resp.StatusCode == 200 {
		if statsResp, statsErr := client.Get(serverURL + "/stats"); statsErr == nil {
			var stats struct {
				CaloriesCurrent int `json:"calories_current"`
				CaloriesTarget  int `json:"calories_target"`
				StepsCurrent    int `json:"steps_current"`
				WaterCurrent    int `json:"water_current"`
			}
			if json.NewDecoder(statsResp.Body).Decode(&stats) == nil {
				printStatus("Calories", "%d / %d kcal", stats.CaloriesCurrent, stats.CaloriesTarget)
				printStatus("Steps", "%d", stats.StepsCurrent)
				printStatus("Water", "%d ml", stats.WaterCurrent)
			}
			statsResp.Body.Close()
		}

		if cfg.Admin.Token != "" {
			if mealsResp, mealsErr := apiGet(client, serverURL+"/admin/meals", cfg.Admin.Token); mealsErr == nil {
				var meals []json.RawMessage
				if json.NewDecoder(mealsResp.Body).Decode(&meals) == nil {
					printStatus("Catalog", "%d meals", len(meals))
				}
				mealsResp.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
