package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scriptd/internal/analysis"
	"scriptd/internal/api"
	"scriptd/internal/auth"
	"scriptd/internal/cache"
	"scriptd/internal/config"
	"scriptd/internal/embedding"
	"scriptd/internal/jobs"
	"scriptd/internal/logging"
	"scriptd/internal/safety"
	"scriptd/internal/script"
	"scriptd/internal/storage"
)

var (
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the scriptd HTTP API server. The server exposes script CRUD,
upload with background analysis, similarity search, versions, execution logs
and job management over REST endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	dbDir := cfg.Database.Dir
	if dbDir == "" {
		dbDir = configDir
	}

	// Store of record
	db, err := storage.Open(dbDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// Cache tier; the engine runs cacheless when redis is absent
	scriptCache, err := cache.New(context.Background(), cfg.Cache.RedisURL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, running without cache", map[string]interface{}{
			"error": err.Error(),
		})
		scriptCache = cache.Disabled(logger)
	}

	// AI analysis client; nil means every write gets the placeholder analysis
	var analyzer *analysis.Client
	if cfg.Analysis.ServiceURL != "" {
		analyzer = analysis.NewClient(
			cfg.Analysis.ServiceURL,
			cfg.Analysis.APIKey,
			time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second,
			logger,
		)
	} else {
		logger.Warn("No analysis service configured, all scripts get placeholder analysis", nil)
	}

	// Content safety screen
	screen, err := safety.NewScreen()
	if cfg.Safety.RulesPath != "" {
		screen, err = safety.NewScreenFromFile(cfg.Safety.RulesPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load safety rules: %w", err)
	}

	// Background jobs
	jobStore, err := jobs.OpenStore(dbDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer jobStore.Close()

	runner := jobs.NewRunner(jobStore, logger, jobs.RunnerConfig{
		QueueSize:   cfg.Jobs.QueueSize,
		WorkerCount: cfg.Jobs.WorkerCount,
	})

	svc, err := script.NewService(
		db,
		analyzer,
		embedding.NewGateway(db, analyzer, logger),
		scriptCache,
		runner,
		screen,
		script.Options{
			ScriptTTL:     time.Duration(cfg.Cache.ScriptTtlSeconds) * time.Second,
			ListTTL:       time.Duration(cfg.Cache.ListTtlSeconds) * time.Second,
			MinSimilarity: cfg.Analysis.MinSimilarity,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create script service: %w", err)
	}

	svc.RegisterJobHandlers(runner)
	if err := runner.Start(); err != nil {
		return fmt.Errorf("failed to start job runner: %w", err)
	}

	server := api.NewServer(addr, api.Deps{
		Scripts:  svc,
		Auth:     auth.NewManager(db, logger),
		JobStore: jobStore,
		Runner:   runner,
		DB:       db,
	}, logger)

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("scriptd HTTP API listening on http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}

		if err := runner.Stop(10 * time.Second); err != nil {
			logger.Warn("Job runner did not drain in time", map[string]interface{}{
				"error": err.Error(),
			})
		}

		logger.Info("Server stopped gracefully", nil)
	}

	return nil
}
