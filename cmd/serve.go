package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mediaproc/api"
	"mediaproc/config"
	"mediaproc/ffmpeg"
	"mediaproc/ledger"
	"mediaproc/logger"
	"mediaproc/task"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogConfig)
	if err != nil {
		return err
	}
	defer log.Sync()
	if cfg.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. Initialize dependencies (ledger and runner first)
	store, err := ledger.Open(cfg)
	if err != nil {
		log.Error("failed to open ledger", zap.Error(err))
		return err
	}
	defer closeStore(store)

	runner, err := ffmpeg.NewRunner(cfg, log)
	if err != nil {
		log.Error("failed to initialize ffmpeg runner", zap.Error(err))
		return err
	}

	// 3. Initialize the task manager and inject the runner
	taskManager, err := task.NewManager(cfg, store, runner, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := taskManager.Recover(ctx); err != nil {
		log.Error("failed to recover interrupted tasks", zap.Error(err))
		return err
	} else if n > 0 {
		log.Warn("marked interrupted tasks as failed", zap.Int("count", n))
	}

	sweeper := task.NewSweeper(cfg, taskManager.Registry(), log)
	if err := sweeper.Start(ctx); err != nil {
		log.Error("failed to start output sweeper", zap.Error(err))
		return err
	}

	// 4. Set up router and server
	router := api.SetupRouter(taskManager, cfg, log)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.Int("max_concurrency", cfg.MaxConcurrency))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 5. Wait for interrupt signal for graceful shutdown
	select {
	case err := <-serverErr:
		log.Error("listen failed", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	log.Info("shutting down gracefully, press Ctrl+C again to force")

	// In-flight transcodes get as long as the ffmpeg timeout to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.FFTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("server exiting")
	return nil
}
