package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mx-space/authgate/internal/app"
	"github.com/mx-space/authgate/internal/config"
	"github.com/mx-space/authgate/internal/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Dev: cfg.IsDev()})
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, log, cfg)
		if err != nil {
			log.Error("failed to initialize app", zap.Error(err))
			return err
		}

		srv := &http.Server{
			Addr:              application.Addr(),
			Handler:           application.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			log.Info("server starting",
				zap.String("addr", srv.Addr),
				zap.String("env", cfg.Env),
				zap.String("registry", cfg.Registry.Driver))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			if err != nil {
				log.Error("server error", zap.Error(err))
				application.Shutdown(context.Background())
				return err
			}
		case <-ctx.Done():
		}

		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("forced shutdown", zap.Error(err))
		}
		application.Shutdown(shutdownCtx)
		log.Info("server exited")
		return nil
	},
}
