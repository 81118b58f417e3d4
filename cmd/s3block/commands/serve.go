package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/s3block/internal/controlapi"
	"github.com/marmos91/s3block/internal/controlapi/auth"
	"github.com/marmos91/s3block/internal/logger"
	"github.com/marmos91/s3block/internal/telemetry"
	"github.com/marmos91/s3block/pkg/config"
	"github.com/marmos91/s3block/stack"

	// Import prometheus metrics to register init() functions.
	_ "github.com/marmos91/s3block/pkg/metrics/prometheus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the block device and its admin API",
	Long: `Assemble the storage stack (block cache, zero cache, EC protect,
HTTP I/O) from configuration and serve its admin HTTP API until
interrupted.

Examples:
  # Serve with default config location
  s3block serve

  # Serve with custom config
  s3block serve --config /etc/s3block/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "s3block",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("telemetry disabled")
	}

	store, err := stack.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble storage stack: %w", err)
	}

	logger.Info("storage stack assembled",
		"block_size", cfg.BlockCache.BlockSize.String(),
		"num_blocks", cfg.BlockCache.NumBlocks,
		"zerocache_enabled", cfg.ZeroCache.Enabled,
		"ecprotect_enabled", cfg.ECProtect.Enabled)

	var srv *http.Server
	serverDone := make(chan error, 1)

	if cfg.Admin.Enabled {
		jwtSvc, err := auth.NewService(auth.Config{
			Secret:   cfg.Admin.JWTSecret,
			TokenTTL: cfg.Admin.TokenTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize admin auth: %w", err)
		}

		router := controlapi.NewRouter(store, stack.Geometry(cfg), jwtSvc)
		srv = &http.Server{Addr: cfg.Admin.ListenAddr, Handler: router}

		go func() {
			logger.Info("admin API listening", "addr", cfg.Admin.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverDone <- err
				return
			}
			serverDone <- nil
		}()
	} else {
		logger.Info("admin API disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("s3block is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("admin API server error", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin API shutdown error", "error", err)
		}
	}

	if err := store.Shutdown(shutdownCtx); err != nil {
		logger.Error("storage stack shutdown error", "error", err)
		return err
	}

	logger.Info("s3block stopped gracefully")
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
