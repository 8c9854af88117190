package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenLogoBridge/internal/config"
	"github.com/KevinKickass/OpenLogoBridge/internal/storage"
	"github.com/KevinKickass/OpenLogoBridge/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	debug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge with REST, WebSocket and gRPC health",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to config file")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "development logging")
	rootCmd.AddCommand(serveCmd)
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runServe(cmd *cobra.Command, args []string) error {
	// Logger initialisieren
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	// Config laden
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("Failed to load config", zap.String("path", configPath), zap.Error(err))
		return err
	}

	logger.Info("Config loaded successfully", zap.String("path", configPath))

	// PostgreSQL nur mit aktivierter Historie
	var db *storage.PostgresClient
	if cfg.Database.Enabled {
		db, err = storage.NewPostgresClient(context.Background(), cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", zap.Error(err))
			return err
		}
		defer db.Close()

		logger.Info("Database connected successfully")
	}

	lifecycle, err := system.NewLifecycleManager(db, cfg, logger)
	if err != nil {
		return err
	}

	if err := lifecycle.Start(); err != nil {
		logger.Error("Failed to start system", zap.Error(err))
		lifecycle.Shutdown(context.Background())
		return err
	}

	logger.Info("OpenLogoBridge started successfully")

	// Graceful Shutdown auf Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("OpenLogoBridge stopped successfully")
	return nil
}
