package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-intake/internal/infrastructure/worker"
	httpserver "github.com/garyjia/invoice-intake/internal/interfaces/http"
	"github.com/garyjia/invoice-intake/pkg/utils"
)

var serveWithWatcher bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Start the HTTP API, optionally together with the incoming-folder watcher.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWatcher, "watch", false, "also watch storage.watch_dir for new documents")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cmd.Flags().Changed("watch") {
		cfg.Watcher.Enabled = serveWithWatcher
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	workers := worker.NewManager(logger)
	if cfg.Watcher.Enabled {
		workers.Register(a.newFolderWatcher(cfg.Storage.WatchDir))
	}
	if err := workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer func() {
		if err := workers.StopAll(); err != nil {
			logger.Error("Failed to stop workers", zap.Error(err))
		}
	}()

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}, a.intake, a.approvals, a.metrics, utils.NewKVLogger(logger))

	logger.Info("Starting invoice intake",
		zap.String("address", server.Address()),
		zap.Bool("watcher", cfg.Watcher.Enabled))

	return server.Start(ctx)
}
