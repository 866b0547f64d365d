package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchDir  string
	watchOnce bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process documents dropped into a folder",
	Long: `Watch <dir>/incoming for new PDFs and file each one into processed/ (auto-approved),
pending/ (sent for review) or failed/ once the intake pipeline has run.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "folder to watch (default storage.watch_dir)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "process the current backlog and exit")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dir := cfg.Storage.WatchDir
	if watchDir != "" {
		dir = watchDir
	}
	if dir == "" {
		return fmt.Errorf("no folder to watch: set --dir or storage.watch_dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher := a.newFolderWatcher(dir)

	if watchOnce {
		n, err := watcher.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("failed to process backlog: %w", err)
		}
		processed, failed := watcher.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "%d documents: %d filed, %d failed\n", n, processed, failed)
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	logger.Info("Watching folder, press Ctrl+C to stop", zap.String("dir", dir))

	<-ctx.Done()
	return watcher.Stop()
}
