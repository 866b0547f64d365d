package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/garyjia/invoice-intake/internal/application/service"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// Watched file outcomes
const (
	OutcomeProcessed = "processed"
	OutcomePending   = "pending"
	OutcomeFailed    = "failed"
)

// InvoiceProcessor runs one document through the intake pipeline
type InvoiceProcessor interface {
	Process(ctx context.Context, req service.ProcessRequest) (*service.ProcessResult, error)
}

// FileRecorder observes watcher outcomes, typically for metrics
type FileRecorder interface {
	RecordWatchedFile(outcome string)
}

// FolderWatcherConfig holds configuration for the folder watcher
type FolderWatcherConfig struct {
	// Debounce is how long a file must stay quiet before it is processed
	Debounce       time.Duration
	ProcessTimeout time.Duration
	Extensions     []string
}

// DefaultFolderWatcherConfig returns default configuration
func DefaultFolderWatcherConfig() FolderWatcherConfig {
	return FolderWatcherConfig{
		Debounce:       500 * time.Millisecond,
		ProcessTimeout: 120 * time.Second,
		Extensions:     []string{".pdf"},
	}
}

// FolderWatcher processes documents dropped into the incoming folder and files them
// into processed (auto-approved), pending (needs review) or failed.
type FolderWatcher struct {
	config    FolderWatcherConfig
	folders   *storage.FolderManager
	processor InvoiceProcessor
	recorder  FileRecorder
	logger    *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	fsw       *fsnotify.Watcher
	pending   map[string]time.Time

	statsMu        sync.Mutex
	processedCount int
	failedCount    int
}

// NewFolderWatcher creates a new folder watcher. recorder may be nil.
func NewFolderWatcher(config FolderWatcherConfig, folders *storage.FolderManager, processor InvoiceProcessor, recorder FileRecorder, logger *zap.Logger) *FolderWatcher {
	def := DefaultFolderWatcherConfig()
	if config.Debounce <= 0 {
		config.Debounce = def.Debounce
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = def.ProcessTimeout
	}
	if len(config.Extensions) == 0 {
		config.Extensions = def.Extensions
	}
	return &FolderWatcher{
		config:    config,
		folders:   folders,
		processor: processor,
		recorder:  recorder,
		logger:    logger,
		pending:   make(map[string]time.Time),
	}
}

// Name returns the worker name for identification
func (w *FolderWatcher) Name() string {
	return "FolderWatcher"
}

// Start processes the backlog in the incoming folder, then watches it for new files
func (w *FolderWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("folder watcher already running")
	}
	if err := w.folders.Ensure(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	incoming := w.folders.GetPath(storage.FolderIncoming)
	if err := fsw.Add(incoming); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", incoming, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("FolderWatcher started",
		zap.String("incoming", incoming),
		zap.Duration("debounce", w.config.Debounce))

	go w.loop(runCtx)
	return nil
}

// Stop terminates the watch loop and waits for the file in flight
func (w *FolderWatcher) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done, fsw := w.cancel, w.done, w.fsw
	w.mu.Unlock()

	cancel()
	<-done
	err := fsw.Close()

	processed, failed := w.Stats()
	w.logger.Info("FolderWatcher stopped",
		zap.Int("processed_count", processed),
		zap.Int("failed_count", failed))
	return err
}

// Stats returns how many files were filed as processed or pending, and how many failed
func (w *FolderWatcher) Stats() (processed, failed int) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.processedCount, w.failedCount
}

// RunOnce processes every eligible file currently in the incoming folder, oldest first
func (w *FolderWatcher) RunOnce(ctx context.Context) (int, error) {
	if err := w.folders.Ensure(); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(w.folders.GetPath(storage.FolderIncoming))
	if err != nil {
		return 0, fmt.Errorf("failed to list incoming folder: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var files []candidate
	for _, entry := range entries {
		if entry.IsDir() || !w.eligible(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{
			path:    filepath.Join(w.folders.GetPath(storage.FolderIncoming), entry.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	count := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		w.processFile(ctx, f.path)
		count++
	}
	return count, nil
}

func (w *FolderWatcher) loop(ctx context.Context) {
	defer close(w.done)

	if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("Failed to process backlog", zap.Error(err))
	}

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) && w.eligible(ev.Name) {
				w.pending[ev.Name] = time.Now()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", zap.Error(err))

		case now := <-ticker.C:
			w.flushPending(ctx, now)
		}
	}
}

// flushPending processes files that have not changed for the debounce period
func (w *FolderWatcher) flushPending(ctx context.Context, now time.Time) {
	var ready []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.config.Debounce {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)

	for _, path := range ready {
		delete(w.pending, path)
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		w.processFile(ctx, path)
	}
}

func (w *FolderWatcher) processFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	w.logger.Info("Processing file", zap.String("file_name", name))

	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Error("Failed to read file", zap.String("file_name", name), zap.Error(err))
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, w.config.ProcessTimeout)
	defer cancel()

	outcome := OutcomeFailed
	result, err := w.processor.Process(processCtx, service.ProcessRequest{Filename: name, Content: content})
	switch {
	case err != nil:
		w.logger.Error("Failed to process file", zap.String("file_name", name), zap.Error(err))
	case result.Status == entity.OutcomeAutoApproved:
		outcome = OutcomeProcessed
	default:
		outcome = OutcomePending
	}

	if err != nil && ctx.Err() != nil {
		// shutting down; leave the file for the next run
		return
	}

	folder := map[string]string{
		OutcomeProcessed: storage.FolderProcessed,
		OutcomePending:   storage.FolderPending,
		OutcomeFailed:    storage.FolderFailed,
	}[outcome]
	dst, moveErr := w.folders.MoveTo(path, folder)
	if moveErr != nil {
		w.logger.Error("Failed to file document", zap.String("file_name", name), zap.Error(moveErr))
	}

	w.statsMu.Lock()
	if outcome == OutcomeFailed {
		w.failedCount++
	} else {
		w.processedCount++
	}
	w.statsMu.Unlock()

	if outcome != OutcomeFailed {
		w.logger.Info("File processed",
			zap.String("file_name", name),
			zap.String("approval_id", result.ApprovalID),
			zap.String("status", result.Status),
			zap.String("moved_to", dst))
	}
	if w.recorder != nil {
		w.recorder.RecordWatchedFile(outcome)
	}
}

func (w *FolderWatcher) eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range w.config.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
