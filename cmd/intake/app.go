package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/application/service"
	"github.com/garyjia/invoice-intake/internal/config"
	"github.com/garyjia/invoice-intake/internal/infrastructure/export"
	"github.com/garyjia/invoice-intake/internal/infrastructure/external/lark"
	natsevents "github.com/garyjia/invoice-intake/internal/infrastructure/external/nats"
	"github.com/garyjia/invoice-intake/internal/infrastructure/external/openai"
	"github.com/garyjia/invoice-intake/internal/infrastructure/external/pdf"
	"github.com/garyjia/invoice-intake/internal/infrastructure/external/stub"
	"github.com/garyjia/invoice-intake/internal/infrastructure/persistence/memory"
	"github.com/garyjia/invoice-intake/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-intake/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-intake/internal/infrastructure/resilience"
	"github.com/garyjia/invoice-intake/internal/infrastructure/storage"
	"github.com/garyjia/invoice-intake/internal/infrastructure/worker"
	"github.com/garyjia/invoice-intake/internal/observability/metrics"
	"github.com/garyjia/invoice-intake/migrations"
	"github.com/garyjia/invoice-intake/pkg/database"
	"github.com/garyjia/invoice-intake/pkg/utils"
)

// app holds the wired services shared by serve and watch
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	intake    service.IntakeService
	approvals service.ApprovalService
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	rulesCfg, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	executor := resilience.NewExecutor(cfg.ResiliencePolicy(), logger)

	approvals, txManager, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	extractor, err := a.newExtractor(executor)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.newPublisher(executor)
	if err != nil {
		a.Close()
		return nil, err
	}

	larkCfg := lark.Config{
		AppID:      cfg.Lark.AppID,
		AppSecret:  cfg.Lark.AppSecret,
		ChatID:     cfg.Lark.ChatID,
		APIBaseURL: cfg.Lark.APIBaseURL,
	}
	var sender lark.MessageSender
	if larkCfg.Enabled() {
		sender = lark.NewMessenger(lark.NewSDKClient(larkCfg, logger), logger)
	} else {
		logger.Info("Lark chat not configured, review cards will be skipped")
	}
	notifier := lark.NewNotifier(sender, larkCfg, executor, logger)

	kv := utils.NewKVLogger(logger)
	a.intake = service.NewIntakeService(service.IntakeDependencies{
		Extractor: extractor,
		Approvals: approvals,
		TxManager: txManager,
		Storage:   storage.NewLocalFileStorage(cfg.Storage.UploadDir, logger),
		Notifier:  notifier,
		Publisher: publisher,
		Recorder:  a.metrics,
		Rules:     rulesCfg,
		Logger:    kv,
	})
	a.approvals = service.NewApprovalService(
		approvals,
		txManager,
		publisher,
		a.metrics,
		export.NewXLSXExporter(cfg.Storage.FontName, logger),
		kv,
	)

	logger.Info("Services initialized",
		zap.String("amount_threshold", rulesCfg.AmountThreshold.String()),
		zap.Float64("min_confidence", rulesCfg.MinConfidence),
		zap.Int("allowed_bill_to_names", len(rulesCfg.AllowedBillToNames)))
	return a, nil
}

// openStore returns the sqlite repository, or the in-memory one when no path is configured
func (a *app) openStore(ctx context.Context) (port.ApprovalRepository, port.TransactionManager, error) {
	if a.cfg.Database.Path == "" {
		a.logger.Info("No database path configured, approvals are kept in memory")
		repo := memory.NewApprovalRepository()
		return repo, repo, nil
	}

	db, err := openDatabase(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, db.Close)

	if a.cfg.Database.AutoMigrate {
		if _, err := database.NewMigrator(db, a.logger).Run(ctx, migrations.FS); err != nil {
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	return repository.NewApprovalRepository(db.DB, a.logger), sqlite.NewDB(db.DB, a.logger), nil
}

// newExtractor returns the LLM extractor, or the demo extractor when no API key is set
func (a *app) newExtractor(executor *resilience.Executor) (port.Extractor, error) {
	if a.cfg.OpenAI.APIKey == "" {
		a.logger.Warn("OPENAI_API_KEY not set, using the demo extractor")
		return stub.NewExtractor(), nil
	}

	prompts := openai.DefaultPrompts()
	if a.cfg.OpenAI.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(a.cfg.OpenAI.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		prompts = loaded
	}

	return openai.NewExtractor(
		openai.NewClient(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.BaseURL, a.cfg.OpenAI.Timeout),
		openai.ExtractorConfig{Model: a.cfg.OpenAI.Model, MinTextChars: a.cfg.OpenAI.MinTextChars},
		prompts,
		pdf.NewReader(a.cfg.OpenAI.MaxPages, a.logger),
		executor,
		a.logger,
	), nil
}

// newPublisher connects to NATS, or returns a no-op publisher when no URL is set
func (a *app) newPublisher(executor *resilience.Executor) (port.EventPublisher, error) {
	if a.cfg.Events.NATSURL == "" {
		return natsevents.NoopPublisher{}, nil
	}

	publisher, err := natsevents.Connect(a.cfg.Events.NATSURL, natsevents.Options{
		ConnectTimeout: a.cfg.Events.ConnectTimeout,
		ReconnectWait:  a.cfg.Events.ReconnectWait,
		MaxReconnects:  a.cfg.Events.MaxReconnects,
	}, executor, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		publisher.Close()
		return nil
	})
	return publisher, nil
}

// newFolderWatcher builds the incoming-folder watcher over the intake pipeline
func (a *app) newFolderWatcher(dir string) *worker.FolderWatcher {
	return worker.NewFolderWatcher(
		worker.FolderWatcherConfig{
			Debounce:       a.cfg.Watcher.Debounce,
			ProcessTimeout: a.cfg.Watcher.ProcessTimeout,
			Extensions:     a.cfg.Watcher.Extensions,
		},
		storage.NewFolderManager(dir, a.logger),
		a.intake,
		a.metrics,
		a.logger,
	)
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("Failed to release resources", zap.Error(err))
	}
}

func openDatabase(cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}
