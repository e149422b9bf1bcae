package main

import (
	"fmt"
	"log/slog"
	"time"

	importhandler "github.com/FACorreiaa/smb-ledger/internal/domain/import/handler"
	importrepo "github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/smb-ledger/internal/domain/import/service"

	"github.com/FACorreiaa/smb-ledger/pkg/config"
	"github.com/FACorreiaa/smb-ledger/pkg/cron"
	"github.com/FACorreiaa/smb-ledger/pkg/db"
	"github.com/FACorreiaa/smb-ledger/pkg/interceptors"
	"github.com/FACorreiaa/smb-ledger/pkg/metrics"
	"github.com/FACorreiaa/smb-ledger/pkg/notify"
	"github.com/FACorreiaa/smb-ledger/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ImportRepo importrepo.ImportRepository

	// Services
	ImportService  *importservice.ImportService
	FileStorage    storage.Storage
	Notifier       *notify.EmailNotifier
	Metrics        *metrics.Metrics
	TokenValidator *interceptors.TokenValidator
	RateLimiter    *interceptors.RateLimiter
	Scheduler      *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.TokenValidator = interceptors.NewTokenValidator([]byte(d.Config.Auth.JWTSecret))
	d.RateLimiter = interceptors.NewRateLimiter(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst)
	d.Metrics = metrics.New()
	d.Notifier = notify.NewEmailNotifier(d.Config.Email.ResendAPIKey, d.Config.Email.From, d.Logger)

	d.ImportService = importservice.NewImportService(d.ImportRepo, d.Logger).
		WithNotifier(d.Notifier).
		WithMaxRows(d.Config.Import.MaxRows)
	if d.Config.Observability.MetricsEnabled {
		d.ImportService.WithMetrics(d.Metrics)
	}

	// Uploaded files are archived so a job's source can be downloaded later
	var pruner cron.Pruner
	if d.Config.Storage.Enabled {
		fileStorage, err := storage.New(&storage.Config{
			Type:      storage.StorageTypeLocal,
			LocalPath: d.Config.Storage.LocalPath,
		})
		if err != nil {
			return fmt.Errorf("failed to init file storage: %w", err)
		}
		d.FileStorage = fileStorage
		d.ImportService.WithFileStore(fileStorage)
		pruner = fileStorage
	}

	cronCfg := cron.Config{Retention: d.Config.Scheduler.Retention}
	if d.Config.Scheduler.Enabled {
		cronCfg.ReconcileSpec = d.Config.Scheduler.ReconcileSpec
		cronCfg.PruneSpec = d.Config.Scheduler.PruneSpec
	}
	d.Scheduler = cron.NewScheduler(cronCfg, d.ImportRepo, pruner, d.Logger)
	d.Scheduler.Every(time.Minute, func() { d.RateLimiter.Cleanup() })

	d.Logger.Info("services initialized")
	return nil
}

func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Logger).
		WithMaxUpload(d.Config.Import.MaxUploadBytes)
	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
