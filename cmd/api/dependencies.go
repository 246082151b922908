package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerkeep/ledgerkeep/internal/domain/categorization"
	importhandler "github.com/ledgerkeep/ledgerkeep/internal/domain/import/handler"
	importrepo "github.com/ledgerkeep/ledgerkeep/internal/domain/import/repository"
	importservice "github.com/ledgerkeep/ledgerkeep/internal/domain/import/service"
	"github.com/ledgerkeep/ledgerkeep/internal/domain/ledger"
	"github.com/ledgerkeep/ledgerkeep/pkg/config"
	"github.com/ledgerkeep/ledgerkeep/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	AccountRepo     ledger.AccountRepository
	TransactionRepo ledger.TransactionRepository
	RuleRepo        categorization.RuleRepository
	BatchRepo       importrepo.BatchRepository
	UnitOfWork      importrepo.UnitOfWork

	// Services
	CategorizationService *categorization.Service
	ImportService         *importservice.ImportService

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
	deps.initServices()
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
	d.AccountRepo = ledger.NewPostgresAccountRepository(d.DB.Pool)
	d.TransactionRepo = ledger.NewPostgresTransactionRepository(d.DB.Pool)
	d.RuleRepo = categorization.NewPostgresRuleRepository(d.DB.Pool)
	d.BatchRepo = importrepo.NewPostgresBatchRepository(d.DB.Pool)
	d.UnitOfWork = importrepo.NewPgxUnitOfWork(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() {
	d.CategorizationService = categorization.NewService(
		d.RuleRepo,
		d.AccountRepo,
		d.TransactionRepo,
		d.Logger,
	)

	d.ImportService = importservice.NewImportService(
		d.BatchRepo,
		d.UnitOfWork,
		d.CategorizationService,
		d.Logger,
	)

	d.Logger.Info("services initialized")
}

func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(
		d.ImportService,
		d.AccountRepo,
		d.Config.Import.MaxUploadBytes,
		d.Logger,
	)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
