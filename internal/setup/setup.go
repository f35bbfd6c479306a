package setup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jarvis-bot/jarvis/internal/database"
	"github.com/jarvis-bot/jarvis/internal/database/dbretry"
	"github.com/jarvis-bot/jarvis/internal/database/migrations"
	"github.com/jarvis-bot/jarvis/internal/setup/config"
	"github.com/jarvis-bot/jarvis/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config     *config.Config     // Application configuration
	Logger     *zap.Logger        // Main application logger
	DBLogger   *zap.Logger        // Database-specific logger
	DB         database.Client    // Database connection pool
	LogManager *telemetry.Manager // Log management system
	tracing    bool               // Whether spans are exported to Uptrace
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	// Load app configuration
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration", zap.String("path", configDir))

	// Export query spans and traced error logs when a DSN is configured
	tracing := cfg.Common.Debug.UptraceDSN != ""
	if tracing {
		uptrace.ConfigureOpentelemetry(
			uptrace.WithDSN(cfg.Common.Debug.UptraceDSN),
			uptrace.WithServiceName("jarvis-"+serviceType.String()),
			uptrace.WithServiceVersion(config.RepositoryVersion),
		)
	}

	// Retries use the configured backoff and log through the database logger
	dbretry.Configure(dbretry.Policy{
		MaxElapsedTime:  time.Duration(cfg.Common.Retry.MaxElapsed) * time.Millisecond,
		InitialInterval: time.Duration(cfg.Common.Retry.Delay) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Common.Retry.MaxDelay) * time.Millisecond,
		MaxRetries:      cfg.Common.Retry.MaxRetries,
		Logger:          dbLogger.Named("db_retry"),
	})

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.PostgreSQL, dbLogger)
	if err != nil {
		if tracing {
			_ = uptrace.Shutdown(ctx)
		}

		logManager.Stop()
		return nil, err
	}

	// Bundle all initialized components
	return &App{
		Config:     cfg,
		Logger:     logger,
		DBLogger:   dbLogger.Named("database"),
		DB:         db,
		LogManager: logManager,
		tracing:    tracing,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Flush pending spans
	if s.tracing {
		if err := uptrace.Shutdown(ctx); err != nil {
			log.Printf("Failed to shut down tracing: %v", err)
		}
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	s.LogManager.Stop()
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	unapplied := ms.Unapplied()
	if len(unapplied) == 0 {
		return tempDB, nil
	}

	log.Println("Database migrations are pending. Would you like to run them now? (y/N)")

	var response string

	_, _ = fmt.Scanln(&response)

	if response != "y" && response != "Y" {
		tempDB.Close()
		log.Fatalf("Closing program due to incomplete migrations")
	}

	if err := database.Migrate(ctx, tempDB.DB(), dbLogger); err != nil {
		tempDB.Close()
		return nil, err
	}

	return tempDB, nil
}
