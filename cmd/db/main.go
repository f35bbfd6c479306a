package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jarvis-bot/jarvis/cmd/db/commands"
	"github.com/jarvis-bot/jarvis/internal/database"
	"github.com/jarvis-bot/jarvis/internal/database/migrations"
	"github.com/jarvis-bot/jarvis/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Setup dependencies
	deps, err := setupDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	defer deps.DB.Close()

	app := &cli.Command{
		Name:  "db",
		Usage: "Database management tool",
		Commands: append(
			commands.MigrationCommands(deps),
			commands.GuildCommands(deps)...,
		),
	}

	return app.Run(ctx, os.Args)
}

// setupDependencies initializes the database connection and migrator.
func setupDependencies(ctx context.Context) (*commands.CLIDependencies, error) {
	// Load full configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Create development logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Connect to database
	db, err := database.NewConnection(ctx, &cfg.Common.PostgreSQL, logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create migrator using database connection and migrations
	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)

	return &commands.CLIDependencies{
		DB:       db,
		Migrator: migrator,
		Logger:   logger,
	}, nil
}
