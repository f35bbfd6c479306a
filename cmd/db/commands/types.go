package commands

import (
	"errors"

	"github.com/jarvis-bot/jarvis/internal/database"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	ErrNameRequired = errors.New("NAME argument required")
	ErrFileRequired = errors.New("FILE argument required")
	ErrInvalidID    = errors.New("invalid guild ID")
	ErrInvalidName  = errors.New("migration name must be lower snake case")
	ErrMissingSeeds = errors.New("foreign id types not seeded")
	ErrGuildsStored = errors.New("refusing to drop the guild schema while guilds are stored")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	DB       database.Client
	Migrator *migrate.Migrator
	Logger   *zap.Logger
}
