package database

import (
	"github.com/jarvis-bot/jarvis/internal/database/service"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	config  *service.ConfigService
	sync    *service.SyncService
	importS *service.ImportService
}

// NewService creates a new service instance with all services.
func NewService(db *bun.DB, repository *Repository, logger *zap.Logger) *Service {
	locker := service.NewGuildLocker()
	configService := service.NewConfig(db, repository.Guild(), repository.Role(), locker, logger)

	return &Service{
		config:  configService,
		sync:    service.NewSync(configService, repository.Role(), locker, logger),
		importS: service.NewImport(configService, logger),
	}
}

// Config returns the guild configuration service.
func (s *Service) Config() *service.ConfigService {
	return s.config
}

// Sync returns the role sync service.
func (s *Service) Sync() *service.SyncService {
	return s.sync
}

// Import returns the bulk import service.
func (s *Service) Import() *service.ImportService {
	return s.importS
}
