package database

import (
	"github.com/jarvis-bot/jarvis/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	guild     *models.GuildModel
	role      *models.RoleModel
	foreignID *models.ForeignIDModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		guild:     models.NewGuild(db, logger),
		role:      models.NewRole(db, logger),
		foreignID: models.NewForeignID(db, logger),
	}
}

// Guild returns the guild model repository.
func (r *Repository) Guild() *models.GuildModel {
	return r.guild
}

// Role returns the role model repository.
func (r *Repository) Role() *models.RoleModel {
	return r.role
}

// ForeignID returns the foreign id type model repository.
func (r *Repository) ForeignID() *models.ForeignIDModel {
	return r.foreignID
}
