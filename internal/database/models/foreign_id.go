package models

import (
	"context"
	"fmt"

	"github.com/jarvis-bot/jarvis/internal/database/dbretry"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ForeignIDModel reads the foreign id classifier lookup table.
type ForeignIDModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewForeignID creates a new foreign id model instance.
func NewForeignID(db *bun.DB, logger *zap.Logger) *ForeignIDModel {
	return &ForeignIDModel{
		db:     db,
		logger: logger.Named("db_foreign_id"),
	}
}

// GetForeignIDTypes returns all known classifiers ordered by id.
func (m *ForeignIDModel) GetForeignIDTypes(ctx context.Context) ([]*types.ForeignIDTypeInfo, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ForeignIDTypeInfo, error) {
		var infos []*types.ForeignIDTypeInfo

		err := m.db.NewSelect().
			Model(&infos).
			Order("id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get foreign id types: %w", err)
		}

		return infos, nil
	})
}
