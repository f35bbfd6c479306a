package service

import (
	"context"

	"github.com/jarvis-bot/jarvis/internal/database/dbretry"
	"github.com/jarvis-bot/jarvis/internal/database/models"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SyncService reconciles live Discord role rosters with the stored roles of a guild.
// Discord is authoritative for role names while can_join and commanders are only ever
// changed through the config service.
type SyncService struct {
	config    *ConfigService
	roleModel *models.RoleModel
	locker    *GuildLocker
	logger    *zap.Logger
}

// NewSync creates a new sync service.
func NewSync(config *ConfigService, roleModel *models.RoleModel, locker *GuildLocker, logger *zap.Logger) *SyncService {
	return &SyncService{
		config:    config,
		roleModel: roleModel,
		locker:    locker,
		logger:    logger.Named("sync_service"),
	}
}

// SyncGuildRoles brings the stored roles of a guild in line with the given roster.
// Missing roles are created with can_join false and no commanders, renamed roles get the
// live name, and when cleanup is set stored roles absent from the roster are deleted.
// Cleanup must only be requested with a complete roster.
//
// Failures of single roles are collected in the result and do not stop the sync.
// The returned error is only set when the stored state could not be read at all.
func (s *SyncService) SyncGuildRoles(
	ctx context.Context, guildID uint64, roster []types.LiveRole, cleanup bool,
) (*types.SyncResult, error) {
	unlock := s.locker.Lock(guildID)
	defer unlock()

	result := &types.SyncResult{GuildID: guildID}

	err := dbretry.Transaction(ctx, s.config.db, func(ctx context.Context, tx bun.Tx) error {
		return s.config.guildModel.EnsureGuild(ctx, tx, guildID)
	})
	if err != nil {
		return nil, &types.StoreError{Op: "ensure guild", GuildID: guildID, Err: err}
	}

	storedRoles, err := s.roleModel.GetGuildRoles(ctx, guildID)
	if err != nil {
		return nil, &types.StoreError{Op: "load roles", GuildID: guildID, Err: err}
	}

	stored := make(map[uint64]*types.Role, len(storedRoles))
	for _, role := range storedRoles {
		stored[role.ID] = role
	}

	seen := make(map[uint64]struct{}, len(roster))

	for _, live := range roster {
		if _, ok := seen[live.ID]; ok {
			continue
		}

		seen[live.ID] = struct{}{}

		if err := ctx.Err(); err != nil {
			s.recordFailure(result, live.ID, err)
			continue
		}

		current, ok := stored[live.ID]
		switch {
		case !ok:
			role := &types.Role{ID: live.ID, GuildID: guildID, Name: live.Name}
			if err := s.config.saveRoleTx(ctx, guildID, role, true); err != nil {
				s.recordFailure(result, live.ID, err)
				continue
			}

			result.Created = append(result.Created, live.ID)

		case current.Name != live.Name:
			role := &types.Role{ID: live.ID, GuildID: guildID, CanJoin: current.CanJoin, Name: live.Name}
			if err := s.config.saveRoleTx(ctx, guildID, role, true); err != nil {
				s.recordFailure(result, live.ID, err)
				continue
			}

			result.Renamed = append(result.Renamed, live.ID)

		default:
			result.Unchanged = append(result.Unchanged, live.ID)
		}
	}

	if cleanup {
		for _, role := range storedRoles {
			if _, ok := seen[role.ID]; ok {
				continue
			}

			if err := s.config.deleteRoleTx(ctx, guildID, role.ID); err != nil {
				s.recordFailure(result, role.ID, err)
				continue
			}

			result.Deleted = append(result.Deleted, role.ID)
		}
	}

	s.logger.Debug("Synced guild roles",
		zap.Uint64("guildID", guildID),
		zap.Int("created", len(result.Created)),
		zap.Int("renamed", len(result.Renamed)),
		zap.Int("unchanged", len(result.Unchanged)),
		zap.Int("deleted", len(result.Deleted)),
		zap.Int("failed", len(result.Failures)))

	return result, nil
}

func (s *SyncService) recordFailure(result *types.SyncResult, roleID uint64, err error) {
	s.logger.Error("Failed to sync role",
		zap.Uint64("guildID", result.GuildID),
		zap.Uint64("roleID", roleID),
		zap.Error(err))

	result.Failures = append(result.Failures, types.RoleSyncFailure{RoleID: roleID, Err: err})
}
