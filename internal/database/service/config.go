package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jarvis-bot/jarvis/internal/database/dbretry"
	"github.com/jarvis-bot/jarvis/internal/database/models"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ConfigService handles the transactional persistence of guild configuration aggregates.
type ConfigService struct {
	db         *bun.DB
	guildModel *models.GuildModel
	roleModel  *models.RoleModel
	locker     *GuildLocker
	logger     *zap.Logger
}

// NewConfig creates a new config service.
func NewConfig(
	db *bun.DB,
	guildModel *models.GuildModel,
	roleModel *models.RoleModel,
	locker *GuildLocker,
	logger *zap.Logger,
) *ConfigService {
	return &ConfigService{
		db:         db,
		guildModel: guildModel,
		roleModel:  roleModel,
		locker:     locker,
		logger:     logger.Named("config_service"),
	}
}

// SaveGuild persists a whole guild aggregate: the guild row, its gate data with keyed users,
// and every role with its commanders. All steps share one transaction, so a failure leaves
// the stored aggregate untouched.
func (s *ConfigService) SaveGuild(ctx context.Context, guild *types.Guild) error {
	if guild == nil {
		return types.ErrNilConfig
	}

	unlock := s.locker.Lock(guild.ID)
	defer unlock()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		if err := s.guildModel.UpsertGuild(ctx, tx, guild); err != nil {
			return err
		}

		if err := s.saveGateData(ctx, tx, guild.ID, &guild.Gate); err != nil {
			return err
		}

		for _, role := range guild.Roles {
			if role == nil {
				continue
			}

			if err := s.saveRole(ctx, tx, guild.ID, role, false); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return &types.StoreError{Op: "save guild", GuildID: guild.ID, Err: err}
	}

	s.logger.Debug("Saved guild",
		zap.Uint64("guildID", guild.ID),
		zap.Int("roles", len(guild.Roles)),
		zap.Int("keyedUsers", len(guild.Gate.KeyedUsers)))

	return nil
}

// SaveGateData writes the gate settings of a guild and replaces its keyed users.
// An empty keyed user list removes every keyed user of the guild.
func (s *ConfigService) SaveGateData(ctx context.Context, guildID uint64, gate *types.GateData) error {
	if gate == nil {
		return types.ErrNilConfig
	}

	unlock := s.locker.Lock(guildID)
	defer unlock()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.saveGateData(ctx, tx, guildID, gate)
	})
	if err != nil {
		return &types.StoreError{Op: "save gate data", GuildID: guildID, Err: err}
	}

	return nil
}

// SaveRole upserts a role of a guild. Unless skipCommanders is set, the stored commanders
// are replaced by role.Commanders.
func (s *ConfigService) SaveRole(ctx context.Context, guildID uint64, role *types.Role, skipCommanders bool) error {
	if role == nil {
		return types.ErrNilConfig
	}

	unlock := s.locker.Lock(guildID)
	defer unlock()

	return s.saveRoleTx(ctx, guildID, role, skipCommanders)
}

// DeleteRole removes a role and its commanders. Deleting an unknown role succeeds.
func (s *ConfigService) DeleteRole(ctx context.Context, roleID uint64) error {
	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.roleModel.DeleteRole(ctx, tx, roleID)
	})
	if err != nil {
		return &types.StoreError{Op: "delete role", Err: err}
	}

	return nil
}

// DeleteGuild removes a guild and everything stored for it.
func (s *ConfigService) DeleteGuild(ctx context.Context, guildID uint64) error {
	unlock := s.locker.Lock(guildID)
	defer unlock()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.guildModel.DeleteGuild(ctx, tx, guildID)
	})
	if err != nil {
		return &types.StoreError{Op: "delete guild", GuildID: guildID, Err: err}
	}

	s.logger.Info("Deleted guild configuration", zap.Uint64("guildID", guildID))

	return nil
}

// GetGuild loads the full aggregate of a guild. Roles are ordered by id and
// commanders and keyed users by user id. Returns types.ErrGuildNotFound if the guild is unknown.
func (s *ConfigService) GetGuild(ctx context.Context, guildID uint64) (*types.Guild, error) {
	guild, err := s.guildModel.GetGuild(ctx, guildID)
	if err != nil {
		if errors.Is(err, types.ErrGuildNotFound) {
			return nil, err
		}

		return nil, &types.StoreError{Op: "get guild", GuildID: guildID, Err: err}
	}

	keyedUsers, err := s.guildModel.GetKeyedUsers(ctx, guildID)
	if err != nil {
		return nil, &types.StoreError{Op: "get keyed users", GuildID: guildID, Err: err}
	}

	roles, err := s.roleModel.GetGuildRoles(ctx, guildID)
	if err != nil {
		return nil, &types.StoreError{Op: "get roles", GuildID: guildID, Err: err}
	}

	guild.Gate.KeyedUsers = keyedUsers
	guild.Roles = roles

	return guild, nil
}

// GetGuildIDs returns the ids of all stored guilds in ascending order.
func (s *ConfigService) GetGuildIDs(ctx context.Context) ([]uint64, error) {
	guildIDs, err := s.guildModel.GetGuildIDs(ctx)
	if err != nil {
		return nil, &types.StoreError{Op: "get guild ids", Err: err}
	}

	return guildIDs, nil
}

// GetGateData returns the gate settings and keyed users of a guild.
// Unknown guilds yield the zero gate.
func (s *ConfigService) GetGateData(ctx context.Context, guildID uint64) (*types.GateData, error) {
	guild, err := s.guildModel.GetGuild(ctx, guildID)
	if err != nil {
		if errors.Is(err, types.ErrGuildNotFound) {
			return &types.GateData{}, nil
		}

		return nil, &types.StoreError{Op: "get gate data", GuildID: guildID, Err: err}
	}

	keyedUsers, err := s.guildModel.GetKeyedUsers(ctx, guildID)
	if err != nil {
		return nil, &types.StoreError{Op: "get keyed users", GuildID: guildID, Err: err}
	}

	gate := guild.Gate
	gate.KeyedUsers = keyedUsers

	return &gate, nil
}

// SetWelcomeMessage updates the message greeting new members. An empty message disables it.
func (s *ConfigService) SetWelcomeMessage(ctx context.Context, guildID uint64, message string) error {
	unlock := s.locker.Lock(guildID)
	defer unlock()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.guildModel.SetWelcomeMessage(ctx, tx, guildID, message)
	})
	if err != nil {
		return &types.StoreError{Op: "set welcome message", GuildID: guildID, Err: err}
	}

	return nil
}

// GetWelcomeMessage returns the welcome message of a guild.
// The boolean is false when the guild is unknown or has no message set.
func (s *ConfigService) GetWelcomeMessage(ctx context.Context, guildID uint64) (string, bool, error) {
	guild, err := s.guildModel.GetGuild(ctx, guildID)
	if err != nil {
		if errors.Is(err, types.ErrGuildNotFound) {
			return "", false, nil
		}

		return "", false, &types.StoreError{Op: "get welcome message", GuildID: guildID, Err: err}
	}

	return guild.WelcomeMessage, guild.WelcomeMessage != "", nil
}

// SetJoinable marks a stored role as self-joinable or not.
// Returns types.ErrRoleNotFound if the role is not stored for the guild.
func (s *ConfigService) SetJoinable(ctx context.Context, guildID, roleID uint64, canJoin bool) error {
	unlock := s.locker.Lock(guildID)
	defer unlock()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.roleModel.SetJoinable(ctx, tx, guildID, roleID, canJoin)
	})

	return s.roleError("set joinable", guildID, err)
}

// GetJoinableRoles returns the self-joinable roles of a guild ordered by id.
func (s *ConfigService) GetJoinableRoles(ctx context.Context, guildID uint64) ([]*types.Role, error) {
	roles, err := s.roleModel.GetJoinableRoles(ctx, guildID)
	if err != nil {
		return nil, &types.StoreError{Op: "get joinable roles", GuildID: guildID, Err: err}
	}

	return roles, nil
}

// IsJoinable checks if members may assign the role to themselves. Unknown roles are not joinable.
func (s *ConfigService) IsJoinable(ctx context.Context, guildID, roleID uint64) (bool, error) {
	role, err := s.roleModel.GetRole(ctx, guildID, roleID)
	if err != nil {
		if errors.Is(err, types.ErrRoleNotFound) {
			return false, nil
		}

		return false, &types.StoreError{Op: "is joinable", GuildID: guildID, Err: err}
	}

	return role.CanJoin, nil
}

// AddCommander lets a user manage membership of a stored role.
// Returns types.ErrRoleNotFound if the role is not stored for the guild.
func (s *ConfigService) AddCommander(ctx context.Context, guildID, roleID, userID uint64) error {
	unlock := s.locker.Lock(guildID)
	defer unlock()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		exists, err := s.roleModel.RoleExists(ctx, tx, guildID, roleID)
		if err != nil {
			return err
		}

		if !exists {
			return types.ErrRoleNotFound
		}

		return s.roleModel.AddCommander(ctx, tx, roleID, userID)
	})

	return s.roleError("add commander", guildID, err)
}

// RemoveCommander revokes a user's management of a role. Removing an absent commander succeeds.
func (s *ConfigService) RemoveCommander(ctx context.Context, guildID, roleID, userID uint64) error {
	unlock := s.locker.Lock(guildID)
	defer unlock()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.roleModel.RemoveCommander(ctx, tx, roleID, userID)
	})

	return s.roleError("remove commander", guildID, err)
}

// IsCommander checks if a user may manage a role. Unknown roles have no commanders.
func (s *ConfigService) IsCommander(ctx context.Context, guildID, roleID, userID uint64) (bool, error) {
	role, err := s.roleModel.GetRole(ctx, guildID, roleID)
	if err != nil {
		if errors.Is(err, types.ErrRoleNotFound) {
			return false, nil
		}

		return false, &types.StoreError{Op: "is commander", GuildID: guildID, Err: err}
	}

	return role.HasCommander(userID), nil
}

// saveRoleTx runs saveRole in its own transaction. Callers must hold the guild lock.
func (s *ConfigService) saveRoleTx(ctx context.Context, guildID uint64, role *types.Role, skipCommanders bool) error {
	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.saveRole(ctx, tx, guildID, role, skipCommanders)
	})
	if err != nil {
		return &types.StoreError{Op: fmt.Sprintf("save role %d", role.ID), GuildID: guildID, Err: err}
	}

	return nil
}

// deleteRoleTx is DeleteRole for callers that already hold the guild lock.
func (s *ConfigService) deleteRoleTx(ctx context.Context, guildID, roleID uint64) error {
	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.roleModel.DeleteRole(ctx, tx, roleID)
	})
	if err != nil {
		return &types.StoreError{Op: fmt.Sprintf("delete role %d", roleID), GuildID: guildID, Err: err}
	}

	return nil
}

func (s *ConfigService) saveGateData(ctx context.Context, tx bun.IDB, guildID uint64, gate *types.GateData) error {
	if err := s.guildModel.UpsertGateData(ctx, tx, guildID, gate); err != nil {
		return err
	}

	return s.guildModel.ReplaceKeyedUsers(ctx, tx, guildID, gate.KeyedUsers)
}

func (s *ConfigService) saveRole(
	ctx context.Context, tx bun.IDB, guildID uint64, role *types.Role, skipCommanders bool,
) error {
	// Roles reference their guild
	if err := s.guildModel.EnsureGuild(ctx, tx, guildID); err != nil {
		return err
	}

	if err := s.roleModel.UpsertRole(ctx, tx, guildID, role); err != nil {
		return err
	}

	if skipCommanders {
		return nil
	}

	return s.roleModel.ReplaceCommanders(ctx, tx, role.ID, role.Commanders)
}

// roleError passes not-found errors through and wraps everything else as a store error.
func (s *ConfigService) roleError(op string, guildID uint64, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, types.ErrRoleNotFound) {
		return err
	}

	return &types.StoreError{Op: op, GuildID: guildID, Err: err}
}
