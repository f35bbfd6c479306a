package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/jarvis-bot/jarvis/internal/database/dbretry"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RoleModel handles database operations for roles and their commanders.
type RoleModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewRole creates a new role model instance.
func NewRole(db *bun.DB, logger *zap.Logger) *RoleModel {
	return &RoleModel{
		db:     db,
		logger: logger.Named("db_role"),
	}
}

// UpsertRole creates or updates a role row. Commanders are not touched.
func (m *RoleModel) UpsertRole(ctx context.Context, tx bun.IDB, guildID uint64, role *types.Role) error {
	row := &types.Role{
		ID:      role.ID,
		GuildID: guildID,
		CanJoin: role.CanJoin,
		Name:    role.Name,
	}

	_, err := tx.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("guild_id = EXCLUDED.guild_id").
		Set("can_join = EXCLUDED.can_join").
		Set("name = EXCLUDED.name").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert role %d: %w", role.ID, err)
	}

	m.logger.Debug("Upserted role",
		zap.Uint64("guildID", guildID),
		zap.Uint64("roleID", role.ID),
		zap.String("name", role.Name))

	return nil
}

// ReplaceCommanders makes the stored commanders of a role equal to the given set.
// Stale rows are deleted and missing ones inserted; existing rows are left alone.
func (m *RoleModel) ReplaceCommanders(ctx context.Context, tx bun.IDB, roleID uint64, commanders []uint64) error {
	userIDs := slices.Clone(commanders)
	slices.Sort(userIDs)
	userIDs = slices.Compact(userIDs)

	query := tx.NewDelete().
		Model((*types.RoleCommander)(nil)).
		Where("role_id = ?", roleID)
	if len(userIDs) > 0 {
		query = query.Where("user_id NOT IN (?)", bun.In(userIDs))
	}

	if _, err := query.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove stale commanders of role %d: %w", roleID, err)
	}

	if len(userIDs) == 0 {
		return nil
	}

	rows := make([]*types.RoleCommander, 0, len(userIDs))
	for _, userID := range userIDs {
		rows = append(rows, &types.RoleCommander{RoleID: roleID, UserID: userID})
	}

	_, err := tx.NewInsert().
		Model(&rows).
		On("CONFLICT (role_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert commanders of role %d: %w", roleID, err)
	}

	m.logger.Debug("Replaced role commanders",
		zap.Uint64("roleID", roleID),
		zap.Int("count", len(rows)))

	return nil
}

// AddCommander grants a user management of a role. Adding an existing commander is a no-op.
func (m *RoleModel) AddCommander(ctx context.Context, tx bun.IDB, roleID, userID uint64) error {
	_, err := tx.NewInsert().
		Model(&types.RoleCommander{RoleID: roleID, UserID: userID}).
		On("CONFLICT (role_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add commander: %w", err)
	}

	return nil
}

// RemoveCommander revokes a user's management of a role.
func (m *RoleModel) RemoveCommander(ctx context.Context, tx bun.IDB, roleID, userID uint64) error {
	_, err := tx.NewDelete().
		Model((*types.RoleCommander)(nil)).
		Where("role_id = ? AND user_id = ?", roleID, userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove commander: %w", err)
	}

	return nil
}

// SetJoinable updates the self-join flag of a stored role.
// Returns ErrRoleNotFound if the role does not belong to the guild.
func (m *RoleModel) SetJoinable(ctx context.Context, tx bun.IDB, guildID, roleID uint64, canJoin bool) error {
	result, err := tx.NewUpdate().
		Model((*types.Role)(nil)).
		Set("can_join = ?", canJoin).
		Where("id = ? AND guild_id = ?", roleID, guildID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update joinable flag: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return types.ErrRoleNotFound
	}

	return nil
}

// DeleteRole removes a role and its commanders. Deleting an absent role succeeds.
func (m *RoleModel) DeleteRole(ctx context.Context, tx bun.IDB, roleID uint64) error {
	_, err := tx.NewDelete().
		Model((*types.RoleCommander)(nil)).
		Where("role_id = ?", roleID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete commanders of role %d: %w", roleID, err)
	}

	_, err = tx.NewDelete().
		Model((*types.Role)(nil)).
		Where("id = ?", roleID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete role %d: %w", roleID, err)
	}

	m.logger.Debug("Deleted role", zap.Uint64("roleID", roleID))

	return nil
}

// RoleExists checks if a role is stored for the guild.
func (m *RoleModel) RoleExists(ctx context.Context, tx bun.IDB, guildID, roleID uint64) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*types.Role)(nil)).
		Where("id = ? AND guild_id = ?", roleID, guildID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}

	return exists, nil
}

// GetRole retrieves a role of a guild with its commanders.
func (m *RoleModel) GetRole(ctx context.Context, guildID, roleID uint64) (*types.Role, error) {
	var role types.Role

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		return m.db.NewSelect().
			Model(&role).
			Where("id = ? AND guild_id = ?", roleID, guildID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrRoleNotFound
		}

		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	commanders, err := m.getCommanders(ctx, []uint64{roleID})
	if err != nil {
		return nil, err
	}

	role.Commanders = commanders[roleID]

	return &role, nil
}

// GetGuildRoles retrieves all roles of a guild with their commanders, ordered by role id.
func (m *RoleModel) GetGuildRoles(ctx context.Context, guildID uint64) ([]*types.Role, error) {
	return m.getRoles(ctx, guildID, false)
}

// GetJoinableRoles retrieves the self-joinable roles of a guild.
func (m *RoleModel) GetJoinableRoles(ctx context.Context, guildID uint64) ([]*types.Role, error) {
	return m.getRoles(ctx, guildID, true)
}

// GetRoleIDs returns the ids of all stored roles of a guild.
func (m *RoleModel) GetRoleIDs(ctx context.Context, guildID uint64) ([]uint64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]uint64, error) {
		var roleIDs []uint64

		err := m.db.NewSelect().
			Model((*types.Role)(nil)).
			Column("id").
			Where("guild_id = ?", guildID).
			Order("id ASC").
			Scan(ctx, &roleIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to get role ids: %w", err)
		}

		return roleIDs, nil
	})
}

// getRoles loads roles of a guild and attaches their commanders.
func (m *RoleModel) getRoles(ctx context.Context, guildID uint64, joinableOnly bool) ([]*types.Role, error) {
	roles, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Role, error) {
		var roles []*types.Role

		query := m.db.NewSelect().
			Model(&roles).
			Where("guild_id = ?", guildID).
			Order("id ASC")
		if joinableOnly {
			query = query.Where("can_join = ?", true)
		}

		if err := query.Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get roles: %w", err)
		}

		return roles, nil
	})
	if err != nil {
		return nil, err
	}

	if len(roles) == 0 {
		return nil, nil
	}

	roleIDs := make([]uint64, len(roles))
	for i, role := range roles {
		roleIDs[i] = role.ID
	}

	commanders, err := m.getCommanders(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	for _, role := range roles {
		role.Commanders = commanders[role.ID]
	}

	return roles, nil
}

// getCommanders returns the commander user ids of each role, sorted ascending.
func (m *RoleModel) getCommanders(ctx context.Context, roleIDs []uint64) (map[uint64][]uint64, error) {
	rows, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.RoleCommander, error) {
		var rows []*types.RoleCommander

		err := m.db.NewSelect().
			Model(&rows).
			Where("role_id IN (?)", bun.In(roleIDs)).
			Order("role_id ASC", "user_id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get role commanders: %w", err)
		}

		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	result := make(map[uint64][]uint64, len(roleIDs))
	for _, row := range rows {
		result[row.RoleID] = append(result[row.RoleID], row.UserID)
	}

	return result, nil
}
