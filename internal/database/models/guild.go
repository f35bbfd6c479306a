package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jarvis-bot/jarvis/internal/database/dbretry"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// GuildModel handles database operations for guild rows, their gate settings and keyed users.
type GuildModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGuild creates a new guild model instance.
func NewGuild(db *bun.DB, logger *zap.Logger) *GuildModel {
	return &GuildModel{
		db:     db,
		logger: logger.Named("db_guild"),
	}
}

// UpsertGuild creates or updates the guild identity and welcome message.
// Gate columns are only written when the row is created.
func (m *GuildModel) UpsertGuild(ctx context.Context, tx bun.IDB, guild *types.Guild) error {
	_, err := tx.NewInsert().
		Model(guild).
		On("CONFLICT (id) DO UPDATE").
		Set("welcome_message = EXCLUDED.welcome_message").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert guild: %w", err)
	}

	m.logger.Debug("Upserted guild", zap.Uint64("guildID", guild.ID))

	return nil
}

// EnsureGuild creates an empty guild row if none exists yet.
func (m *GuildModel) EnsureGuild(ctx context.Context, tx bun.IDB, guildID uint64) error {
	_, err := tx.NewInsert().
		Model(&types.Guild{ID: guildID}).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure guild: %w", err)
	}

	return nil
}

// SetWelcomeMessage updates the welcome message, creating the guild row if needed.
func (m *GuildModel) SetWelcomeMessage(ctx context.Context, tx bun.IDB, guildID uint64, message string) error {
	return m.UpsertGuild(ctx, tx, &types.Guild{ID: guildID, WelcomeMessage: message})
}

// UpsertGateData writes the gate columns of a guild, creating the guild row if needed.
func (m *GuildModel) UpsertGateData(ctx context.Context, tx bun.IDB, guildID uint64, gate *types.GateData) error {
	row := &types.Guild{
		ID: guildID,
		Gate: types.GateData{
			AllowRejoin: gate.AllowRejoin,
			GateEnabled: gate.GateEnabled,
			KeyRoleID:   gate.KeyRoleID,
		},
	}

	_, err := tx.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("allow_rejoin = EXCLUDED.allow_rejoin").
		Set("gate_enabled = EXCLUDED.gate_enabled").
		Set("key_role_id = EXCLUDED.key_role_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert gate data: %w", err)
	}

	m.logger.Debug("Upserted gate data",
		zap.Uint64("guildID", guildID),
		zap.Bool("gateEnabled", gate.GateEnabled))

	return nil
}

// ReplaceKeyedUsers makes the stored keyed users of a guild equal to the given set.
// Rows for users not in the set are deleted and the rest are upserted, so running
// it inside a transaction never exposes an empty set. Duplicate user ids keep the last entry.
func (m *GuildModel) ReplaceKeyedUsers(
	ctx context.Context, tx bun.IDB, guildID uint64, users []*types.KeyedUser,
) error {
	byUser := make(map[uint64]*types.KeyedUser, len(users))
	order := make([]uint64, 0, len(users))

	for _, user := range users {
		if user == nil {
			continue
		}

		if _, seen := byUser[user.UserID]; !seen {
			order = append(order, user.UserID)
		}

		byUser[user.UserID] = &types.KeyedUser{
			GuildID:       guildID,
			UserID:        user.UserID,
			ForeignID:     user.ForeignID,
			ForeignIDType: user.ForeignIDType,
		}
	}

	// Remove users that are no longer part of the set
	query := tx.NewDelete().
		Model((*types.KeyedUser)(nil)).
		Where("guild_id = ?", guildID)
	if len(order) > 0 {
		query = query.Where("user_id NOT IN (?)", bun.In(order))
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove stale keyed users: %w", err)
	}

	removed, _ := result.RowsAffected()

	if len(order) == 0 {
		m.logger.Debug("Cleared keyed users",
			zap.Uint64("guildID", guildID),
			zap.Int64("removed", removed))

		return nil
	}

	rows := make([]*types.KeyedUser, 0, len(order))
	for _, userID := range order {
		rows = append(rows, byUser[userID])
	}

	_, err = tx.NewInsert().
		Model(&rows).
		On("CONFLICT (guild_id, user_id) DO UPDATE").
		Set("foreign_id = EXCLUDED.foreign_id").
		Set("foreign_id_type = EXCLUDED.foreign_id_type").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert keyed users: %w", err)
	}

	m.logger.Debug("Replaced keyed users",
		zap.Uint64("guildID", guildID),
		zap.Int("count", len(rows)),
		zap.Int64("removed", removed))

	return nil
}

// DeleteGuild removes a guild together with its keyed users, roles and commanders.
func (m *GuildModel) DeleteGuild(ctx context.Context, tx bun.IDB, guildID uint64) error {
	roleIDs := tx.NewSelect().
		Model((*types.Role)(nil)).
		Column("id").
		Where("guild_id = ?", guildID)

	_, err := tx.NewDelete().
		Model((*types.RoleCommander)(nil)).
		Where("role_id IN (?)", roleIDs).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete guild commanders: %w", err)
	}

	deletes := []struct {
		model  any
		column string
	}{
		{(*types.Role)(nil), "guild_id"},
		{(*types.KeyedUser)(nil), "guild_id"},
		{(*types.Guild)(nil), "id"},
	}

	for _, d := range deletes {
		_, err := tx.NewDelete().
			Model(d.model).
			Where("? = ?", bun.Ident(d.column), guildID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete %T rows: %w", d.model, err)
		}
	}

	m.logger.Debug("Deleted guild", zap.Uint64("guildID", guildID))

	return nil
}

// GetGuild retrieves the guild row and its gate settings without keyed users or roles.
func (m *GuildModel) GetGuild(ctx context.Context, guildID uint64) (*types.Guild, error) {
	var guild types.Guild

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		return m.db.NewSelect().
			Model(&guild).
			Where("id = ?", guildID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrGuildNotFound
		}

		return nil, fmt.Errorf("failed to get guild: %w", err)
	}

	return &guild, nil
}

// GetKeyedUsers retrieves the keyed users of a guild ordered by user id.
func (m *GuildModel) GetKeyedUsers(ctx context.Context, guildID uint64) ([]*types.KeyedUser, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.KeyedUser, error) {
		var users []*types.KeyedUser

		err := m.db.NewSelect().
			Model(&users).
			Where("guild_id = ?", guildID).
			Order("user_id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get keyed users: %w", err)
		}

		if len(users) == 0 {
			return nil, nil
		}

		return users, nil
	})
}

// GetGuildIDs returns the ids of all stored guilds in ascending order.
func (m *GuildModel) GetGuildIDs(ctx context.Context) ([]uint64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]uint64, error) {
		var guildIDs []uint64

		err := m.db.NewSelect().
			Model((*types.Guild)(nil)).
			Column("id").
			Order("id ASC").
			Scan(ctx, &guildIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to get guild ids: %w", err)
		}

		return guildIDs, nil
	})
}
