package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// RoleSyncer reconciles stored roles with the roles Discord reports.
type RoleSyncer interface {
	SyncGuildRoles(ctx context.Context, guildID uint64, roster []types.LiveRole, cleanup bool) (*types.SyncResult, error)
}

// RoleRemover drops a stored role and its commanders.
type RoleRemover interface {
	DeleteRole(ctx context.Context, roleID uint64) error
}

// RoleFetcher lists the roles of a guild. rest.Rest satisfies it.
type RoleFetcher interface {
	GetRoles(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Role, error)
}

// RoleEventHandler keeps the stored roles of every guild in step with Discord.
type RoleEventHandler struct {
	syncer  RoleSyncer
	remover RoleRemover
	cleanup bool
	timeout time.Duration
	limiter *semaphore.Weighted
	group   singleflight.Group
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewRoleEventHandler creates a handler. Full guild syncs run at most
// maxConcurrent at a time and delete stored roles Discord no longer has
// when cleanup is set.
func NewRoleEventHandler(
	syncer RoleSyncer, remover RoleRemover, cleanup bool, maxConcurrent int, timeout time.Duration, logger *zap.Logger,
) *RoleEventHandler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RoleEventHandler{
		syncer:  syncer,
		remover: remover,
		cleanup: cleanup,
		timeout: timeout,
		limiter: semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.Named("role_events"),
	}
}

// Close stops queued guild syncs from starting.
func (h *RoleEventHandler) Close() {
	h.cancel()
}

// OnGuildReady reconciles a guild that became available after connecting.
func (h *RoleEventHandler) OnGuildReady(event *events.GuildReady) {
	go h.logGuildSync(event.Client().Rest(), event.GuildID)
}

// OnGuildJoin reconciles a guild the bot was just added to.
func (h *RoleEventHandler) OnGuildJoin(event *events.GuildJoin) {
	h.logger.Info("Bot joined a new guild",
		zap.String("guildID", event.GuildID.String()),
		zap.String("guild_name", event.Guild.Name))

	go h.logGuildSync(event.Client().Rest(), event.GuildID)
}

// OnRoleCreate stores a newly created role.
func (h *RoleEventHandler) OnRoleCreate(event *events.RoleCreate) {
	h.syncRole(event.GuildID, event.Role)
}

// OnRoleUpdate picks up a renamed role.
func (h *RoleEventHandler) OnRoleUpdate(event *events.RoleUpdate) {
	if event.OldRole.Name == event.Role.Name {
		return
	}

	h.syncRole(event.GuildID, event.Role)
}

// OnRoleDelete drops a deleted role from the store.
func (h *RoleEventHandler) OnRoleDelete(event *events.RoleDelete) {
	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()

	if err := h.RemoveRole(ctx, event.RoleID); err != nil {
		h.logger.Error("Failed to delete role",
			zap.String("guildID", event.GuildID.String()),
			zap.String("roleID", event.RoleID.String()),
			zap.Error(err))
	}
}

// SyncRoster reconciles a guild against a complete list of its Discord roles.
func (h *RoleEventHandler) SyncRoster(
	ctx context.Context, guildID snowflake.ID, roles []discord.Role,
) (*types.SyncResult, error) {
	return h.syncer.SyncGuildRoles(ctx, uint64(guildID), LiveRoster(guildID, roles), h.cleanup)
}

// RemoveRole deletes a role from the store.
func (h *RoleEventHandler) RemoveRole(ctx context.Context, roleID snowflake.ID) error {
	return h.remover.DeleteRole(ctx, uint64(roleID))
}

// SyncGuild fetches the roles of a guild and reconciles them. Concurrent
// requests for the same guild share one run. The request timeout starts once
// the sync holds a slot, so guilds queued behind others still get synced.
func (h *RoleEventHandler) SyncGuild(fetcher RoleFetcher, guildID snowflake.ID) (*types.SyncResult, error) {
	v, err, _ := h.group.Do(strconv.FormatUint(uint64(guildID), 10), func() (any, error) {
		if err := h.limiter.Acquire(h.ctx, 1); err != nil {
			return nil, err
		}
		defer h.limiter.Release(1)

		ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
		defer cancel()

		roles, err := fetcher.GetRoles(guildID, rest.WithCtx(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch guild roles: %w", err)
		}

		return h.SyncRoster(ctx, guildID, roles)
	})
	if err != nil {
		return nil, err
	}

	return v.(*types.SyncResult), nil
}

func (h *RoleEventHandler) logGuildSync(fetcher RoleFetcher, guildID snowflake.ID) {
	result, err := h.SyncGuild(fetcher, guildID)
	if err != nil {
		h.logger.Error("Failed to sync guild roles",
			zap.String("guildID", guildID.String()),
			zap.Error(err))
		return
	}

	h.logResult(result)
}

// syncRole stores a single role without touching the rest of the guild.
func (h *RoleEventHandler) syncRole(guildID snowflake.ID, role discord.Role) {
	if role.ID == guildID {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()

	roster := []types.LiveRole{{ID: uint64(role.ID), Name: role.Name}}

	result, err := h.syncer.SyncGuildRoles(ctx, uint64(guildID), roster, false)
	if err != nil {
		h.logger.Error("Failed to sync role",
			zap.String("guildID", guildID.String()),
			zap.String("roleID", role.ID.String()),
			zap.Error(err))
		return
	}

	h.logResult(result)
}

func (h *RoleEventHandler) logResult(result *types.SyncResult) {
	if err := result.Err(); err != nil {
		h.logger.Warn("Some roles could not be synced",
			zap.Uint64("guildID", result.GuildID),
			zap.Int("failed", len(result.Failures)),
			zap.Error(err))
	}

	if result.Changed() {
		h.logger.Info("Synced guild roles",
			zap.Uint64("guildID", result.GuildID),
			zap.Int("created", len(result.Created)),
			zap.Int("renamed", len(result.Renamed)),
			zap.Int("deleted", len(result.Deleted)))
	}
}

// LiveRoster converts Discord roles into the roster used for syncing.
// The @everyone role shares the guild's ID and is left out.
func LiveRoster(guildID snowflake.ID, roles []discord.Role) []types.LiveRole {
	roster := make([]types.LiveRole, 0, len(roles))
	for _, role := range roles {
		if role.ID == guildID {
			continue
		}

		roster = append(roster, types.LiveRole{ID: uint64(role.ID), Name: role.Name})
	}

	return roster
}
