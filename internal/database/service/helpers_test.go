package service_test

import (
	"testing"

	"github.com/jarvis-bot/jarvis/internal/database/dbtest"
	"github.com/jarvis-bot/jarvis/internal/database/models"
	"github.com/jarvis-bot/jarvis/internal/database/service"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/jarvis-bot/jarvis/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type services struct {
	db     *bun.DB
	config *service.ConfigService
	sync   *service.SyncService
	roles  *models.RoleModel
}

func newServices(t *testing.T) *services {
	t.Helper()

	db := dbtest.NewDB(t)
	logger := zap.NewNop()

	guildModel := models.NewGuild(db, logger)
	roleModel := models.NewRole(db, logger)
	locker := service.NewGuildLocker()
	config := service.NewConfig(db, guildModel, roleModel, locker, logger)

	return &services{
		db:     db,
		config: config,
		sync:   service.NewSync(config, roleModel, locker, logger),
		roles:  roleModel,
	}
}

// sampleGuild returns a fully populated aggregate in the order GetGuild loads it.
func sampleGuild(id uint64) *types.Guild {
	return &types.Guild{
		ID:             id,
		WelcomeMessage: "Welcome aboard!",
		Gate: types.GateData{
			AllowRejoin: true,
			GateEnabled: true,
			KeyRoleID:   id*100 + 1,
			KeyedUsers: []*types.KeyedUser{
				{GuildID: id, UserID: 10, ForeignID: "alpha", ForeignIDType: enum.ForeignIDTypeExternal},
				{GuildID: id, UserID: 11, ForeignID: "12345", ForeignIDType: enum.ForeignIDTypeExternal},
			},
		},
		Roles: []*types.Role{
			{ID: id*100 + 1, GuildID: id, CanJoin: false, Name: "Member", Commanders: []uint64{10, 11}},
			{ID: id*100 + 2, GuildID: id, CanJoin: true, Name: "Gamer"},
		},
	}
}
