package service_test

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/jarvis-bot/jarvis/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestConfigService_SaveGuildRoundTrip(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()
	guild := sampleGuild(1)

	require.NoError(t, s.config.SaveGuild(ctx, guild))

	loaded, err := s.config.GetGuild(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, guild, loaded)
}

func TestConfigService_SaveGuildIdempotent(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(1)))
	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(1)))

	loaded, err := s.config.GetGuild(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, sampleGuild(1), loaded)

	tables := map[string]int{
		"keyed_users":     2,
		"roles":           2,
		"role_commanders": 2,
		"guilds":          1,
	}
	for table, expected := range tables {
		count, err := s.db.NewSelect().TableExpr(table).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, count, table)
	}
}

func TestConfigService_SaveGuildReplacesSets(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(1)))

	updated := sampleGuild(1)
	updated.Gate.KeyedUsers = updated.Gate.KeyedUsers[1:]
	updated.Roles[0].Commanders = []uint64{12}
	require.NoError(t, s.config.SaveGuild(ctx, updated))

	loaded, err := s.config.GetGuild(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, updated, loaded)
}

func TestConfigService_SaveGateDataEmptyClearsKeyedUsers(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(1)))
	require.NoError(t, s.config.SaveGateData(ctx, 1, &types.GateData{GateEnabled: false}))

	gate, err := s.config.GetGateData(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, gate.KeyedUsers)
	assert.False(t, gate.GateEnabled)
	assert.False(t, gate.AllowRejoin)
	assert.Zero(t, gate.KeyRoleID)

	// The rest of the aggregate is untouched
	loaded, err := s.config.GetGuild(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Welcome aboard!", loaded.WelcomeMessage)
	assert.Len(t, loaded.Roles, 2)
}

func TestConfigService_SaveGateDataCreatesGuild(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	gate := &types.GateData{
		GateEnabled: true,
		KeyRoleID:   9,
		KeyedUsers: []*types.KeyedUser{
			{GuildID: 3, UserID: 1, ForeignID: "x", ForeignIDType: enum.ForeignIDTypeExternal},
		},
	}
	require.NoError(t, s.config.SaveGateData(ctx, 3, gate))

	loaded, err := s.config.GetGateData(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, gate, loaded)
}

func TestConfigService_SaveRoleSkipCommanders(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(1)))
	require.NoError(t, s.config.SaveRole(ctx, 1, &types.Role{ID: 101, Name: "Renamed"}, true))

	role, err := s.roles.GetRole(ctx, 1, 101)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", role.Name)
	assert.Equal(t, []uint64{10, 11}, role.Commanders)

	require.NoError(t, s.config.SaveRole(ctx, 1, &types.Role{ID: 101, Name: "Renamed"}, false))

	role, err = s.roles.GetRole(ctx, 1, 101)
	require.NoError(t, err)
	assert.Empty(t, role.Commanders)
}

func TestConfigService_GetGuildNotFound(t *testing.T) {
	t.Parallel()

	s := newServices(t)

	_, err := s.config.GetGuild(t.Context(), 404)
	require.ErrorIs(t, err, types.ErrGuildNotFound)

	gate, err := s.config.GetGateData(t.Context(), 404)
	require.NoError(t, err)
	assert.Equal(t, &types.GateData{}, gate)
}

func TestConfigService_DeleteRoleAbsent(t *testing.T) {
	t.Parallel()

	s := newServices(t)

	require.NoError(t, s.config.DeleteRole(t.Context(), 12345))
}

func TestConfigService_DeleteGuild(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(1)))
	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(2)))
	require.NoError(t, s.config.DeleteGuild(ctx, 1))

	_, err := s.config.GetGuild(ctx, 1)
	require.ErrorIs(t, err, types.ErrGuildNotFound)

	loaded, err := s.config.GetGuild(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, sampleGuild(2), loaded)

	ids, err := s.config.GetGuildIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, ids)
}

func TestConfigService_WelcomeMessage(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	_, ok, err := s.config.GetWelcomeMessage(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.config.SetWelcomeMessage(ctx, 1, "hello there"))

	message, ok, err := s.config.GetWelcomeMessage(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello there", message)

	require.NoError(t, s.config.SetWelcomeMessage(ctx, 1, ""))

	_, ok, err = s.config.GetWelcomeMessage(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfigService_Joinable(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(1)))
	require.NoError(t, s.config.SetJoinable(ctx, 1, 101, true))
	require.ErrorIs(t, s.config.SetJoinable(ctx, 1, 999, true), types.ErrRoleNotFound)

	roles, err := s.config.GetJoinableRoles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, uint64(101), roles[0].ID)
	assert.Equal(t, uint64(102), roles[1].ID)

	joinable, err := s.config.IsJoinable(ctx, 1, 101)
	require.NoError(t, err)
	assert.True(t, joinable)

	joinable, err = s.config.IsJoinable(ctx, 1, 999)
	require.NoError(t, err)
	assert.False(t, joinable)
}

func TestConfigService_Commanders(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.NoError(t, s.config.SaveGuild(ctx, sampleGuild(1)))

	require.NoError(t, s.config.AddCommander(ctx, 1, 102, 77))
	require.NoError(t, s.config.AddCommander(ctx, 1, 102, 77))
	require.ErrorIs(t, s.config.AddCommander(ctx, 1, 999, 77), types.ErrRoleNotFound)

	isCommander, err := s.config.IsCommander(ctx, 1, 102, 77)
	require.NoError(t, err)
	assert.True(t, isCommander)

	require.NoError(t, s.config.RemoveCommander(ctx, 1, 102, 77))

	isCommander, err = s.config.IsCommander(ctx, 1, 102, 77)
	require.NoError(t, err)
	assert.False(t, isCommander)

	isCommander, err = s.config.IsCommander(ctx, 1, 999, 77)
	require.NoError(t, err)
	assert.False(t, isCommander)
}

func TestConfigService_SaveGuildStoreError(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.NoError(t, s.db.Close())

	err := s.config.SaveGuild(ctx, sampleGuild(1))
	require.Error(t, err)

	var storeErr *types.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, uint64(1), storeErr.GuildID)
}

func TestConfigService_NilConfig(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	require.ErrorIs(t, s.config.SaveGuild(ctx, nil), types.ErrNilConfig)
	require.ErrorIs(t, s.config.SaveGateData(ctx, 1, nil), types.ErrNilConfig)
	require.ErrorIs(t, s.config.SaveRole(ctx, 1, nil, false), types.ErrNilConfig)

	ids, err := s.config.GetGuildIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestConfigService_SaveGuildSkipsNilEntries(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := t.Context()

	want := sampleGuild(1)
	guild := sampleGuild(1)
	guild.Roles = append([]*types.Role{nil}, guild.Roles...)
	guild.Gate.KeyedUsers = append(guild.Gate.KeyedUsers, nil)

	require.NoError(t, s.config.SaveGuild(ctx, guild))

	loaded, err := s.config.GetGuild(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, want, loaded)

	// Gate data saved on its own ignores nil keyed users as well
	gate := &types.GateData{KeyedUsers: []*types.KeyedUser{
		nil,
		{UserID: 12, ForeignID: "x", ForeignIDType: enum.ForeignIDTypeExternal},
	}}
	require.NoError(t, s.config.SaveGateData(ctx, 1, gate))

	stored, err := s.config.GetGateData(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []*types.KeyedUser{
		{GuildID: 1, UserID: 12, ForeignID: "x", ForeignIDType: enum.ForeignIDTypeExternal},
	}, stored.KeyedUsers)
}

func TestConfigService_SaveGuildRoundTripProperty(t *testing.T) {
	t.Parallel()

	s := newServices(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		guildID := rapid.Uint64Range(1, 1<<40).Draw(rt, "guildID")

		// Start from an empty store
		ids, err := s.config.GetGuildIDs(ctx)
		require.NoError(rt, err)

		for _, id := range ids {
			require.NoError(rt, s.config.DeleteGuild(ctx, id))
		}

		guild := &types.Guild{
			ID:             guildID,
			WelcomeMessage: rapid.StringMatching(`[a-zA-Z0-9 !]{0,24}`).Draw(rt, "welcome"),
			Gate: types.GateData{
				AllowRejoin: rapid.Bool().Draw(rt, "allowRejoin"),
				GateEnabled: rapid.Bool().Draw(rt, "gateEnabled"),
				KeyRoleID:   rapid.Uint64Range(0, 1<<40).Draw(rt, "keyRoleID"),
			},
		}

		userIDs := sortedDistinct(rt, "userIDs", 8)
		for i, userID := range userIDs {
			guild.Gate.KeyedUsers = append(guild.Gate.KeyedUsers, &types.KeyedUser{
				GuildID:       guildID,
				UserID:        userID,
				ForeignID:     rapid.StringMatching(`[a-z0-9]{0,12}`).Draw(rt, fmt.Sprintf("foreignID%d", i)),
				ForeignIDType: enum.ForeignIDTypeExternal,
			})
		}

		roleIDs := sortedDistinct(rt, "roleIDs", 6)
		for i, roleID := range roleIDs {
			role := &types.Role{
				ID:      roleID,
				GuildID: guildID,
				CanJoin: rapid.Bool().Draw(rt, fmt.Sprintf("canJoin%d", i)),
				Name:    rapid.StringMatching(`[a-zA-Z ]{1,16}`).Draw(rt, fmt.Sprintf("name%d", i)),
			}

			if commanders := sortedDistinct(rt, fmt.Sprintf("commanders%d", i), 4); len(commanders) > 0 {
				role.Commanders = commanders
			}

			guild.Roles = append(guild.Roles, role)
		}

		require.NoError(rt, s.config.SaveGuild(ctx, guild))

		loaded, err := s.config.GetGuild(ctx, guildID)
		require.NoError(rt, err)
		assert.Equal(rt, guild, loaded)
	})
}

// sortedDistinct draws up to maxLen distinct ids in ascending order.
func sortedDistinct(rt *rapid.T, label string, maxLen int) []uint64 {
	ids := rapid.SliceOfNDistinct(rapid.Uint64Range(1, 1<<40), 0, maxLen, rapid.ID[uint64]).Draw(rt, label)
	if len(ids) == 0 {
		return nil
	}

	slices.Sort(ids)

	return ids
}
