package commands_test

import (
	"testing"

	"github.com/jarvis-bot/jarvis/cmd/db/commands"
	"github.com/jarvis-bot/jarvis/internal/database"
	"github.com/jarvis-bot/jarvis/internal/database/dbtest"
	"github.com/jarvis-bot/jarvis/internal/database/migrations"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/jarvis-bot/jarvis/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// newDependencies builds a migrated client. NewClient sets the process-wide JSON provider,
// so tests using it do not run in parallel.
func newDependencies(t *testing.T) *commands.CLIDependencies {
	t.Helper()

	db := dbtest.NewDB(t)

	client, err := database.NewClient(t.Context(), db, zap.NewNop(), false)
	require.NoError(t, err)

	return &commands.CLIDependencies{
		DB:       client,
		Migrator: migrate.NewMigrator(db, migrations.Migrations),
		Logger:   zap.NewNop(),
	}
}

func TestInspectSchema(t *testing.T) {
	deps := newDependencies(t)
	ctx := t.Context()

	report, err := commands.InspectSchema(ctx, deps)
	require.NoError(t, err)
	assert.Len(t, report.Applied, 2)
	assert.Empty(t, report.Pending)
	assert.Equal(t, []string{"Unset", "External"}, report.ForeignIDTypes)
	assert.Empty(t, report.MissingTypes)
	assert.Zero(t, report.Guilds)
	require.NoError(t, commands.CheckRollback(report, false))

	require.NoError(t, deps.DB.Service().Config().SaveGuild(ctx, &types.Guild{ID: 1}))

	report, err = commands.InspectSchema(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Guilds)
	require.ErrorIs(t, commands.CheckRollback(report, false), commands.ErrGuildsStored)
	require.NoError(t, commands.CheckRollback(report, true))

	// Once rolled back nothing is applied and every classifier is missing
	_, err = deps.Migrator.Rollback(ctx)
	require.NoError(t, err)

	report, err = commands.InspectSchema(ctx, deps)
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	assert.Len(t, report.Pending, 2)
	assert.Empty(t, report.ForeignIDTypes)
	assert.Equal(t, []string{"Unset", "External"}, report.MissingTypes)
}

func TestInspectSchemaMissingSeed(t *testing.T) {
	deps := newDependencies(t)
	ctx := t.Context()

	_, err := deps.DB.DB().NewDelete().
		Model((*types.ForeignIDTypeInfo)(nil)).
		Where("id = ?", enum.ForeignIDTypeExternal).
		Exec(ctx)
	require.NoError(t, err)

	report, err := commands.InspectSchema(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"Unset"}, report.ForeignIDTypes)
	assert.Equal(t, []string{"External"}, report.MissingTypes)
}

func TestMissingForeignIDTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored []*types.ForeignIDTypeInfo
		want   []string
	}{
		{name: "nothing stored", stored: nil, want: []string{"Unset", "External"}},
		{
			name: "all seeded",
			stored: []*types.ForeignIDTypeInfo{
				{ID: enum.ForeignIDTypeUnset, TypeName: "Unset"},
				{ID: enum.ForeignIDTypeExternal, TypeName: "External"},
			},
		},
		{
			name: "renamed classifier",
			stored: []*types.ForeignIDTypeInfo{
				{ID: enum.ForeignIDTypeUnset, TypeName: "Unset"},
				{ID: enum.ForeignIDTypeExternal, TypeName: "Roblox"},
			},
			want: []string{"External"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, commands.MissingForeignIDTypes(tt.stored))
		})
	}
}
