package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/jarvis-bot/jarvis/internal/database/types/enum"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// schemaMigration is the migration that creates the guild tables.
const schemaMigration = "20260412090000"

var migrationNameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SchemaReport describes the migration state together with the data the guild tables rely on.
type SchemaReport struct {
	Applied        migrate.MigrationSlice
	Pending        migrate.MigrationSlice
	LastGroup      *migrate.MigrationGroup
	ForeignIDTypes []string
	MissingTypes   []string
	Guilds         int
}

// MigrationCommands returns all migration-related commands.
func MigrationCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:   "init",
			Usage:  "Initialize migration tables",
			Action: handleInit(deps),
		},
		{
			Name:   "migrate",
			Usage:  "Run pending migrations and verify the foreign id types are seeded",
			Action: handleMigrate(deps),
		},
		{
			Name:  "rollback",
			Usage: "Rollback the last migration group",
			Description: `Rollback the last migration group. Rolling back the guild schema drops every
stored guild, so it is refused while guilds exist unless --force is given.`,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "force",
					Usage: "Drop the guild schema even if guilds are stored",
				},
			},
			Action: handleRollback(deps),
		},
		{
			Name:   "status",
			Usage:  "Show migration status, seeded foreign id types and the stored guild count",
			Action: handleStatus(deps),
		},
		{
			Name:      "create",
			Usage:     "Create a new Go migration file",
			ArgsUsage: "NAME",
			Action:    handleCreate(deps),
		},
	}
}

// handleInit handles the 'init' command.
func handleInit(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		return deps.Migrator.Init(ctx)
	}
}

// handleMigrate handles the 'migrate' command.
func handleMigrate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		if err := deps.Migrator.Init(ctx); err != nil {
			return err
		}

		if err := deps.Migrator.Lock(ctx); err != nil {
			return err
		}
		defer deps.Migrator.Unlock(ctx) //nolint:errcheck // -

		group, err := deps.Migrator.Migrate(ctx)
		if err != nil {
			return err
		}

		report, err := InspectSchema(ctx, deps)
		if err != nil {
			return err
		}

		if len(report.MissingTypes) > 0 {
			return fmt.Errorf("%w: %s", ErrMissingSeeds, strings.Join(report.MissingTypes, ", "))
		}

		if group.IsZero() {
			deps.Logger.Info("No new migrations to run (database is up to date)",
				zap.Strings("foreign_id_types", report.ForeignIDTypes))
			return nil
		}

		deps.Logger.Info("Successfully migrated",
			zap.String("group", group.String()),
			zap.Strings("foreign_id_types", report.ForeignIDTypes),
			zap.Int("guilds", report.Guilds))

		return nil
	}
}

// handleRollback handles the 'rollback' command.
func handleRollback(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		report, err := InspectSchema(ctx, deps)
		if err != nil {
			return err
		}

		if err := CheckRollback(report, c.Bool("force")); err != nil {
			return err
		}

		if err := deps.Migrator.Lock(ctx); err != nil {
			return err
		}
		defer deps.Migrator.Unlock(ctx) //nolint:errcheck // -

		group, err := deps.Migrator.Rollback(ctx)
		if err != nil {
			return err
		}

		if group.IsZero() {
			deps.Logger.Info("No groups to roll back")
			return nil
		}

		fields := []zap.Field{zap.String("group", group.String())}
		if containsMigration(group.Migrations, schemaMigration) {
			fields = append(fields, zap.Int("dropped_guilds", report.Guilds))
		}

		deps.Logger.Info("Successfully rolled back", fields...)

		return nil
	}
}

// handleStatus handles the 'status' command.
func handleStatus(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		report, err := InspectSchema(ctx, deps)
		if err != nil {
			return err
		}

		deps.Logger.Info("Migration status",
			zap.Int("applied", len(report.Applied)),
			zap.Int("pending", len(report.Pending)),
			zap.String("unapplied", report.Pending.String()),
			zap.String("last_group", report.LastGroup.String()),
			zap.Strings("foreign_id_types", report.ForeignIDTypes),
			zap.Strings("missing_foreign_id_types", report.MissingTypes),
			zap.Int("guilds", report.Guilds))

		return nil
	}
}

// handleCreate handles the 'create' command.
func handleCreate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrNameRequired
		}

		name := c.Args().First()
		if !migrationNameRE.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}

		mf, err := deps.Migrator.CreateGoMigration(ctx, name)
		if err != nil {
			return err
		}

		deps.Logger.Info("Created Go migration",
			zap.String("name", mf.Name),
			zap.String("path", mf.Path),
		)

		return nil
	}
}

// InspectSchema reads the migration status and, once the guild schema exists,
// the seeded foreign id types and the number of stored guilds.
func InspectSchema(ctx context.Context, deps *CLIDependencies) (*SchemaReport, error) {
	ms, err := deps.Migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	report := &SchemaReport{
		Applied:   ms.Applied(),
		Pending:   ms.Unapplied(),
		LastGroup: ms.LastGroup(),
	}

	if !containsMigration(report.Applied, schemaMigration) {
		report.MissingTypes = MissingForeignIDTypes(nil)
		return report, nil
	}

	infos, err := deps.DB.Model().ForeignID().GetForeignIDTypes(ctx)
	if err != nil {
		return nil, err
	}

	for _, info := range infos {
		report.ForeignIDTypes = append(report.ForeignIDTypes, info.TypeName)
	}

	report.MissingTypes = MissingForeignIDTypes(infos)

	guildIDs, err := deps.DB.Service().Config().GetGuildIDs(ctx)
	if err != nil {
		return nil, err
	}

	report.Guilds = len(guildIDs)

	return report, nil
}

// MissingForeignIDTypes returns the names of the classifiers that are not stored
// or are stored under a different name.
func MissingForeignIDTypes(stored []*types.ForeignIDTypeInfo) []string {
	names := make(map[enum.ForeignIDType]string, len(stored))
	for _, info := range stored {
		names[info.ID] = info.TypeName
	}

	var missing []string

	for _, value := range enum.ForeignIDTypeValues() {
		if name, ok := names[value]; !ok || name != value.String() {
			missing = append(missing, value.String())
		}
	}

	return missing
}

// CheckRollback refuses to roll back the guild schema while guilds are stored.
func CheckRollback(report *SchemaReport, force bool) error {
	if force || report.Guilds == 0 {
		return nil
	}

	if !containsMigration(report.LastGroup.Migrations, schemaMigration) {
		return nil
	}

	return fmt.Errorf("%w: %d guilds", ErrGuildsStored, report.Guilds)
}

func containsMigration(ms migrate.MigrationSlice, name string) bool {
	for i := range ms {
		if ms[i].Name == name {
			return true
		}
	}

	return false
}
