package migrations

import (
	"context"
	"fmt"

	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		tables := []struct {
			model       any
			foreignKeys []string
		}{
			{(*types.ForeignIDTypeInfo)(nil), nil},
			{(*types.Guild)(nil), nil},
			{(*types.KeyedUser)(nil), []string{
				`("guild_id") REFERENCES "guilds" ("id") ON DELETE CASCADE`,
				`("foreign_id_type") REFERENCES "foreign_id_types" ("id")`,
			}},
			{(*types.Role)(nil), []string{
				`("guild_id") REFERENCES "guilds" ("id") ON DELETE CASCADE`,
			}},
			{(*types.RoleCommander)(nil), []string{
				`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`,
			}},
		}

		for _, table := range tables {
			query := db.NewCreateTable().
				Model(table.model).
				IfNotExists()

			for _, fk := range table.foreignKeys {
				query = query.ForeignKey(fk)
			}

			if _, err := query.Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table %T: %w", table.model, err)
			}
		}

		_, err := db.NewCreateIndex().
			Model((*types.Role)(nil)).
			Index("idx_roles_guild_id").
			Column("guild_id").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create roles guild index: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		// Children first so foreign keys never dangle
		models := []any{
			(*types.RoleCommander)(nil),
			(*types.Role)(nil),
			(*types.KeyedUser)(nil),
			(*types.Guild)(nil),
			(*types.ForeignIDTypeInfo)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", model, err)
			}
		}

		return nil
	})
}
