package migrations

import (
	"context"
	"fmt"

	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/jarvis-bot/jarvis/internal/database/types/enum"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		values := enum.ForeignIDTypeValues()

		rows := make([]*types.ForeignIDTypeInfo, 0, len(values))
		for _, value := range values {
			rows = append(rows, &types.ForeignIDTypeInfo{
				ID:       value,
				TypeName: value.String(),
			})
		}

		_, err := db.NewInsert().
			Model(&rows).
			On("CONFLICT (id) DO UPDATE").
			Set("type_name = EXCLUDED.type_name").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed foreign id types: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDelete().
			Model((*types.ForeignIDTypeInfo)(nil)).
			Where("id IN (?)", bun.In(enum.ForeignIDTypeValues())).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to remove foreign id types: %w", err)
		}

		return nil
	})
}
