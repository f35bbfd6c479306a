package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jarvis-bot/jarvis/internal/database/service"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// GuildCommands returns all guild configuration commands.
func GuildCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "import",
			Usage:     "Import guild configuration from a JSON snapshot",
			ArgsUsage: "FILE",
			Description: `Import guild configuration from a JSON object keyed by guild ID.
Each guild is stored on its own, so a broken entry does not stop the others
unless --strict is given.

Examples:
  db import guilds.json            # Import every valid guild
  db import guilds.json --strict   # Abort before writing if any entry is malformed`,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "strict",
					Usage: "Reject the whole file when any entry is malformed",
				},
			},
			Action: handleImport(deps),
		},
		{
			Name:      "export",
			Usage:     "Export guild configuration as a JSON snapshot",
			ArgsUsage: "[GUILD_ID...]",
			Description: `Export stored guild configuration in the format accepted by import.
Without guild IDs every stored guild is exported.

Examples:
  db export                              # Print all guilds to stdout
  db export --output guilds.json         # Write all guilds to a file
  db export 1234567890 9876543210        # Only export the given guilds`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Output file path (defaults to stdout)",
				},
			},
			Action: handleExport(deps),
		},
		{
			Name:   "guilds",
			Usage:  "List the IDs of all stored guilds",
			Action: handleListGuilds(deps),
		},
		{
			Name:      "delete-guild",
			Usage:     "Delete a guild and all of its configuration",
			ArgsUsage: "GUILD_ID...",
			Action:    handleDeleteGuild(deps),
		},
	}
}

// handleImport handles the 'import' command.
func handleImport(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrFileRequired
		}

		path := c.Args().First()

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		result, err := deps.DB.Service().Import().ImportFromJSONWithOptions(ctx, data, service.ImportOptions{
			Strict: c.Bool("strict"),
		})
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}

		for _, failure := range result.Failures {
			deps.Logger.Warn("Skipped guild",
				zap.String("key", failure.Key),
				zap.Error(failure.Err))
		}

		deps.Logger.Info("Import finished",
			zap.String("file", path),
			zap.Int("imported", result.SuccessCount()),
			zap.Int("failed", len(result.Failures)))

		return result.Err()
	}
}

// handleExport handles the 'export' command.
func handleExport(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		guildIDs, err := ParseGuildIDs(c.Args().Slice())
		if err != nil {
			return err
		}

		data, err := deps.DB.Service().Import().ExportToJSON(ctx, guildIDs)
		if err != nil {
			return fmt.Errorf("failed to export guilds: %w", err)
		}

		output := c.String("output")
		if output == "" {
			_, err = fmt.Fprintln(os.Stdout, string(data))
			return err
		}

		if err := os.WriteFile(output, data, 0o600); err != nil {
			return fmt.Errorf("failed to write export file: %w", err)
		}

		deps.Logger.Info("Export finished", zap.String("file", output))

		return nil
	}
}

// handleListGuilds handles the 'guilds' command.
func handleListGuilds(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		guildIDs, err := deps.DB.Service().Config().GetGuildIDs(ctx)
		if err != nil {
			return err
		}

		for _, id := range guildIDs {
			fmt.Println(id)
		}

		deps.Logger.Info("Listed guilds", zap.Int("count", len(guildIDs)))

		return nil
	}
}

// handleDeleteGuild handles the 'delete-guild' command.
func handleDeleteGuild(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		guildIDs, err := ParseGuildIDs(c.Args().Slice())
		if err != nil {
			return err
		}

		if len(guildIDs) == 0 {
			return fmt.Errorf("%w: at least one is required", ErrInvalidID)
		}

		for _, guildID := range guildIDs {
			if err := deps.DB.Service().Config().DeleteGuild(ctx, guildID); err != nil {
				return err
			}

			deps.Logger.Info("Deleted guild", zap.Uint64("guildID", guildID))
		}

		return nil
	}
}

// ParseGuildIDs parses command line arguments into guild IDs.
// Arguments may also hold comma separated lists.
func ParseGuildIDs(args []string) ([]uint64, error) {
	var ids []uint64

	for _, arg := range args {
		for part := range strings.SplitSeq(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			id, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidID, part)
			}

			ids = append(ids, id)
		}
	}

	return ids, nil
}
