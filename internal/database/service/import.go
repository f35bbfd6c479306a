package service

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"go.uber.org/zap"
)

// GuildStore is the subset of the config service used by bulk imports and exports.
type GuildStore interface {
	SaveGuild(ctx context.Context, guild *types.Guild) error
	GetGuild(ctx context.Context, guildID uint64) (*types.Guild, error)
	GetGuildIDs(ctx context.Context) ([]uint64, error)
}

// ImportOptions controls how ImportFromJSON reacts to malformed guild entries.
type ImportOptions struct {
	// Strict parses every entry before writing anything and aborts on the first malformed one.
	// Otherwise malformed entries are reported per guild and the rest are imported.
	Strict bool
}

// ImportService loads and dumps JSON snapshots of many guild configurations.
type ImportService struct {
	store  GuildStore
	logger *zap.Logger
}

// NewImport creates a new import service.
func NewImport(store GuildStore, logger *zap.Logger) *ImportService {
	return &ImportService{
		store:  store,
		logger: logger.Named("import_service"),
	}
}

type parsedEntry struct {
	key     string
	guildID uint64
	guild   *types.Guild
	err     error
}

// ImportFromJSON imports a snapshot using the default options.
func (s *ImportService) ImportFromJSON(ctx context.Context, data []byte) (*types.ImportResult, error) {
	return s.ImportFromJSONWithOptions(ctx, data, ImportOptions{})
}

// ImportFromJSONWithOptions persists every guild of a snapshot, one transaction per guild,
// in ascending guild id order.
//
// A document that is not a JSON object fails before any write with a *types.ParseError.
// Guilds that cannot be parsed or saved are recorded as *types.ImportItemError in the
// result and do not stop the batch, unless opts.Strict is set in which case the first
// parse error is returned and nothing is written.
func (s *ImportService) ImportFromJSONWithOptions(
	ctx context.Context, data []byte, opts ImportOptions,
) (*types.ImportResult, error) {
	root, err := decodeObject(bytes.TrimSpace(data), "")
	if err != nil {
		return nil, err
	}

	entries := make([]*parsedEntry, 0, len(root))
	for _, key := range root.sortedKeys() {
		entry := &parsedEntry{key: key}
		entry.guildID, _ = strconv.ParseUint(key, 10, 64)
		entry.guild, entry.err = decodeGuild(key, root[key])

		if entry.err != nil && opts.Strict {
			return nil, entry.err
		}

		entries = append(entries, entry)
	}

	result := &types.ImportResult{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if entry.err != nil {
			s.recordFailure(result, entry, entry.err)
			continue
		}

		if err := s.store.SaveGuild(ctx, entry.guild); err != nil {
			s.recordFailure(result, entry, err)
			continue
		}

		result.Imported = append(result.Imported, entry.guildID)
	}

	s.logger.Info("Imported guild snapshot",
		zap.Int("guilds", len(entries)),
		zap.Int("imported", result.SuccessCount()),
		zap.Int("failed", len(result.Failures)))

	return result, nil
}

// ExportToJSON writes the stored configuration of the given guilds in the snapshot format
// accepted by ImportFromJSON. No ids means every stored guild.
func (s *ImportService) ExportToJSON(ctx context.Context, guildIDs []uint64) ([]byte, error) {
	if len(guildIDs) == 0 {
		var err error
		if guildIDs, err = s.store.GetGuildIDs(ctx); err != nil {
			return nil, err
		}
	}

	snapshot := make(map[string]*snapshotGuild, len(guildIDs))

	for _, guildID := range guildIDs {
		guild, err := s.store.GetGuild(ctx, guildID)
		if err != nil {
			return nil, fmt.Errorf("failed to export guild %d: %w", guildID, err)
		}

		snapshot[strconv.FormatUint(guildID, 10)] = encodeGuild(guild)
	}

	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.logger.Info("Exported guild snapshot", zap.Int("guilds", len(snapshot)))

	return data, nil
}

func (s *ImportService) recordFailure(result *types.ImportResult, entry *parsedEntry, err error) {
	s.logger.Error("Failed to import guild",
		zap.String("key", entry.key),
		zap.Uint64("guildID", entry.guildID),
		zap.Error(err))

	result.Failures = append(result.Failures, &types.ImportItemError{
		Key:     entry.key,
		GuildID: entry.guildID,
		Err:     err,
	})
}
