package types

import (
	"errors"
	"slices"

	"github.com/jarvis-bot/jarvis/internal/database/types/enum"
	"github.com/uptrace/bun"
)

var (
	ErrGuildNotFound = errors.New("guild not found")
	ErrRoleNotFound  = errors.New("role not found")
	ErrNilConfig     = errors.New("nil configuration")
)

// Guild is the top-level configuration of a Discord server.
// The gate settings are stored as columns of the guild row so the two can never diverge.
type Guild struct {
	ID             uint64   `bun:",pk"      json:"id"`
	WelcomeMessage string   `bun:",notnull" json:"welcomeMessage"`
	Gate           GateData `bun:",embed"   json:"gate"`
	Roles          []*Role  `bun:"-"        json:"roles"`
}

// GateData holds the join-gate policy of a guild.
type GateData struct {
	AllowRejoin bool         `bun:",notnull" json:"allowRejoin"`
	GateEnabled bool         `bun:",notnull" json:"gateEnabled"`
	KeyRoleID   uint64       `bun:",notnull" json:"keyRoleId"` // 0 means unset
	KeyedUsers  []*KeyedUser `bun:"-"        json:"keyedUsers"`
}

// KeyedUser links a guild member to an identity in an external system.
type KeyedUser struct {
	GuildID       uint64             `bun:",pk"      json:"guildId"`
	UserID        uint64             `bun:",pk"      json:"userId"`
	ForeignID     string             `bun:",notnull" json:"foreignId"`
	ForeignIDType enum.ForeignIDType `bun:",notnull" json:"foreignIdType"`
}

// Role is the bot-managed configuration of a Discord role.
// Name mirrors Discord while CanJoin and Commanders only exist here.
type Role struct {
	ID         uint64   `bun:",pk"      json:"id"`
	GuildID    uint64   `bun:",notnull" json:"guildId"`
	CanJoin    bool     `bun:",notnull" json:"canJoin"`
	Name       string   `bun:",notnull" json:"name"`
	Commanders []uint64 `bun:"-"        json:"commanders"`
}

// HasCommander checks if the given user may manage the role.
func (r *Role) HasCommander(userID uint64) bool {
	return slices.Contains(r.Commanders, userID)
}

// RoleCommander associates a user with a role they may manage.
type RoleCommander struct {
	RoleID uint64 `bun:",pk"`
	UserID uint64 `bun:",pk"`
}

// ForeignIDTypeInfo is a row of the foreign id classifier lookup table.
type ForeignIDTypeInfo struct {
	bun.BaseModel `bun:"table:foreign_id_types,alias:fit"`

	ID       enum.ForeignIDType `bun:",pk"`
	TypeName string             `bun:",notnull"`
}

// LiveRole is a role as currently reported by Discord.
type LiveRole struct {
	ID   uint64
	Name string
}
