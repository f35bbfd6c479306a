package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/jarvis-bot/jarvis/internal/database/types/enum"
)

var (
	ErrNotObject     = errors.New("expected a JSON object")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidID     = errors.New("expected an unsigned integer id")
	ErrInvalidString = errors.New("expected a string")
	ErrInvalidBool   = errors.New("expected a boolean")
	ErrInvalidList   = errors.New("expected an array or object of ids")

	ErrInvalidForeignID = errors.New("expected a string or number")
)

// snapshotGuild is the exported form of a guild. Keys match the files written by the old
// JSON-backed bot so exports can be imported again.
type snapshotGuild struct {
	GreetingMessage string                   `json:"greeting_message"`
	GateData        snapshotGate             `json:"gate_data"`
	RoleData        map[string]*snapshotRole `json:"role_data"`
}

type snapshotGate struct {
	AllowRejoin bool              `json:"allow_rejoin"`
	GateEnabled bool              `json:"gate_enabled"`
	KeyRoleID   uint64            `json:"key_role_id"`
	KeyedUsers  map[string]string `json:"keyed_users"`
}

type snapshotRole struct {
	CanJoin    bool     `json:"can_join"`
	Name       string   `json:"name"`
	Commanders []uint64 `json:"commanders"`
}

// jsonObject is a decoded JSON object whose values are still raw.
type jsonObject map[string]json.RawMessage

// field returns the first present value among the given keys together with the key that matched.
func (o jsonObject) field(keys ...string) (json.RawMessage, string, bool) {
	for _, key := range keys {
		if raw, ok := o[key]; ok {
			return raw, key, true
		}
	}

	return nil, keys[0], false
}

// sortedKeys returns the keys of the object, numeric keys first in ascending order.
func (o jsonObject) sortedKeys() []string {
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(a, b string) int {
		ai, aErr := strconv.ParseUint(a, 10, 64)
		bi, bErr := strconv.ParseUint(b, 10, 64)

		switch {
		case aErr == nil && bErr == nil:
			if ai < bi {
				return -1
			}

			if ai > bi {
				return 1
			}

			return 0
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})

	return keys
}

// decodeObject decodes raw into an object, rejecting any other JSON value.
func decodeObject(raw json.RawMessage, pointer string) (jsonObject, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &types.ParseError{Pointer: pointer, Err: ErrNotObject}
	}

	var obj jsonObject
	if err := sonic.Unmarshal(trimmed, &obj); err != nil {
		return nil, &types.ParseError{Pointer: pointer, Err: err}
	}

	return obj, nil
}

// decodeGuild converts one snapshot entry into a guild aggregate.
// Both the snake_case keys and the camelCase keys of older files are accepted.
func decodeGuild(key string, raw json.RawMessage) (*types.Guild, error) {
	base := joinPointer("", key)

	guildID, err := parseID(key)
	if err != nil {
		return nil, &types.ParseError{Pointer: base, Err: err}
	}

	obj, err := decodeObject(raw, base)
	if err != nil {
		return nil, err
	}

	guild := &types.Guild{ID: guildID}

	if value, name, ok := obj.field("greeting_message", "greetingMessage"); ok {
		if guild.WelcomeMessage, err = decodeString(value, joinPointer(base, name)); err != nil {
			return nil, err
		}
	}

	gateRaw, name, ok := obj.field("gate_data", "gateData")
	if !ok {
		return nil, &types.ParseError{Pointer: joinPointer(base, name), Err: ErrMissingField}
	}

	if err := decodeGate(guild, gateRaw, joinPointer(base, name)); err != nil {
		return nil, err
	}

	if rolesRaw, name, ok := obj.field("role_data", "roleData"); ok && !isNull(rolesRaw) {
		if guild.Roles, err = decodeRoles(guildID, rolesRaw, joinPointer(base, name)); err != nil {
			return nil, err
		}
	}

	return guild, nil
}

func decodeGate(guild *types.Guild, raw json.RawMessage, pointer string) error {
	obj, err := decodeObject(raw, pointer)
	if err != nil {
		return err
	}

	gate := &guild.Gate

	if value, name, ok := obj.field("allow_rejoin", "allowRejoin"); ok {
		if gate.AllowRejoin, err = decodeBool(value, joinPointer(pointer, name)); err != nil {
			return err
		}
	}

	if value, name, ok := obj.field("gate_enabled", "gateEnabled"); ok {
		if gate.GateEnabled, err = decodeBool(value, joinPointer(pointer, name)); err != nil {
			return err
		}
	}

	if value, name, ok := obj.field("key_role_id", "keyRoleId"); ok {
		if gate.KeyRoleID, err = decodeID(value, joinPointer(pointer, name)); err != nil {
			return err
		}
	}

	usersRaw, name, ok := obj.field("keyed_users", "keyedUsers")
	if !ok || isNull(usersRaw) {
		return nil
	}

	usersPointer := joinPointer(pointer, name)

	users, err := decodeObject(usersRaw, usersPointer)
	if err != nil {
		return err
	}

	for _, userKey := range users.sortedKeys() {
		userPointer := joinPointer(usersPointer, userKey)

		userID, err := parseID(userKey)
		if err != nil {
			return &types.ParseError{Pointer: userPointer, Err: err}
		}

		foreignID, err := decodeForeignID(users[userKey], userPointer)
		if err != nil {
			return err
		}

		gate.KeyedUsers = append(gate.KeyedUsers, &types.KeyedUser{
			GuildID:       guild.ID,
			UserID:        userID,
			ForeignID:     foreignID,
			ForeignIDType: enum.ForeignIDTypeExternal,
		})
	}

	return nil
}

func decodeRoles(guildID uint64, raw json.RawMessage, pointer string) ([]*types.Role, error) {
	obj, err := decodeObject(raw, pointer)
	if err != nil {
		return nil, err
	}

	roles := make([]*types.Role, 0, len(obj))

	for _, roleKey := range obj.sortedKeys() {
		rolePointer := joinPointer(pointer, roleKey)

		roleID, err := parseID(roleKey)
		if err != nil {
			return nil, &types.ParseError{Pointer: rolePointer, Err: err}
		}

		fields, err := decodeObject(obj[roleKey], rolePointer)
		if err != nil {
			return nil, err
		}

		role := &types.Role{ID: roleID, GuildID: guildID}

		nameRaw, name, ok := fields.field("name")
		if !ok {
			return nil, &types.ParseError{Pointer: joinPointer(rolePointer, name), Err: ErrMissingField}
		}

		if role.Name, err = decodeString(nameRaw, joinPointer(rolePointer, name)); err != nil {
			return nil, err
		}

		if value, name, ok := fields.field("can_join", "canJoin"); ok {
			if role.CanJoin, err = decodeBool(value, joinPointer(rolePointer, name)); err != nil {
				return nil, err
			}
		}

		if value, name, ok := fields.field("commanders"); ok {
			if role.Commanders, err = decodeIDList(value, joinPointer(rolePointer, name)); err != nil {
				return nil, err
			}
		}

		roles = append(roles, role)
	}

	return roles, nil
}

// decodeIDList accepts an array of ids or, as written by older files, an object keyed by id.
func decodeIDList(raw json.RawMessage, pointer string) ([]uint64, error) {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := sonic.Unmarshal(trimmed, &items); err != nil {
			return nil, &types.ParseError{Pointer: pointer, Err: err}
		}

		ids := make([]uint64, 0, len(items))
		for i, item := range items {
			id, err := decodeID(item, joinPointer(pointer, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}

			ids = append(ids, id)
		}

		return ids, nil
	case '{':
		obj, err := decodeObject(trimmed, pointer)
		if err != nil {
			return nil, err
		}

		ids := make([]uint64, 0, len(obj))
		for _, key := range obj.sortedKeys() {
			// Keys of zero or below never name a commander
			if n, err := strconv.ParseInt(key, 10, 64); err == nil && n <= 0 {
				continue
			}

			id, err := parseID(key)
			if err != nil {
				return nil, &types.ParseError{Pointer: joinPointer(pointer, key), Err: err}
			}

			ids = append(ids, id)
		}

		return ids, nil
	default:
		return nil, &types.ParseError{Pointer: pointer, Err: ErrInvalidList}
	}
}

// decodeID accepts a JSON number or a digit string. Null and the empty string mean 0.
func decodeID(raw json.RawMessage, pointer string) (uint64, error) {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return 0, nil
	}

	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := sonic.Unmarshal(trimmed, &text); err != nil {
			return 0, &types.ParseError{Pointer: pointer, Err: err}
		}

		if text == "" {
			return 0, nil
		}
	}

	id, err := parseID(text)
	if err != nil {
		return 0, &types.ParseError{Pointer: pointer, Err: err}
	}

	return id, nil
}

// decodeForeignID accepts a string or any JSON number. Numbers keep their literal text.
func decodeForeignID(raw json.RawMessage, pointer string) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return "", nil
	}

	if trimmed[0] == '"' {
		return decodeString(trimmed, pointer)
	}

	var number json.Number
	if err := sonic.Unmarshal(trimmed, &number); err != nil {
		return "", &types.ParseError{Pointer: pointer, Err: fmt.Errorf("%w: %s", ErrInvalidForeignID, trimmed)}
	}

	return string(trimmed), nil
}

func decodeString(raw json.RawMessage, pointer string) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return "", nil
	}

	if trimmed[0] != '"' {
		return "", &types.ParseError{Pointer: pointer, Err: ErrInvalidString}
	}

	var value string
	if err := sonic.Unmarshal(trimmed, &value); err != nil {
		return "", &types.ParseError{Pointer: pointer, Err: err}
	}

	return value, nil
}

func decodeBool(raw json.RawMessage, pointer string) (bool, error) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false", "null":
		return false, nil
	default:
		return false, &types.ParseError{Pointer: pointer, Err: ErrInvalidBool}
	}
}

// parseID reads a decimal id. Ids are stored as bigint, so anything above MaxInt64 is rejected.
func parseID(text string) (uint64, error) {
	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, text)
	}

	if id > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidID, text)
	}

	return id, nil
}

func isNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

// joinPointer appends an escaped reference token to a JSON pointer.
func joinPointer(base, token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")

	return base + "/" + token
}

// encodeGuild converts a stored aggregate into its snapshot form.
func encodeGuild(guild *types.Guild) *snapshotGuild {
	out := &snapshotGuild{
		GreetingMessage: guild.WelcomeMessage,
		GateData: snapshotGate{
			AllowRejoin: guild.Gate.AllowRejoin,
			GateEnabled: guild.Gate.GateEnabled,
			KeyRoleID:   guild.Gate.KeyRoleID,
			KeyedUsers:  make(map[string]string, len(guild.Gate.KeyedUsers)),
		},
		RoleData: make(map[string]*snapshotRole, len(guild.Roles)),
	}

	for _, user := range guild.Gate.KeyedUsers {
		out.GateData.KeyedUsers[strconv.FormatUint(user.UserID, 10)] = user.ForeignID
	}

	for _, role := range guild.Roles {
		commanders := make([]uint64, len(role.Commanders))
		copy(commanders, role.Commanders)

		out.RoleData[strconv.FormatUint(role.ID, 10)] = &snapshotRole{
			CanJoin:    role.CanJoin,
			Name:       role.Name,
			Commanders: commanders,
		}
	}

	return out
}
