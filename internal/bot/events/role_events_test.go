package events_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	disgoEvents "github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/jarvis-bot/jarvis/internal/bot/events"
	"github.com/jarvis-bot/jarvis/internal/database/types"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type syncCall struct {
	guildID uint64
	roster  []types.LiveRole
	cleanup bool
}

type fakeSyncer struct {
	mu      sync.Mutex
	calls   []syncCall
	removed []uint64
	err     error
}

func (f *fakeSyncer) SyncGuildRoles(
	_ context.Context, guildID uint64, roster []types.LiveRole, cleanup bool,
) (*types.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, syncCall{guildID: guildID, roster: roster, cleanup: cleanup})
	if f.err != nil {
		return nil, f.err
	}

	return &types.SyncResult{GuildID: guildID}, nil
}

func (f *fakeSyncer) DeleteRole(_ context.Context, roleID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removed = append(f.removed, roleID)
	return f.err
}

func (f *fakeSyncer) syncedGuilds() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	guildIDs := make([]uint64, 0, len(f.calls))
	for _, call := range f.calls {
		guildIDs = append(guildIDs, call.guildID)
	}

	return guildIDs
}

// fakeFetcher answers GetRoles after a delay, honoring the request context.
type fakeFetcher struct {
	delay   time.Duration
	started chan struct{}
	release chan struct{}
	err     error
	calls   atomic.Int32
}

func (f *fakeFetcher) GetRoles(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Role, error) {
	f.calls.Add(1)

	cfg := &rest.RequestConfig{}
	cfg.Apply(opts)

	if f.started != nil {
		f.started <- struct{}{}
	}

	if f.release != nil {
		<-f.release
	}

	select {
	case <-time.After(f.delay):
	case <-cfg.Ctx.Done():
		return nil, cfg.Ctx.Err()
	}

	if f.err != nil {
		return nil, f.err
	}

	return []discord.Role{
		{ID: guildID, Name: "@everyone"},
		{ID: guildID + 1, Name: "Member"},
	}, nil
}

func TestLiveRoster(t *testing.T) {
	t.Parallel()

	guildID := snowflake.ID(500)

	tests := []struct {
		name  string
		roles []discord.Role
		want  []types.LiveRole
	}{
		{
			name:  "no roles",
			roles: nil,
			want:  []types.LiveRole{},
		},
		{
			name:  "only everyone",
			roles: []discord.Role{{ID: guildID, Name: "@everyone"}},
			want:  []types.LiveRole{},
		},
		{
			name: "everyone filtered",
			roles: []discord.Role{
				{ID: guildID, Name: "@everyone"},
				{ID: 501, Name: "Member"},
				{ID: 502, Name: "Gamer"},
			},
			want: []types.LiveRole{{ID: 501, Name: "Member"}, {ID: 502, Name: "Gamer"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, events.LiveRoster(guildID, tt.roles))
		})
	}
}

func TestRoleEventHandler_SyncRoster(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cleanup bool
	}{
		{name: "with cleanup", cleanup: true},
		{name: "without cleanup", cleanup: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			syncer := &fakeSyncer{}
			handler := events.NewRoleEventHandler(syncer, syncer, tt.cleanup, 2, time.Second, zap.NewNop())

			result, err := handler.SyncRoster(t.Context(), 7, []discord.Role{
				{ID: 7, Name: "@everyone"},
				{ID: 70, Name: "Member"},
			})
			require.NoError(t, err)
			assert.Equal(t, uint64(7), result.GuildID)

			require.Len(t, syncer.calls, 1)
			assert.Equal(t, uint64(7), syncer.calls[0].guildID)
			assert.Equal(t, []types.LiveRole{{ID: 70, Name: "Member"}}, syncer.calls[0].roster)
			assert.Equal(t, tt.cleanup, syncer.calls[0].cleanup)
		})
	}
}

func TestRoleEventHandler_SyncRosterError(t *testing.T) {
	t.Parallel()

	errStore := errors.New("store unavailable")
	syncer := &fakeSyncer{err: errStore}
	handler := events.NewRoleEventHandler(syncer, syncer, true, 1, time.Second, zap.NewNop())

	_, err := handler.SyncRoster(t.Context(), 1, []discord.Role{{ID: 10, Name: "x"}})
	require.ErrorIs(t, err, errStore)
}

func TestRoleEventHandler_RemoveRole(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{}
	handler := events.NewRoleEventHandler(syncer, syncer, false, 0, time.Second, zap.NewNop())

	require.NoError(t, handler.RemoveRole(t.Context(), 42))
	assert.Equal(t, []uint64{42}, syncer.removed)
}

func TestRoleEventHandler_SyncGuildQueuedGuildsAllSync(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{}
	fetcher := &fakeFetcher{delay: 60 * time.Millisecond}

	// One slot and a timeout shorter than the queue, so later guilds wait longer than the timeout
	handler := events.NewRoleEventHandler(syncer, syncer, true, 1, 100*time.Millisecond, zap.NewNop())
	defer handler.Close()

	guildIDs := []snowflake.ID{100, 200, 300, 400, 500}
	errs := make([]error, len(guildIDs))

	var wg conc.WaitGroup
	for i, guildID := range guildIDs {
		wg.Go(func() {
			_, errs[i] = handler.SyncGuild(fetcher, guildID)
		})
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.ElementsMatch(t, []uint64{100, 200, 300, 400, 500}, syncer.syncedGuilds())
	assert.Equal(t, int32(len(guildIDs)), fetcher.calls.Load())
}

func TestRoleEventHandler_SyncGuildCoalescesSameGuild(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{}
	fetcher := &fakeFetcher{started: make(chan struct{}, 3), release: make(chan struct{})}

	handler := events.NewRoleEventHandler(syncer, syncer, true, 4, time.Second, zap.NewNop())
	defer handler.Close()

	results := make([]*types.SyncResult, 3)

	var wg conc.WaitGroup
	wg.Go(func() {
		results[0], _ = handler.SyncGuild(fetcher, 9)
	})

	// The first run is fetching, the next two join it
	<-fetcher.started

	for i := 1; i < len(results); i++ {
		wg.Go(func() {
			results[i], _ = handler.SyncGuild(fetcher, 9)
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, []uint64{9}, syncer.syncedGuilds())

	for _, result := range results {
		require.NotNil(t, result)
		assert.Same(t, results[0], result)
	}
}

func TestRoleEventHandler_SyncGuildFetchError(t *testing.T) {
	t.Parallel()

	errDiscord := errors.New("discord unavailable")
	syncer := &fakeSyncer{}
	fetcher := &fakeFetcher{err: errDiscord}

	handler := events.NewRoleEventHandler(syncer, syncer, true, 1, time.Second, zap.NewNop())
	defer handler.Close()

	_, err := handler.SyncGuild(fetcher, 3)
	require.ErrorIs(t, err, errDiscord)
	assert.Empty(t, syncer.syncedGuilds())
}

func TestRoleEventHandler_SyncGuildAfterClose(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{}
	handler := events.NewRoleEventHandler(syncer, syncer, true, 1, time.Second, zap.NewNop())
	handler.Close()

	_, err := handler.SyncGuild(&fakeFetcher{}, 3)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, syncer.syncedGuilds())
}

func TestRoleEventHandler_RoleEvents(t *testing.T) {
	t.Parallel()

	const guildID = snowflake.ID(50)

	roleEvent := func(role discord.Role) *disgoEvents.GenericRole {
		return &disgoEvents.GenericRole{GuildID: guildID, RoleID: role.ID, Role: role}
	}

	tests := []struct {
		name        string
		fire        func(h *events.RoleEventHandler)
		wantCalls   []syncCall
		wantRemoved []uint64
	}{
		{
			name: "create stores one role without cleanup",
			fire: func(h *events.RoleEventHandler) {
				h.OnRoleCreate(&disgoEvents.RoleCreate{GenericRole: roleEvent(discord.Role{ID: 51, Name: "Member"})})
			},
			wantCalls: []syncCall{{guildID: 50, roster: []types.LiveRole{{ID: 51, Name: "Member"}}, cleanup: false}},
		},
		{
			name: "everyone role ignored",
			fire: func(h *events.RoleEventHandler) {
				h.OnRoleCreate(&disgoEvents.RoleCreate{GenericRole: roleEvent(discord.Role{ID: guildID, Name: "@everyone"})})
			},
		},
		{
			name: "rename synced",
			fire: func(h *events.RoleEventHandler) {
				h.OnRoleUpdate(&disgoEvents.RoleUpdate{
					GenericRole: roleEvent(discord.Role{ID: 51, Name: "Members"}),
					OldRole:     discord.Role{ID: 51, Name: "Member"},
				})
			},
			wantCalls: []syncCall{{guildID: 50, roster: []types.LiveRole{{ID: 51, Name: "Members"}}, cleanup: false}},
		},
		{
			name: "update without rename ignored",
			fire: func(h *events.RoleEventHandler) {
				h.OnRoleUpdate(&disgoEvents.RoleUpdate{
					GenericRole: roleEvent(discord.Role{ID: 51, Name: "Member", Color: 5}),
					OldRole:     discord.Role{ID: 51, Name: "Member"},
				})
			},
		},
		{
			name: "delete removes role",
			fire: func(h *events.RoleEventHandler) {
				h.OnRoleDelete(&disgoEvents.RoleDelete{GenericRole: roleEvent(discord.Role{ID: 51})})
			},
			wantRemoved: []uint64{51},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			syncer := &fakeSyncer{}
			handler := events.NewRoleEventHandler(syncer, syncer, true, 1, time.Second, zap.NewNop())
			defer handler.Close()

			tt.fire(handler)

			assert.Equal(t, tt.wantCalls, syncer.calls)
			assert.Equal(t, tt.wantRemoved, syncer.removed)
		})
	}
}
