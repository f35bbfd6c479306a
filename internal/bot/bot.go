package bot

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	disgoEvents "github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/jarvis-bot/jarvis/internal/bot/events"
	"github.com/jarvis-bot/jarvis/internal/setup"
	"github.com/jarvis-bot/jarvis/internal/setup/telemetry"
	"go.uber.org/zap"
)

// Bot connects to the Discord gateway and keeps guild configuration in step
// with the guilds it is a member of.
type Bot struct {
	client bot.Client
	roles  *events.RoleEventHandler
	logger *zap.Logger
}

// New initializes a Bot instance from the initialized application and
// configures the Discord client with the intents and listeners it needs.
func New(app *setup.App) (*Bot, error) {
	logger := app.Logger.Named("bot")
	services := app.DB.Service()
	syncCfg := app.Config.Bot.Sync

	b := &Bot{
		roles: events.NewRoleEventHandler(
			services.Sync(),
			services.Config(),
			syncCfg.CleanupOnReady,
			syncCfg.MaxConcurrent,
			telemetry.ServiceBot.GetRequestTimeout(app.Config),
			logger,
		),
		logger: logger,
	}

	// Guild events carry role create, update and delete
	client, err := disgo.New(app.Config.Bot.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
			),
		),
		bot.WithEventListeners(&disgoEvents.ListenerAdapter{
			OnGuildReady: b.roles.OnGuildReady,
			OnGuildJoin:  b.roles.OnGuildJoin,
			OnRoleCreate: b.roles.OnRoleCreate,
			OnRoleUpdate: b.roles.OnRoleUpdate,
			OnRoleDelete: b.roles.OnRoleDelete,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	b.client = client
	return b, nil
}

// Start opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting bot")
	return b.client.OpenGateway(ctx)
}

// Close gracefully shuts down the Discord gateway connection.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.roles.Close()
	b.client.Close(ctx)
}
