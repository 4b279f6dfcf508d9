// Package bot provides the Telegram bot initialization and handler
// registration. Updates are not polled: they arrive through the webhook
// ingestion adapter and are fed in via ProcessUpdate.
package bot

import (
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/diamondheist/diamondbackend/internal/config"
	"github.com/diamondheist/diamondbackend/internal/handler"
	"github.com/diamondheist/diamondbackend/internal/service"
)

// NewClient creates the underlying telebot client. It is constructed
// before the services so the media mirror can reuse it for profile photo
// fetches.
func NewClient(cfg *config.BotConfig) (*tele.Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token: cfg.Token,
		// Handlers run inside the webhook request so the adapter can
		// acknowledge once dispatch has been attempted.
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			evt := log.Error().Err(err)
			if c != nil && c.Sender() != nil {
				evt = evt.Int64("user_id", c.Sender().ID)
			}
			evt.Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return teleBot, nil
}

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	startHandler *handler.StartHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Client       *tele.Bot
	Config       *config.Config
	Provisioning *service.ProvisioningService
}

// New wires middleware and handlers onto the client. Only /start is
// handled; every other update content is ignored.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("telebot client is required")
	}

	b := &Bot{
		bot: deps.Client,
		cfg: deps.Config,
	}

	b.startHandler = handler.NewStartHandler(deps.Provisioning, deps.Config.Bot.AppURL)

	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())

	b.bot.Handle("/start", b.startHandler.HandleStart)

	return b, nil
}

// ProcessUpdate dispatches a decoded update through the command router.
func (b *Bot) ProcessUpdate(u tele.Update) {
	b.bot.ProcessUpdate(u)
}

// RegisterWebhook performs the one-time webhook registration with
// Telegram when a public URL is configured.
func (b *Bot) RegisterWebhook() error {
	if b.cfg.Webhook.PublicURL == "" {
		log.Info().Msg("No public webhook URL configured, skipping webhook registration")
		return nil
	}

	params := map[string]string{
		"url":                  b.cfg.Webhook.PublicURL,
		"drop_pending_updates": "true",
	}
	if b.cfg.Webhook.SecretToken != "" {
		params["secret_token"] = b.cfg.Webhook.SecretToken
	}

	if _, err := b.bot.Raw("setWebhook", params); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	log.Info().Str("url", b.cfg.Webhook.PublicURL).Msg("Webhook registered with Telegram")
	return nil
}

// Me returns the authenticated bot account, nil before initialization.
func (b *Bot) Me() *tele.User {
	return b.bot.Me
}
