// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/diamondheist/diamondbackend/internal/model"
	"github.com/diamondheist/diamondbackend/internal/service"
)

// StartHandler handles the /start command: first-contact provisioning
// plus the welcome reply with the mini-app launch button.
type StartHandler struct {
	provisioning *service.ProvisioningService
	appURL       string
}

// NewStartHandler creates a new StartHandler.
func NewStartHandler(provisioning *service.ProvisioningService, appURL string) *StartHandler {
	return &StartHandler{
		provisioning: provisioning,
		appURL:       appURL,
	}
}

// HandleStart provisions the sender on first contact and replies with
// the welcome message. The /start payload, if any, is the referral code.
func (h *StartHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	userID := strconv.FormatInt(sender.ID, 10)
	profile := model.Profile{
		FirstName:    sender.FirstName,
		LastName:     sender.LastName,
		Username:     sender.Username,
		LanguageCode: sender.LanguageCode,
		IsPremium:    sender.IsPremium,
	}

	payload := ""
	if m := c.Message(); m != nil {
		payload = m.Payload
	}

	res, err := h.provisioning.Provision(context.Background(), userID, profile, payload)
	if err != nil {
		// Dependency failure: generic retry-later reply, no internal
		// detail leaks to the user.
		log.Error().Err(err).Str("user_id", userID).Msg("Provisioning failed")
		return c.Reply("An error occurred. Please try again later.")
	}

	log.Debug().Str("user_id", userID).Bool("created", res.Created).Msg("Start handled")

	return c.Reply(WelcomeMessage(sender.FirstName), h.launchKeyboard())
}

// WelcomeMessage formats the first-contact greeting.
func WelcomeMessage(firstName string) string {
	return fmt.Sprintf(
		"Hi, %s!\n\n"+
			"Welcome to DiamondHeist!\n\n"+
			"Here you can earn coins by mining them!\n\n"+
			"Invite friends to earn more coins together, and level up faster!",
		firstName,
	)
}

// launchKeyboard builds the inline keyboard with the mini-app button.
func (h *StartHandler) launchKeyboard() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	open := menu.WebApp("Open Diamondapp", &tele.WebApp{URL: h.appURL})
	menu.Inline(menu.Row(open))
	return menu
}
