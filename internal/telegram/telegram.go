// Package telegram hosts the Telegram client, routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"baby_sleep_tracker_bot/internal/config"
	"baby_sleep_tracker_bot/internal/domain"
	"baby_sleep_tracker_bot/internal/feature/registration"
	"baby_sleep_tracker_bot/internal/feature/settings"
	"baby_sleep_tracker_bot/internal/logging"
	"baby_sleep_tracker_bot/internal/reply"
	"baby_sleep_tracker_bot/internal/state"
)

// botAPI captures the subset of bot.Bot behavior the client relies on, so
// tests can stub the Telegram API away.
type botAPI interface {
	Start(ctx context.Context)
	RegisterHandler(handlerType bot.HandlerType, pattern string, matchType bot.MatchType, f bot.HandlerFunc, m ...bot.Middleware) string
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance, the conversation flows, and the
// state tracker that decides which flow owns a user's free text.
type Client struct {
	bot          botAPI
	logger       *logrus.Entry
	states       *state.Tracker
	registration *registration.Flow
	settings     *settings.Flow
}

// Option customizes the client during construction.
type Option func(*Client)

// WithRegistrationFlow wires the registration flow.
func WithRegistrationFlow(flow *registration.Flow) Option {
	return func(c *Client) {
		c.registration = flow
	}
}

// WithSettingsFlow wires the settings flow.
func WithSettingsFlow(flow *settings.Flow) Option {
	return func(c *Client) {
		c.settings = flow
	}
}

// WithStateTracker wires the conversation state tracker.
func WithStateTracker(states *state.Tracker) Option {
	return func(c *Client) {
		c.states = states
	}
}

// NewClient initializes the Telegram bot with long polling and wires the
// command, callback, and free-text routes.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}
	for _, opt := range opts {
		opt(client)
	}

	if client.registration == nil || client.settings == nil || client.states == nil {
		return nil, errors.New("registration flow, settings flow, and state tracker are required")
	}

	tgBot, err := createBot(cfg.BotToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.defaultHandler),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot
	client.registerRoutes()

	return client, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) registerRoutes() {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.handleStart)

	c.registerCallback(registration.ActionStartRegistration, func(_ context.Context, userID int64) reply.Reply {
		return c.registration.Accept(userID)
	})
	c.registerCallback(registration.ActionCancelRegistration, func(_ context.Context, userID int64) reply.Reply {
		return c.registration.Decline(userID)
	})
	c.registerCallback(settings.ActionOpenSettings, func(ctx context.Context, userID int64) reply.Reply {
		return c.settings.Menu(ctx, userID)
	})
	c.registerCallback(settings.ActionChangeName, func(ctx context.Context, userID int64) reply.Reply {
		return c.settings.ChangeName(ctx, userID)
	})
	c.registerCallback(settings.ActionBackToMain, func(ctx context.Context, userID int64) reply.Reply {
		return c.settings.BackToMain(ctx, userID)
	})

	for _, action := range []string{
		settings.ActionToggleNotifications,
		settings.ActionToggleSleepReminders,
		settings.ActionToggleWakeReminders,
	} {
		toggle := action
		c.registerCallback(toggle, func(ctx context.Context, userID int64) reply.Reply {
			return c.settings.Toggle(ctx, userID, toggle)
		})
	}
}

// registerCallback binds one callback action to a flow call. The callback is
// acknowledged fire-and-forget and the originating message is edited in place.
func (c *Client) registerCallback(action string, fn func(ctx context.Context, userID int64) reply.Reply) {
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, action, bot.MatchTypeExact, func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil || update.CallbackQuery == nil {
			return
		}

		cb := update.CallbackQuery
		c.acknowledge(ctx, cb.ID)

		c.render(ctx, cb, fn(ctx, cb.From.ID))
	})
}

// handleStart serves the /start command for both new and returning users.
func (c *Client) handleStart(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return
	}

	msg := update.Message
	c.send(ctx, msg.Chat.ID, c.registration.Start(ctx, platformInfo(msg.From)))
}

// defaultHandler receives everything the registered routes did not match:
// free text owned by an active flow, out-of-flow text, and unknown callbacks.
func (c *Client) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	if update.CallbackQuery != nil {
		cb := update.CallbackQuery
		c.acknowledge(ctx, cb.ID)
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_unknown_callback",
			"user_id": cb.From.ID,
			"data":    cb.Data,
		}).Warn("ignoring unsupported callback action")
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	text := strings.TrimSpace(msg.Text)
	userID := msg.From.ID

	switch c.states.Current(userID) {
	case state.ModeAwaitingRegistrationName:
		c.send(ctx, msg.Chat.ID, c.registration.HandleName(ctx, platformInfo(msg.From), text))
	case state.ModeAwaitingNameChange:
		for _, r := range c.settings.HandleName(ctx, userID, text) {
			c.send(ctx, msg.Chat.ID, r)
		}
	default:
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_update",
			"user_id": userID,
			"chat_id": msg.Chat.ID,
			"text":    text,
		}).Info("ignoring message outside any flow")
	}
}

// acknowledge answers a callback query fire-and-forget. Failures (typically
// expired callback handles) do not affect business state and are swallowed.
func (c *Client) acknowledge(ctx context.Context, callbackID string) {
	_, _ = c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	})
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func platformInfo(user *models.User) domain.PlatformInfo {
	if user == nil {
		return domain.PlatformInfo{}
	}

	return domain.PlatformInfo{
		UserID:    user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}
