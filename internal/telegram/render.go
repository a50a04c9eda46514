package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"baby_sleep_tracker_bot/internal/logging"
	"baby_sleep_tracker_bot/internal/reply"
)

// send delivers a reply as a new message. Send failures are logged and the
// event loop continues.
func (c *Client) send(ctx context.Context, chatID int64, r reply.Reply) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   r.Text,
	}
	if markup := inlineMarkup(r); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_send_failed",
			"chat_id": chatID,
		}).WithError(err).Error("could not send message")
	}
}

// render delivers a callback reply by editing the originating message in
// place. When the message is inaccessible (too old, deleted), it falls back
// to sending a fresh message to the user.
func (c *Client) render(ctx context.Context, cb *models.CallbackQuery, r reply.Reply) {
	chatID, messageID, ok := callbackMessageRef(cb)
	if !ok {
		c.send(ctx, cb.From.ID, r)
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      r.Text,
	}
	if markup := inlineMarkup(r); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := c.bot.EditMessageText(ctx, params); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_edit_failed",
			"chat_id": chatID,
		}).WithError(err).Error("could not edit message")
	}
}

// inlineMarkup converts reply buttons to an inline keyboard, one button per
// row. URL buttons open the web app inside Telegram.
func inlineMarkup(r reply.Reply) *models.InlineKeyboardMarkup {
	if len(r.Buttons) == 0 {
		return nil
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(r.Buttons))
	for _, btn := range r.Buttons {
		b := models.InlineKeyboardButton{Text: btn.Label}
		if btn.URL != "" {
			b.WebApp = &models.WebAppInfo{URL: btn.URL}
		} else {
			b.CallbackData = btn.Action
		}
		rows = append(rows, []models.InlineKeyboardButton{b})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// callbackMessageRef extracts the chat and message id of the message the
// callback button was attached to, when Telegram still grants access to it.
func callbackMessageRef(cb *models.CallbackQuery) (int64, int, bool) {
	if cb == nil {
		return 0, 0, false
	}

	msg := cb.Message
	if msg.Type != models.MaybeInaccessibleMessageTypeMessage || msg.Message == nil {
		return 0, 0, false
	}

	return msg.Message.Chat.ID, msg.Message.ID, true
}
