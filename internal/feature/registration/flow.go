// Package registration implements the first-contact conversation: greeting,
// consent, name capture, and profile creation.
package registration

import (
	"context"

	"github.com/sirupsen/logrus"

	"baby_sleep_tracker_bot/internal/domain"
	"baby_sleep_tracker_bot/internal/feature/settings"
	"baby_sleep_tracker_bot/internal/logging"
	"baby_sleep_tracker_bot/internal/reply"
	"baby_sleep_tracker_bot/internal/state"
	"baby_sleep_tracker_bot/internal/webapp"
)

// Callback action ids owned by this flow.
const (
	ActionStartRegistration  = "start_registration"
	ActionCancelRegistration = "cancel_registration"
)

const (
	msgNameTooLong = "That name is a bit too long. Please choose a shorter name (up to 50 characters)."
	msgNameEmpty   = "Please enter a valid name."
	msgDeclined    = "No problem! You can always start the registration later by sending /start again."
	msgNamePrompt  = "Great! 🎉\n\n" +
		"To personalize your experience, please tell me what you'd like me to call you.\n" +
		"You can use your first name, a nickname, or any name you prefer."
	msgTryAgain = "Something went wrong. Please try again."
)

// Flow orchestrates registration. It reads and writes the profile store,
// owns the awaiting-registration-name conversation mode, and emits
// transport-neutral replies.
type Flow struct {
	store  domain.ProfileStore
	states *state.Tracker
	links  *webapp.LinkBuilder
	logger *logrus.Entry
}

// NewFlow constructs the registration flow.
func NewFlow(store domain.ProfileStore, states *state.Tracker, links *webapp.LinkBuilder, logger *logrus.Entry) *Flow {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Flow{
		store:  store,
		states: states,
		links:  links,
		logger: logger,
	}
}

// Start handles /start: registered users get the main menu, new users the
// consent prompt.
func (f *Flow) Start(ctx context.Context, info domain.PlatformInfo) reply.Reply {
	registered, err := f.store.IsRegistered(ctx, info.UserID)
	if err != nil {
		f.logger.WithFields(logging.Fields{
			"event":   "registration_lookup_failed",
			"user_id": info.UserID,
		}).WithError(err).Error("could not check registration")
		return reply.Text(msgTryAgain)
	}

	if registered {
		profile, found, err := f.store.Get(ctx, info.UserID)
		if err != nil || !found {
			if err != nil {
				f.logger.WithFields(logging.Fields{
					"event":   "registration_lookup_failed",
					"user_id": info.UserID,
				}).WithError(err).Error("could not load profile")
			}
			return reply.Text(msgTryAgain)
		}
		return mainMenu(f.links, profile.TelegramID, profile.CustomName)
	}

	return reply.Menu(
		"Hello "+info.FirstName+"! 👋\n\n"+
			"Welcome to Baby Sleep Tracker Bot! 🍼\n\n"+
			"This bot helps you track your baby's sleep patterns and provides "+
			"intelligent predictions for optimal sleep times.\n\n"+
			"Would you like to get started?",
		reply.Button{Label: "✅ Yes, let's start!", Action: ActionStartRegistration},
		reply.Button{Label: "❌ Not now", Action: ActionCancelRegistration},
	)
}

// Accept handles consent: it arms the name-capture mode and prompts for a
// name. No store access happens until a valid name arrives.
func (f *Flow) Accept(userID int64) reply.Reply {
	f.states.Begin(userID, state.ModeAwaitingRegistrationName)
	return reply.Text(msgNamePrompt)
}

// Decline abandons registration without creating a profile.
func (f *Flow) Decline(userID int64) reply.Reply {
	f.states.Clear(userID)
	return reply.Text(msgDeclined)
}

// HandleName consumes the free-text name while the awaiting mode is active.
// Invalid names re-prompt and keep the mode armed; a valid name creates the
// profile, clears the mode, and hands off to the web app.
func (f *Flow) HandleName(ctx context.Context, info domain.PlatformInfo, text string) reply.Reply {
	name, err := domain.ValidateDisplayName(text)
	switch err {
	case nil:
	case domain.ErrNameTooLong:
		return reply.Text(msgNameTooLong)
	default:
		return reply.Text(msgNameEmpty)
	}

	if err := f.store.Register(ctx, info, name); err != nil {
		f.logger.WithFields(logging.Fields{
			"event":   "registration_failed",
			"user_id": info.UserID,
		}).WithError(err).Error("could not register profile")
		// Mode stays armed so the user can simply resend the name.
		return reply.Text(msgTryAgain)
	}

	f.states.Clear(info.UserID)

	return reply.Menu(
		"Perfect! Nice to meet you, "+name+"! ✨\n\n"+
			"You're all set up! You can now:\n"+
			"• Track your baby's sleep patterns\n"+
			"• Get intelligent sleep predictions\n"+
			"• View sleep history and analytics\n\n"+
			"Click the button below to open the app:",
		reply.Button{Label: "🍼 Open Baby Sleep Tracker", URL: f.links.Handoff(info.UserID, name)},
		reply.Button{Label: "⚙️ Settings", Action: settings.ActionOpenSettings},
	)
}

func mainMenu(links *webapp.LinkBuilder, userID int64, customName string) reply.Reply {
	return reply.Menu(
		"Welcome back, "+customName+"! 👋\n\n"+
			"Track your baby's sleep patterns with our app.",
		reply.Button{Label: "🍼 Open Baby Sleep Tracker", URL: links.Handoff(userID, customName)},
		reply.Button{Label: "⚙️ Settings", Action: settings.ActionOpenSettings},
	)
}
