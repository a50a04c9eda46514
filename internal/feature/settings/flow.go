// Package settings implements the settings menu: notification flag toggles
// and the name-change sub-flow.
package settings

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"baby_sleep_tracker_bot/internal/domain"
	"baby_sleep_tracker_bot/internal/logging"
	"baby_sleep_tracker_bot/internal/reply"
	"baby_sleep_tracker_bot/internal/state"
	"baby_sleep_tracker_bot/internal/webapp"
)

// Callback action ids owned by this flow.
const (
	ActionOpenSettings         = "settings"
	ActionChangeName           = "change_name"
	ActionToggleNotifications  = "toggle_notifications"
	ActionToggleSleepReminders = "toggle_sleep_reminders"
	ActionToggleWakeReminders  = "toggle_wake_reminders"
	ActionBackToMain           = "back_to_main"
)

const (
	msgRegisterFirst    = "You need to register first. Please use /start command."
	msgNameChangePrompt = "Please enter your new name:"
	msgNameTooLong      = "That name is a bit too long. Please choose a shorter name (up to 50 characters)."
	msgNameEmpty        = "Please enter a valid name."
	msgTryAgain         = "Something went wrong. Please try again."
)

// Flow orchestrates the settings menu. Every render reads the profile fresh
// from the store so toggles never echo pre-toggle values.
type Flow struct {
	store  domain.ProfileStore
	states *state.Tracker
	links  *webapp.LinkBuilder
	logger *logrus.Entry
}

// NewFlow constructs the settings flow.
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

// Menu renders the settings menu from freshly read state. Users without a
// profile are told to register; no settings read is attempted for them.
func (f *Flow) Menu(ctx context.Context, userID int64) reply.Reply {
	registered, err := f.store.IsRegistered(ctx, userID)
	if err != nil {
		f.logger.WithFields(logging.Fields{
			"event":   "settings_lookup_failed",
			"user_id": userID,
		}).WithError(err).Error("could not check registration")
		return reply.Text(msgTryAgain)
	}
	if !registered {
		return reply.Text(msgRegisterFirst)
	}

	profile, found, err := f.store.Get(ctx, userID)
	if err != nil || !found {
		if err != nil {
			f.logger.WithFields(logging.Fields{
				"event":   "settings_lookup_failed",
				"user_id": userID,
			}).WithError(err).Error("could not load profile")
			return reply.Text(msgTryAgain)
		}
		return reply.Text(msgRegisterFirst)
	}

	return reply.Menu(
		"⚙️ Settings\n\n"+
			"Current name: "+profile.CustomName+"\n\n"+
			"Notification Settings:",
		reply.Button{Label: "✏️ Change Name", Action: ActionChangeName},
		reply.Button{Label: "🔔 Notifications: " + onOff(profile.Settings.NotificationsEnabled), Action: ActionToggleNotifications},
		reply.Button{Label: "😴 Sleep Reminders: " + onOff(profile.Settings.SleepReminders), Action: ActionToggleSleepReminders},
		reply.Button{Label: "☀️ Wake Reminders: " + onOff(profile.Settings.WakeReminders), Action: ActionToggleWakeReminders},
		reply.Button{Label: "🔙 Back to Main", Action: ActionBackToMain},
	)
}

// Toggle flips exactly one named flag read-modify-write and re-renders the
// menu from a fresh read.
func (f *Flow) Toggle(ctx context.Context, userID int64, action string) reply.Reply {
	profile, found, err := f.store.Get(ctx, userID)
	if err != nil {
		f.logger.WithFields(logging.Fields{
			"event":   "settings_lookup_failed",
			"user_id": userID,
		}).WithError(err).Error("could not load profile for toggle")
		return reply.Text(msgTryAgain)
	}
	if !found {
		return reply.Text(msgRegisterFirst)
	}

	var patch domain.SettingsPatch
	switch action {
	case ActionToggleNotifications:
		patch.NotificationsEnabled = boolPtr(!profile.Settings.NotificationsEnabled)
	case ActionToggleSleepReminders:
		patch.SleepReminders = boolPtr(!profile.Settings.SleepReminders)
	case ActionToggleWakeReminders:
		patch.WakeReminders = boolPtr(!profile.Settings.WakeReminders)
	default:
		f.logger.WithFields(logging.Fields{
			"event":   "settings_unknown_toggle",
			"user_id": userID,
			"action":  action,
		}).Warn("ignoring unknown toggle action")
		return f.Menu(ctx, userID)
	}

	if err := f.store.UpdateSettings(ctx, userID, patch); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return reply.Text(msgRegisterFirst)
		}
		f.logger.WithFields(logging.Fields{
			"event":   "settings_update_failed",
			"user_id": userID,
		}).WithError(err).Error("could not update settings")
		return reply.Text(msgTryAgain)
	}

	return f.Menu(ctx, userID)
}

// ChangeName arms the name-change mode and prompts for the new name.
func (f *Flow) ChangeName(ctx context.Context, userID int64) reply.Reply {
	registered, err := f.store.IsRegistered(ctx, userID)
	if err != nil {
		f.logger.WithFields(logging.Fields{
			"event":   "settings_lookup_failed",
			"user_id": userID,
		}).WithError(err).Error("could not check registration")
		return reply.Text(msgTryAgain)
	}
	if !registered {
		return reply.Text(msgRegisterFirst)
	}

	f.states.Begin(userID, state.ModeAwaitingNameChange)
	return reply.Text(msgNameChangePrompt)
}

// HandleName consumes the free-text new name while the awaiting mode is
// active. Validation matches registration's name step; the difference is
// that it updates the existing profile instead of creating one.
func (f *Flow) HandleName(ctx context.Context, userID int64, text string) []reply.Reply {
	name, err := domain.ValidateDisplayName(text)
	switch err {
	case nil:
	case domain.ErrNameTooLong:
		return []reply.Reply{reply.Text(msgNameTooLong)}
	default:
		return []reply.Reply{reply.Text(msgNameEmpty)}
	}

	if err := f.store.UpdateDisplayName(ctx, userID, name); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			f.states.Clear(userID)
			return []reply.Reply{reply.Text(msgRegisterFirst)}
		}
		f.logger.WithFields(logging.Fields{
			"event":   "settings_rename_failed",
			"user_id": userID,
		}).WithError(err).Error("could not update display name")
		// Mode stays armed so the user can simply resend the name.
		return []reply.Reply{reply.Text(msgTryAgain)}
	}

	f.states.Clear(userID)

	return []reply.Reply{
		reply.Text("✅ Name updated successfully! You're now known as " + name + "."),
		mainMenu(f.links, userID, name),
	}
}

// BackToMain returns the user to the main menu.
func (f *Flow) BackToMain(ctx context.Context, userID int64) reply.Reply {
	profile, found, err := f.store.Get(ctx, userID)
	if err != nil {
		f.logger.WithFields(logging.Fields{
			"event":   "settings_lookup_failed",
			"user_id": userID,
		}).WithError(err).Error("could not load profile")
		return reply.Text(msgTryAgain)
	}
	if !found {
		return reply.Text(msgRegisterFirst)
	}

	return mainMenu(f.links, userID, profile.CustomName)
}

func mainMenu(links *webapp.LinkBuilder, userID int64, customName string) reply.Reply {
	return reply.Menu(
		"Welcome back, "+customName+"! 👋\n\n"+
			"Track your baby's sleep patterns with our app.",
		reply.Button{Label: "🍼 Open Baby Sleep Tracker", URL: links.Handoff(userID, customName)},
		reply.Button{Label: "⚙️ Settings", Action: ActionOpenSettings},
	)
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}

	return "OFF"
}

func boolPtr(v bool) *bool {
	return &v
}
