// Package domain defines the user profile model and the storage contract
// shared by all profile store backends.
package domain

import (
	"errors"
	"strings"
)

// MaxDisplayNameLength bounds the user-chosen display name.
const MaxDisplayNameLength = 50

var (
	// ErrNameEmpty indicates a display name that is empty after trimming.
	ErrNameEmpty = errors.New("display name is empty")
	// ErrNameTooLong indicates a display name above MaxDisplayNameLength.
	ErrNameTooLong = errors.New("display name is too long")
)

// Settings groups the per-user notification preferences. The flag set is
// closed: updates can only touch these three fields.
type Settings struct {
	NotificationsEnabled bool `bson:"notifications_enabled" json:"notifications_enabled"`
	SleepReminders       bool `bson:"sleep_reminders" json:"sleep_reminders"`
	WakeReminders        bool `bson:"wake_reminders" json:"wake_reminders"`
}

// DefaultSettings returns the settings applied when a profile is first created.
func DefaultSettings() Settings {
	return Settings{
		NotificationsEnabled: true,
		SleepReminders:       true,
		WakeReminders:        true,
	}
}

// SettingsPatch carries a partial settings update. Nil fields are left
// unchanged by the merge.
type SettingsPatch struct {
	NotificationsEnabled *bool
	SleepReminders       *bool
	WakeReminders        *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.NotificationsEnabled == nil && p.SleepReminders == nil && p.WakeReminders == nil
}

// Apply merges the patch into existing settings and returns the result.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.SleepReminders != nil {
		s.SleepReminders = *p.SleepReminders
	}
	if p.WakeReminders != nil {
		s.WakeReminders = *p.WakeReminders
	}
	return s
}

// PlatformInfo mirrors the identity fields Telegram supplies with an update.
// Empty strings mean the platform did not provide the field.
type PlatformInfo struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// UserProfile is the durable record of one end user's identity and
// preferences. The json tags describe the local file record shape, the bson
// tags the MongoDB document shape.
type UserProfile struct {
	TelegramID int64    `bson:"telegram_user_id" json:"telegram_id"`
	Username   *string  `bson:"username" json:"username"`
	FirstName  *string  `bson:"first_name" json:"first_name"`
	LastName   *string  `bson:"last_name" json:"last_name"`
	CustomName string   `bson:"custom_name" json:"custom_name"`
	Settings   Settings `bson:"settings" json:"settings"`
}

// NewProfile builds a fresh profile from platform identity. The display name
// resolves to requestedName when non-empty, otherwise to the platform first
// name. Settings start at their defaults.
func NewProfile(info PlatformInfo, requestedName string) UserProfile {
	name := strings.TrimSpace(requestedName)
	if name == "" {
		name = info.FirstName
	}

	return UserProfile{
		TelegramID: info.UserID,
		Username:   optional(info.Username),
		FirstName:  optional(info.FirstName),
		LastName:   optional(info.LastName),
		CustomName: name,
		Settings:   DefaultSettings(),
	}
}

// ValidateDisplayName trims the raw input and enforces the 1..50 length
// bounds, returning which bound was violated so flows can answer differently.
func ValidateDisplayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrNameEmpty
	}
	if len([]rune(name)) > MaxDisplayNameLength {
		return "", ErrNameTooLong
	}

	return name, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}

	return &value
}
