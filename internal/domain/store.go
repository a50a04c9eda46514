package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by update operations when no profile exists for the
// given user id. Lookups signal absence with a boolean instead.
var ErrNotFound = errors.New("profile not found")

// ProfileStore persists user profiles keyed by Telegram user id. The two
// backends (local JSON file, MongoDB) share this contract: Register upserts
// and preserves existing settings on overwrite, every mutating call persists
// durably before returning nil, and absence on Get is never an error.
type ProfileStore interface {
	// Register creates or overwrites the profile for info.UserID. Identity
	// fields and the display name are replaced; settings are initialized to
	// defaults on first creation and preserved on overwrite.
	Register(ctx context.Context, info PlatformInfo, requestedName string) error

	// Get fetches a profile. The boolean reports presence; a false result
	// with a nil error means "not registered".
	Get(ctx context.Context, userID int64) (UserProfile, bool, error)

	// IsRegistered reports whether a profile exists for the user.
	IsRegistered(ctx context.Context, userID int64) (bool, error)

	// UpdateDisplayName replaces the stored display name. Returns ErrNotFound
	// for unknown users.
	UpdateDisplayName(ctx context.Context, userID int64, name string) error

	// UpdateSettings merges the patch into the stored settings, leaving
	// unspecified flags unchanged. Returns ErrNotFound for unknown users.
	UpdateSettings(ctx context.Context, userID int64, patch SettingsPatch) error

	// Count returns the number of stored profiles, for startup diagnostics.
	Count(ctx context.Context) (int64, error)
}
