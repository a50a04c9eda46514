// Package state tracks per-user conversation modes for multi-step flows.
// Modes live in memory only and are lost on restart by design; a user caught
// mid-flow can simply start over with /start.
package state

import "sync"

// Mode identifies which flow, if any, currently owns a user's free-text input.
type Mode string

const (
	// ModeIdle means no flow is awaiting input from the user.
	ModeIdle Mode = "idle"
	// ModeAwaitingRegistrationName means the registration flow expects a name.
	ModeAwaitingRegistrationName Mode = "awaiting_registration_name"
	// ModeAwaitingNameChange means the settings flow expects a new name.
	ModeAwaitingNameChange Mode = "awaiting_name_change"
)

// Tracker owns the conversation mode map. It is the sole mutator of modes;
// flows begin a mode when they request free-text input and clear it once the
// input is consumed or abandoned. Begin overwrites any prior mode, so nested
// flows do not stack: the last writer wins.
type Tracker struct {
	mu    sync.RWMutex
	modes map[int64]Mode
}

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{modes: make(map[int64]Mode)}
}

// Begin sets the mode for a user, replacing any previous mode.
func (t *Tracker) Begin(userID int64, mode Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.modes[userID] = mode
}

// Current returns the user's mode, defaulting to ModeIdle if never set.
func (t *Tracker) Current(userID int64) Mode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if mode, ok := t.modes[userID]; ok {
		return mode
	}

	return ModeIdle
}

// Clear resets the user's mode to idle.
func (t *Tracker) Clear(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.modes, userID)
}

// InProgress reports whether a flow currently awaits input from the user.
func (t *Tracker) InProgress(userID int64) bool {
	return t.Current(userID) != ModeIdle
}
