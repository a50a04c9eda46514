package settings

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"baby_sleep_tracker_bot/internal/domain"
	"baby_sleep_tracker_bot/internal/reply"
	"baby_sleep_tracker_bot/internal/state"
	"baby_sleep_tracker_bot/internal/webapp"
)

type fakeStore struct {
	profiles      map[int64]domain.UserProfile
	getCalls      int
	updateNameErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[int64]domain.UserProfile)}
}

func (s *fakeStore) Register(_ context.Context, info domain.PlatformInfo, requestedName string) error {
	s.profiles[info.UserID] = domain.NewProfile(info, requestedName)
	return nil
}

func (s *fakeStore) Get(_ context.Context, userID int64) (domain.UserProfile, bool, error) {
	s.getCalls++
	profile, ok := s.profiles[userID]
	return profile, ok, nil
}

func (s *fakeStore) IsRegistered(_ context.Context, userID int64) (bool, error) {
	_, ok := s.profiles[userID]
	return ok, nil
}

func (s *fakeStore) UpdateDisplayName(_ context.Context, userID int64, name string) error {
	if s.updateNameErr != nil {
		return s.updateNameErr
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	profile.CustomName = name
	s.profiles[userID] = profile
	return nil
}

func (s *fakeStore) UpdateSettings(_ context.Context, userID int64, patch domain.SettingsPatch) error {
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	profile.Settings = patch.Apply(profile.Settings)
	s.profiles[userID] = profile
	return nil
}

func (s *fakeStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.profiles)), nil
}

func newTestFlow(store domain.ProfileStore) (*Flow, *state.Tracker) {
	hookLogger, _ := logtest.NewNullLogger()
	states := state.NewTracker()
	links := webapp.NewLinkBuilder("http://localhost:3000")

	return NewFlow(store, states, links, logrus.NewEntry(hookLogger)), states
}

func seedProfile(t *testing.T, store *fakeStore, userID int64, name string) {
	t.Helper()

	if err := store.Register(context.Background(), domain.PlatformInfo{UserID: userID, FirstName: "Maria"}, name); err != nil {
		t.Fatalf("seed register failed: %v", err)
	}
}

func TestMenuTellsUnregisteredUserToStart(t *testing.T) {
	store := newFakeStore()
	flow, _ := newTestFlow(store)

	r := flow.Menu(context.Background(), 42)

	if !strings.Contains(r.Text, "register first") {
		t.Fatalf("expected register-first message, got %q", r.Text)
	}
	if len(r.Buttons) != 0 {
		t.Fatalf("expected no buttons for unregistered user, got %+v", r.Buttons)
	}
	if store.getCalls != 0 {
		t.Fatalf("expected no profile read for unregistered user, got %d reads", store.getCalls)
	}
}

func TestMenuShowsCurrentNameAndFlags(t *testing.T) {
	store := newFakeStore()
	seedProfile(t, store, 42, "Mia")
	flow, _ := newTestFlow(store)

	r := flow.Menu(context.Background(), 42)

	if !strings.Contains(r.Text, "Current name: Mia") {
		t.Fatalf("expected current name in menu, got %q", r.Text)
	}
	if len(r.Buttons) != 5 {
		t.Fatalf("expected 5 settings buttons, got %d", len(r.Buttons))
	}
	for _, label := range []string{"🔔 Notifications: ON", "😴 Sleep Reminders: ON", "☀️ Wake Reminders: ON"} {
		if !menuHasLabel(r.Buttons, label) {
			t.Fatalf("expected button %q, got %+v", label, r.Buttons)
		}
	}
}

func TestToggleFlipsOneFlagAndRendersFreshState(t *testing.T) {
	store := newFakeStore()
	seedProfile(t, store, 42, "Mia")
	flow, _ := newTestFlow(store)

	r := flow.Toggle(context.Background(), 42, ActionToggleSleepReminders)

	if !menuHasLabel(r.Buttons, "😴 Sleep Reminders: OFF") {
		t.Fatalf("expected toggled flag rendered OFF, got %+v", r.Buttons)
	}
	if !menuHasLabel(r.Buttons, "🔔 Notifications: ON") || !menuHasLabel(r.Buttons, "☀️ Wake Reminders: ON") {
		t.Fatalf("expected other flags untouched, got %+v", r.Buttons)
	}

	// Toggling twice restores the original value.
	r = flow.Toggle(context.Background(), 42, ActionToggleSleepReminders)
	if !menuHasLabel(r.Buttons, "😴 Sleep Reminders: ON") {
		t.Fatalf("expected second toggle to restore ON, got %+v", r.Buttons)
	}
}

func TestToggleUnknownActionRendersMenuUnchanged(t *testing.T) {
	store := newFakeStore()
	seedProfile(t, store, 42, "Mia")
	flow, _ := newTestFlow(store)

	r := flow.Toggle(context.Background(), 42, "toggle_bedtime_stories")

	if !menuHasLabel(r.Buttons, "😴 Sleep Reminders: ON") {
		t.Fatalf("expected settings untouched by unknown action, got %+v", r.Buttons)
	}
}

func TestToggleRequiresRegistration(t *testing.T) {
	flow, _ := newTestFlow(newFakeStore())

	r := flow.Toggle(context.Background(), 42, ActionToggleNotifications)

	if !strings.Contains(r.Text, "register first") {
		t.Fatalf("expected register-first message, got %q", r.Text)
	}
}

func TestChangeNameArmsModeForRegisteredUser(t *testing.T) {
	store := newFakeStore()
	seedProfile(t, store, 42, "Mia")
	flow, states := newTestFlow(store)

	r := flow.ChangeName(context.Background(), 42)

	if states.Current(42) != state.ModeAwaitingNameChange {
		t.Fatalf("expected awaiting name change mode, got %q", states.Current(42))
	}
	if !strings.Contains(r.Text, "enter your new name") {
		t.Fatalf("expected name prompt, got %q", r.Text)
	}
}

func TestChangeNameRequiresRegistration(t *testing.T) {
	flow, states := newTestFlow(newFakeStore())

	r := flow.ChangeName(context.Background(), 42)

	if states.InProgress(42) {
		t.Fatalf("expected no mode armed for unregistered user")
	}
	if !strings.Contains(r.Text, "register first") {
		t.Fatalf("expected register-first message, got %q", r.Text)
	}
}

func TestHandleNameUpdatesProfileAndConfirms(t *testing.T) {
	store := newFakeStore()
	seedProfile(t, store, 42, "Mia")
	flow, states := newTestFlow(store)

	flow.ChangeName(context.Background(), 42)
	replies := flow.HandleName(context.Background(), 42, "  Maria  ")

	if len(replies) != 2 {
		t.Fatalf("expected confirmation plus main menu, got %d replies", len(replies))
	}
	if !strings.Contains(replies[0].Text, "You're now known as Maria.") {
		t.Fatalf("unexpected confirmation: %q", replies[0].Text)
	}
	if !strings.Contains(replies[1].Text, "Welcome back, Maria!") {
		t.Fatalf("expected main menu with new name, got %q", replies[1].Text)
	}
	if !strings.Contains(replies[1].Buttons[0].URL, "custom_name=Maria") {
		t.Fatalf("expected handoff link with new name, got %q", replies[1].Buttons[0].URL)
	}
	if store.profiles[42].CustomName != "Maria" {
		t.Fatalf("expected stored name updated, got %q", store.profiles[42].CustomName)
	}
	if states.InProgress(42) {
		t.Fatalf("expected mode cleared after rename")
	}
}

func TestHandleNameRejectsInvalidInputAndKeepsModeArmed(t *testing.T) {
	store := newFakeStore()
	seedProfile(t, store, 42, "Mia")
	flow, states := newTestFlow(store)

	flow.ChangeName(context.Background(), 42)

	replies := flow.HandleName(context.Background(), 42, "")
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "valid name") {
		t.Fatalf("expected empty-name message, got %+v", replies)
	}

	replies = flow.HandleName(context.Background(), 42, strings.Repeat("a", 51))
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "too long") {
		t.Fatalf("expected too-long message, got %+v", replies)
	}

	if store.profiles[42].CustomName != "Mia" {
		t.Fatalf("expected stored name unchanged, got %q", store.profiles[42].CustomName)
	}
	if states.Current(42) != state.ModeAwaitingNameChange {
		t.Fatalf("expected mode to stay armed for a retry, got %q", states.Current(42))
	}
}

func TestHandleNameForVanishedProfileClearsMode(t *testing.T) {
	store := newFakeStore()
	seedProfile(t, store, 42, "Mia")
	store.updateNameErr = domain.ErrNotFound
	flow, states := newTestFlow(store)

	flow.ChangeName(context.Background(), 42)
	replies := flow.HandleName(context.Background(), 42, "Maria")

	if len(replies) != 1 || !strings.Contains(replies[0].Text, "register first") {
		t.Fatalf("expected register-first message, got %+v", replies)
	}
	if states.InProgress(42) {
		t.Fatalf("expected mode cleared when the profile is gone")
	}
}

func TestBackToMainShowsMainMenu(t *testing.T) {
	store := newFakeStore()
	seedProfile(t, store, 42, "Mia")
	flow, _ := newTestFlow(store)

	r := flow.BackToMain(context.Background(), 42)

	if !strings.Contains(r.Text, "Welcome back, Mia!") {
		t.Fatalf("expected main menu, got %q", r.Text)
	}
	if len(r.Buttons) != 2 || !strings.Contains(r.Buttons[0].URL, "telegram_user_id=42") {
		t.Fatalf("expected web app and settings buttons, got %+v", r.Buttons)
	}
}

func menuHasLabel(buttons []reply.Button, label string) bool {
	for _, b := range buttons {
		if b.Label == label {
			return true
		}
	}
	return false
}
