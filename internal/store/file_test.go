package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"baby_sleep_tracker_bot/internal/domain"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()

	hookLogger, _ := logtest.NewNullLogger()
	path := filepath.Join(t.TempDir(), "users.json")

	return NewFileStore(path, logrus.NewEntry(hookLogger))
}

func TestFileStoreRegisterGetRoundTrip(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	info := domain.PlatformInfo{UserID: 42, Username: "mia_m", FirstName: "Maria"}
	if err := s.Register(ctx, info, "Mia"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	profile, found, err := s.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !found {
		t.Fatalf("expected profile to be found after register")
	}
	if profile.CustomName != "Mia" {
		t.Fatalf("expected display name Mia, got %q", profile.CustomName)
	}
	if profile.Settings != domain.DefaultSettings() {
		t.Fatalf("expected default-true settings, got %+v", profile.Settings)
	}

	registered, err := s.IsRegistered(ctx, 42)
	if err != nil {
		t.Fatalf("IsRegistered returned error: %v", err)
	}
	if !registered {
		t.Fatalf("expected user to be registered")
	}
}

func TestFileStoreGetAbsentIsNotAnError(t *testing.T) {
	s := newTestFileStore(t)

	_, found, err := s.Get(context.Background(), 999)
	if err != nil {
		t.Fatalf("expected absence to be reported without error, got %v", err)
	}
	if found {
		t.Fatalf("expected profile to be absent")
	}
}

func TestFileStoreReRegisterPreservesSettings(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	info := domain.PlatformInfo{UserID: 42, FirstName: "Maria"}
	if err := s.Register(ctx, info, "Mia"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	off := false
	if err := s.UpdateSettings(ctx, 42, domain.SettingsPatch{SleepReminders: &off}); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}

	// A repeat /start must not wipe preferences.
	if err := s.Register(ctx, info, "Maria"); err != nil {
		t.Fatalf("second Register returned error: %v", err)
	}

	profile, _, err := s.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if profile.CustomName != "Maria" {
		t.Fatalf("expected display name replaced, got %q", profile.CustomName)
	}
	if profile.Settings.SleepReminders {
		t.Fatalf("expected sleep reminders to stay off after re-register")
	}
}

func TestFileStoreUpdateDisplayName(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.UpdateDisplayName(ctx, 1, "Mia"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	if err := s.Register(ctx, domain.PlatformInfo{UserID: 1, FirstName: "Maria"}, ""); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := s.UpdateDisplayName(ctx, 1, "Mia"); err != nil {
		t.Fatalf("UpdateDisplayName returned error: %v", err)
	}

	profile, _, _ := s.Get(ctx, 1)
	if profile.CustomName != "Mia" {
		t.Fatalf("expected updated name, got %q", profile.CustomName)
	}
}

func TestFileStoreUpdateSettingsMergesPartial(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Register(ctx, domain.PlatformInfo{UserID: 5, FirstName: "Mia"}, ""); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	off := false
	if err := s.UpdateSettings(ctx, 5, domain.SettingsPatch{NotificationsEnabled: &off}); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}

	profile, _, _ := s.Get(ctx, 5)
	if profile.Settings.NotificationsEnabled {
		t.Fatalf("expected notifications off")
	}
	if !profile.Settings.SleepReminders || !profile.Settings.WakeReminders {
		t.Fatalf("expected unspecified flags untouched, got %+v", profile.Settings)
	}

	// Empty patch is idempotent.
	before := profile.Settings
	if err := s.UpdateSettings(ctx, 5, domain.SettingsPatch{}); err != nil {
		t.Fatalf("empty patch returned error: %v", err)
	}
	profile, _, _ = s.Get(ctx, 5)
	if profile.Settings != before {
		t.Fatalf("expected settings unchanged by empty patch, got %+v", profile.Settings)
	}

	if err := s.UpdateSettings(ctx, 404, domain.SettingsPatch{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestFileStorePersistsAcrossReload(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	path := filepath.Join(t.TempDir(), "users.json")
	ctx := context.Background()

	first := NewFileStore(path, logrus.NewEntry(hookLogger))
	if err := first.Register(ctx, domain.PlatformInfo{UserID: 42, Username: "mia_m", FirstName: "Maria"}, "Mia"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	second := NewFileStore(path, logrus.NewEntry(hookLogger))
	profile, found, err := second.Get(ctx, 42)
	if err != nil || !found {
		t.Fatalf("expected reloaded store to find profile, found=%v err=%v", found, err)
	}
	if profile.CustomName != "Mia" {
		t.Fatalf("expected reloaded name Mia, got %q", profile.CustomName)
	}

	count, err := second.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected count 1 after reload, got %d err=%v", count, err)
	}
}

func TestFileStoreWritesDocumentedRecordShape(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	path := filepath.Join(t.TempDir(), "users.json")

	s := NewFileStore(path, logrus.NewEntry(hookLogger))
	if err := s.Register(context.Background(), domain.PlatformInfo{UserID: 42, Username: "mia_m", FirstName: "Maria"}, "Mia"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read store file: %v", err)
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("store file is not valid JSON: %v", err)
	}

	record, ok := raw["42"]
	if !ok {
		t.Fatalf("expected record keyed by stringified user id, got keys %v", raw)
	}

	for _, field := range []string{"telegram_id", "username", "first_name", "last_name", "custom_name", "settings", "registered"} {
		if _, ok := record[field]; !ok {
			t.Fatalf("expected field %q in record, got %v", field, record)
		}
	}

	if string(record["telegram_id"]) != "42" {
		t.Fatalf("expected telegram_id 42, got %s", record["telegram_id"])
	}
	if string(record["last_name"]) != "null" {
		t.Fatalf("expected absent last name to serialize as null, got %s", record["last_name"])
	}
	if string(record["registered"]) != "true" {
		t.Fatalf("expected registered true, got %s", record["registered"])
	}
}

func TestFileStoreFailedRegisterLeavesNoTrace(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()

	// A regular file where the store directory should be makes every write fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("could not seed blocking file: %v", err)
	}
	path := filepath.Join(blocker, "users.json")

	s := NewFileStore(path, logrus.NewEntry(hookLogger))
	ctx := context.Background()

	if err := s.Register(ctx, domain.PlatformInfo{UserID: 42, FirstName: "Maria"}, "Mia"); err == nil {
		t.Fatalf("expected register to fail when the store cannot be written")
	}

	registered, err := s.IsRegistered(ctx, 42)
	if err != nil {
		t.Fatalf("IsRegistered returned error: %v", err)
	}
	if registered {
		t.Fatalf("failed register must not leave the user registered in memory")
	}

	_, found, err := s.Get(ctx, 42)
	if err != nil || found {
		t.Fatalf("expected no profile after failed register, found=%v err=%v", found, err)
	}

	count, err := s.Count(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected empty store after failed register, got %d err=%v", count, err)
	}
}

func TestFileStoreFailedUpdateRollsBack(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	path := filepath.Join(t.TempDir(), "users.json")
	ctx := context.Background()

	s := NewFileStore(path, logrus.NewEntry(hookLogger))
	if err := s.Register(ctx, domain.PlatformInfo{UserID: 42, FirstName: "Maria"}, "Mia"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	// Swap the store file for a directory so the rename step fails.
	if err := os.Remove(path); err != nil {
		t.Fatalf("could not remove store file: %v", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("could not block store path: %v", err)
	}

	if err := s.UpdateDisplayName(ctx, 42, "Maria"); err == nil {
		t.Fatalf("expected rename update to fail")
	}
	profile, _, err := s.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if profile.CustomName != "Mia" {
		t.Fatalf("failed update must not change the in-memory name, got %q", profile.CustomName)
	}

	off := false
	if err := s.UpdateSettings(ctx, 42, domain.SettingsPatch{SleepReminders: &off}); err == nil {
		t.Fatalf("expected settings update to fail")
	}
	profile, _, _ = s.Get(ctx, 42)
	if !profile.Settings.SleepReminders {
		t.Fatalf("failed update must not change the in-memory settings, got %+v", profile.Settings)
	}
}

func TestFileStoreToleratesMalformedFile(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	path := filepath.Join(t.TempDir(), "users.json")

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("could not seed malformed file: %v", err)
	}

	s := NewFileStore(path, logrus.NewEntry(hookLogger))

	count, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected malformed file to read as empty, got %d users", count)
	}

	// The store must still accept new registrations afterwards.
	if err := s.Register(context.Background(), domain.PlatformInfo{UserID: 1, FirstName: "Mia"}, ""); err != nil {
		t.Fatalf("Register after malformed load returned error: %v", err)
	}
}
