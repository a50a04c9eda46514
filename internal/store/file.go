package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"baby_sleep_tracker_bot/internal/domain"
	"baby_sleep_tracker_bot/internal/logging"
)

// fileRecord is the on-disk record shape: the profile fields inline plus the
// explicit registered flag this backend carries.
type fileRecord struct {
	domain.UserProfile
	Registered bool `json:"registered"`
}

// FileStore implements domain.ProfileStore on a single local JSON file keyed
// by stringified Telegram user id. Every mutation rewrites the file through a
// temp file and rename. A missing or malformed file reads as "no users yet"
// rather than a fatal condition.
type FileStore struct {
	path   string
	logger *logrus.Entry

	mu    sync.Mutex
	users map[int64]fileRecord
}

// NewFileStore loads the store from path, tolerating a missing or corrupt
// file.
func NewFileStore(path string, logger *logrus.Entry) *FileStore {
	if logger == nil {
		logger = logging.Logger()
	}

	s := &FileStore{
		path:   path,
		logger: logger,
	}
	s.users = s.load()

	return s
}

func (s *FileStore) load() map[int64]fileRecord {
	users := make(map[int64]fileRecord)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WithFields(logging.Fields{
				"event": "file_store_read_error",
				"path":  s.path,
			}).WithError(err).Warn("could not read user store, starting empty")
		}
		return users
	}

	raw := make(map[string]fileRecord)
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.WithFields(logging.Fields{
			"event": "file_store_malformed",
			"path":  s.path,
		}).WithError(err).Warn("user store is malformed, starting empty")
		return users
	}

	for key, record := range raw {
		id, parseErr := strconv.ParseInt(key, 10, 64)
		if parseErr != nil {
			s.logger.WithFields(logging.Fields{
				"event": "file_store_malformed",
				"path":  s.path,
				"key":   key,
			}).Warn("user store has a non-numeric key, starting empty")
			return make(map[int64]fileRecord)
		}
		users[id] = record
	}

	return users
}

// persistLocked writes the full map to disk. Callers must hold s.mu.
func (s *FileStore) persistLocked() error {
	raw := make(map[string]fileRecord, len(s.users))
	for id, record := range s.users {
		raw[strconv.FormatInt(id, 10)] = record
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "users-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write user store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace user store: %w", err)
	}

	return nil
}

// commitLocked stages a record, persists the full map, and rolls the map back
// when the write fails, so memory never claims state the disk does not hold.
// Callers must hold s.mu.
func (s *FileStore) commitLocked(userID int64, record fileRecord) error {
	previous, existed := s.users[userID]
	s.users[userID] = record

	if err := s.persistLocked(); err != nil {
		if existed {
			s.users[userID] = previous
		} else {
			delete(s.users, userID)
		}
		return err
	}

	return nil
}

// Register creates or overwrites the record for info.UserID. Identity fields
// and the display name are replaced; existing settings are preserved so a
// repeat /start does not wipe the user's preferences.
func (s *FileStore) Register(ctx context.Context, info domain.PlatformInfo, requestedName string) error {
	if s == nil {
		return errors.New("file store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if info.UserID == 0 {
		return errors.New("user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile := domain.NewProfile(info, requestedName)
	if existing, ok := s.users[info.UserID]; ok {
		profile.Settings = existing.Settings
	}

	if err := s.commitLocked(info.UserID, fileRecord{UserProfile: profile, Registered: true}); err != nil {
		return err
	}

	s.logger.WithFields(logging.Fields{
		"event":   "profile_registered",
		"user_id": info.UserID,
	}).Info("registered profile in file store")

	return nil
}

// Get fetches a profile. Absence is reported via the boolean, never as an
// error.
func (s *FileStore) Get(ctx context.Context, userID int64) (domain.UserProfile, bool, error) {
	if s == nil {
		return domain.UserProfile{}, false, errors.New("file store is not initialized")
	}
	if ctx == nil {
		return domain.UserProfile{}, false, errors.New("context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.users[userID]
	if !ok {
		return domain.UserProfile{}, false, nil
	}

	return record.UserProfile, true, nil
}

// IsRegistered reports whether a record exists and carries the registered
// flag. Records written by this code always set the flag, but hand-edited
// files stay honest.
func (s *FileStore) IsRegistered(ctx context.Context, userID int64) (bool, error) {
	if s == nil {
		return false, errors.New("file store is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.users[userID]
	return ok && record.Registered, nil
}

// UpdateDisplayName replaces the stored display name in place.
func (s *FileStore) UpdateDisplayName(ctx context.Context, userID int64, name string) error {
	if s == nil {
		return errors.New("file store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}

	record.CustomName = name

	return s.commitLocked(userID, record)
}

// UpdateSettings merges the patch into the stored settings, leaving flags
// absent from the patch unchanged.
func (s *FileStore) UpdateSettings(ctx context.Context, userID int64, patch domain.SettingsPatch) error {
	if s == nil {
		return errors.New("file store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}

	record.Settings = patch.Apply(record.Settings)

	return s.commitLocked(userID, record)
}

// Count returns the number of stored profiles.
func (s *FileStore) Count(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errors.New("file store is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.users)), nil
}

// Ping verifies the store directory is usable, for health probes.
func (s *FileStore) Ping(ctx context.Context) error {
	if s == nil {
		return errors.New("file store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return os.MkdirAll(filepath.Dir(s.path), 0o755)
}
