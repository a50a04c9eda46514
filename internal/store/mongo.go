package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"baby_sleep_tracker_bot/internal/domain"
	"baby_sleep_tracker_bot/internal/logging"
)

// profileCollection captures the collection operations the Mongo profile
// store needs, so tests can fake it without a live deployment.
type profileCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// profileDoc is the stored document shape: the profile fields inline plus
// document timestamps. Existence of a document means the user is registered;
// there is no separate flag in this backend.
type profileDoc struct {
	domain.UserProfile `bson:",inline"`
	CreatedAt          time.Time `bson:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

// MongoStore implements domain.ProfileStore on a MongoDB collection.
type MongoStore struct {
	profiles profileCollection
	logger   *logrus.Entry
}

// NewMongoStore constructs a MongoStore over the provided profiles collection.
func NewMongoStore(profiles profileCollection, logger *logrus.Entry) *MongoStore {
	if logger == nil {
		logger = logging.Logger()
	}

	return &MongoStore{
		profiles: profiles,
		logger:   logger,
	}
}

// Register upserts the profile document. Identity fields and the display name
// are replaced on every call; settings and created_at are written only on
// insert, so re-registration preserves the user's existing preferences.
func (s *MongoStore) Register(ctx context.Context, info domain.PlatformInfo, requestedName string) error {
	if s == nil || s.profiles == nil {
		return errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if info.UserID == 0 {
		return errors.New("user id is required")
	}

	profile := domain.NewProfile(info, requestedName)
	now := time.Now().UTC().Truncate(time.Millisecond)

	update := bson.M{
		"$set": bson.M{
			"username":    profile.Username,
			"first_name":  profile.FirstName,
			"last_name":   profile.LastName,
			"custom_name": profile.CustomName,
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"telegram_user_id": info.UserID,
			"settings":         profile.Settings,
			"created_at":       now,
		},
	}

	result, err := s.profiles.UpdateOne(ctx,
		bson.M{"telegram_user_id": info.UserID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("register profile: %w", err)
	}

	if result != nil && result.UpsertedCount > 0 {
		s.logger.WithFields(logging.Fields{
			"event":   "profile_registered",
			"user_id": info.UserID,
		}).Info("registered new profile")
	}

	return nil
}

// Get fetches a profile by Telegram user id. Absence is reported via the
// boolean, never as an error.
func (s *MongoStore) Get(ctx context.Context, userID int64) (domain.UserProfile, bool, error) {
	if s == nil || s.profiles == nil {
		return domain.UserProfile{}, false, errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return domain.UserProfile{}, false, errors.New("context is required")
	}

	result := s.profiles.FindOne(ctx, bson.M{"telegram_user_id": userID})
	if result == nil {
		return domain.UserProfile{}, false, errors.New("find profile returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.UserProfile{}, false, nil
		}
		return domain.UserProfile{}, false, fmt.Errorf("find profile: %w", err)
	}

	var doc profileDoc
	if err := result.Decode(&doc); err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("decode profile: %w", err)
	}

	return doc.UserProfile, true, nil
}

// IsRegistered reports whether a profile document exists for the user.
func (s *MongoStore) IsRegistered(ctx context.Context, userID int64) (bool, error) {
	if s == nil || s.profiles == nil {
		return false, errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	count, err := s.profiles.CountDocuments(ctx, bson.M{"telegram_user_id": userID})
	if err != nil {
		return false, fmt.Errorf("count profile: %w", err)
	}

	return count > 0, nil
}

// UpdateDisplayName replaces the stored display name in place.
func (s *MongoStore) UpdateDisplayName(ctx context.Context, userID int64, name string) error {
	if s == nil || s.profiles == nil {
		return errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	result, err := s.profiles.UpdateOne(ctx,
		bson.M{"telegram_user_id": userID},
		bson.M{"$set": bson.M{"custom_name": name, "updated_at": now}},
	)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	if result == nil || result.MatchedCount == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// UpdateSettings merges the patch into the stored settings using dotted field
// paths, so flags absent from the patch are untouched.
func (s *MongoStore) UpdateSettings(ctx context.Context, userID int64, patch domain.SettingsPatch) error {
	if s == nil || s.profiles == nil {
		return errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	set := bson.M{"updated_at": now}
	if patch.NotificationsEnabled != nil {
		set["settings.notifications_enabled"] = *patch.NotificationsEnabled
	}
	if patch.SleepReminders != nil {
		set["settings.sleep_reminders"] = *patch.SleepReminders
	}
	if patch.WakeReminders != nil {
		set["settings.wake_reminders"] = *patch.WakeReminders
	}

	result, err := s.profiles.UpdateOne(ctx,
		bson.M{"telegram_user_id": userID},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if result == nil || result.MatchedCount == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Count returns the number of stored profiles.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.profiles == nil {
		return 0, errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := s.profiles.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}

	return count, nil
}
