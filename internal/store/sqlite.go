package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/ledger"
	"github.com/scholarstack/scholarstack/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// SQLConfig describes the dependencies of the gorm-backed store.
type SQLConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider catalog.IDProvider
	Logger     *zap.Logger
}

// SQLStore implements Store over gorm/sqlite.
type SQLStore struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider catalog.IDProvider
	logger     *zap.Logger
}

// NewSQLStore constructs the gorm-backed store.
func NewSQLStore(cfg SQLConfig) (*SQLStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// PublishEntry inserts the entry and applies its credits atomically.
func (s *SQLStore) PublishEntry(ctx context.Context, entry *catalog.Entry, credits []ledger.Credit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing catalog.Entry
		err := tx.
			Where("fingerprint = ? AND status <> ?", entry.Fingerprint, catalog.StatusInfringing).
			Take(&existing).Error
		if err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateFingerprint, existing.EntryID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return s.applyCredits(tx, entry.EntryID, credits)
	})
}

func (s *SQLStore) applyCredits(tx *gorm.DB, catalogEntryID string, credits []ledger.Credit) error {
	for _, credit := range credits {
		var profile users.Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", credit.UserID).
			Take(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if credit.Reason == ledger.ReasonCoAuthor {
				s.logger.Warn("skipping credit for unknown co-author", zap.String("user_id", credit.UserID))
				continue
			}
			return fmt.Errorf("%w: %s", ErrProfileNotFound, credit.UserID)
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&users.Profile{}).
			Where("user_id = ?", credit.UserID).
			Update("points", gorm.Expr("points + ?", credit.Delta)).Error; err != nil {
			return err
		}

		pointEntryID, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		record := ledger.NewPointEntry(pointEntryID, credit.UserID, catalogEntryID, credit.Delta, credit.Reason, s.clock())
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

// EntryByID returns the entry regardless of status.
func (s *SQLStore) EntryByID(ctx context.Context, entryID string) (*catalog.Entry, error) {
	var entry catalog.Entry
	err := s.db.WithContext(ctx).Where("entry_id = ?", entryID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// EntryByFingerprint implements the duplicate registry lookup.
func (s *SQLStore) EntryByFingerprint(ctx context.Context, fp string) (*catalog.Entry, error) {
	var entry catalog.Entry
	err := s.db.WithContext(ctx).
		Where("fingerprint = ? AND status <> ?", fp, catalog.StatusInfringing).
		Order("uploaded_at_s ASC").
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListEntries returns non-infringing entries, newest first.
func (s *SQLStore) ListEntries(ctx context.Context) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	if err := s.db.WithContext(ctx).
		Where("status <> ?", catalog.StatusInfringing).
		Order("uploaded_at_s DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListEntriesByUploader returns a user's non-infringing entries.
func (s *SQLStore) ListEntriesByUploader(ctx context.Context, uploaderID string) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	if err := s.db.WithContext(ctx).
		Where("uploader_id = ? AND status <> ?", uploaderID, catalog.StatusInfringing).
		Order("uploaded_at_s DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkInfringing flips the entry status and debits the uploader in one
// transaction.
func (s *SQLStore) MarkInfringing(ctx context.Context, entryID string, debit ledger.Credit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry catalog.Entry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("entry_id = ?", entryID).
			Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
		}
		if err != nil {
			return err
		}
		if entry.Status == catalog.StatusInfringing {
			return ErrAlreadyInfringing
		}

		if err := tx.Model(&catalog.Entry{}).
			Where("entry_id = ?", entryID).
			Update("status", catalog.StatusInfringing).Error; err != nil {
			return err
		}
		return s.applyCredits(tx, entryID, []ledger.Credit{debit})
	})
}

// Profile returns a user profile.
func (s *SQLStore) Profile(ctx context.Context, userID string) (*users.Profile, error) {
	var profile users.Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SaveProfile upserts identity fields; the point balance column is
// never written through this path.
func (s *SQLStore) SaveProfile(ctx context.Context, profile *users.Profile) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "display_name", "role",
		}),
	}).Create(profile).Error
}

// PointHistory returns the append-only ledger rows for a user.
func (s *SQLStore) PointHistory(ctx context.Context, userID string) ([]ledger.PointEntry, error) {
	var history []ledger.PointEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("recorded_at_s DESC").
		Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

// SetFollow records or removes a follow edge, keeping counters in step.
func (s *SQLStore) SetFollow(ctx context.Context, followerID, targetID string, follow bool) error {
	if followerID == targetID {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var edge users.Follow
		err := tx.Where("follower_id = ? AND target_id = ?", followerID, targetID).Take(&edge).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if follow == exists {
			return nil
		}

		delta := 1
		if follow {
			if err := tx.Create(&users.Follow{FollowerID: followerID, TargetID: targetID}).Error; err != nil {
				return err
			}
		} else {
			delta = -1
			if err := tx.Where("follower_id = ? AND target_id = ?", followerID, targetID).
				Delete(&users.Follow{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&users.Profile{}).
			Where("user_id = ?", targetID).
			Update("followers_count", gorm.Expr("followers_count + ?", delta)).Error; err != nil {
			return err
		}
		return tx.Model(&users.Profile{}).
			Where("user_id = ?", followerID).
			Update("following_count", gorm.Expr("following_count + ?", delta)).Error
	})
}

// SetBookmark records or removes a bookmark.
func (s *SQLStore) SetBookmark(ctx context.Context, userID, entryID string, saved bool) error {
	if saved {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
			Create(&users.Bookmark{UserID: userID, EntryID: entryID}).Error
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND entry_id = ?", userID, entryID).
		Delete(&users.Bookmark{}).Error
}

// BookmarkedEntries returns a user's bookmarked, non-infringing entries.
func (s *SQLStore) BookmarkedEntries(ctx context.Context, userID string) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	if err := s.db.WithContext(ctx).
		Joins("JOIN user_bookmarks ON user_bookmarks.entry_id = catalog_entries.entry_id").
		Where("user_bookmarks.user_id = ? AND catalog_entries.status <> ?", userID, catalog.StatusInfringing).
		Order("user_bookmarks.created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
