package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/ledger"
	"github.com/scholarstack/scholarstack/backend/internal/users"
	"gorm.io/gorm"
)

type sequenceIDProvider struct {
	next int
}

func (g *sequenceIDProvider) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

var testClock = func() time.Time { return time.Unix(1700000600, 0).UTC() }

func newSQLTestStore(t *testing.T) Store {
	t.Helper()
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&catalog.Entry{}, &users.Profile{}, &users.Follow{}, &users.Bookmark{}, &ledger.PointEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	sqlStore, err := NewSQLStore(SQLConfig{Database: db, Clock: testClock, IDProvider: &sequenceIDProvider{}})
	if err != nil {
		t.Fatalf("failed to build sql store: %v", err)
	}
	return sqlStore
}

func newMemoryTestStore(t *testing.T) Store {
	t.Helper()
	memStore, err := NewMemoryStore(MemoryConfig{Clock: testClock, IDProvider: &sequenceIDProvider{}})
	if err != nil {
		t.Fatalf("failed to build memory store: %v", err)
	}
	return memStore
}

func forEachStore(t *testing.T, run func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("sql", func(t *testing.T) { run(t, newSQLTestStore(t)) })
	t.Run("memory", func(t *testing.T) { run(t, newMemoryTestStore(t)) })
}

func seedProfile(t *testing.T, s Store, userID string, points int) {
	t.Helper()
	profile := &users.Profile{UserID: userID, DisplayName: userID, Role: "student", Points: points}
	if err := s.SaveProfile(context.Background(), profile); err != nil {
		t.Fatalf("failed to seed profile %s: %v", userID, err)
	}
}

func testEntry(entryID, uploaderID, fp string, uploadedAt int64) *catalog.Entry {
	return &catalog.Entry{
		EntryID:           entryID,
		SerialCode:        "NN-ABC" + entryID[len(entryID)-3:],
		Title:             "Entry " + entryID,
		Subject:           "Math",
		TagsJSON:          "[]",
		UploaderID:        uploaderID,
		UploaderName:      "Uploader " + uploaderID,
		ContributorsJSON:  fmt.Sprintf("[%q]", uploaderID),
		Fingerprint:       fp,
		FileURL:           "https://files.example/" + entryID,
		FileType:          "image/png",
		QualityScore:      9,
		AIJSON:            "{}",
		Status:            catalog.StatusOriginal,
		UploadedAtSeconds: uploadedAt,
	}
}

func publishCredit(userID string, delta int) ledger.Credit {
	return ledger.Credit{UserID: userID, Delta: delta, Reason: ledger.ReasonPublish}
}

func TestPublishEntryCreditsUploaderAtomically(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)

		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), []ledger.Credit{publishCredit("user-1", 30)}); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}

		profile, err := s.Profile(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if profile.Points != 30 {
			t.Fatalf("expected 30 points, got %d", profile.Points)
		}
		history, err := s.PointHistory(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected history error: %v", err)
		}
		if len(history) != 1 || history[0].Delta != 30 || history[0].Reason != ledger.ReasonPublish {
			t.Fatalf("unexpected point history: %+v", history)
		}
	})
}

func TestPublishEntryRejectsDuplicateFingerprint(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)
		seedProfile(t, s, "user-2", 0)

		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), []ledger.Credit{publishCredit("user-1", 10)}); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}
		err := s.PublishEntry(ctx, testEntry("entry-002", "user-2", "f1", 200), []ledger.Credit{publishCredit("user-2", 10)})
		if !errors.Is(err, ErrDuplicateFingerprint) {
			t.Fatalf("expected ErrDuplicateFingerprint, got %v", err)
		}

		// Rejection must not leave partial state behind.
		if _, err := s.EntryByID(ctx, "entry-002"); !errors.Is(err, ErrEntryNotFound) {
			t.Fatalf("duplicate entry must not be persisted: %v", err)
		}
		profile, err := s.Profile(ctx, "user-2")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if profile.Points != 0 {
			t.Fatalf("no credit may land on a rejected publish, got %d points", profile.Points)
		}
	})
}

func TestPublishEntryMissingUploaderProfileRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		err := s.PublishEntry(ctx, testEntry("entry-001", "ghost", "f1", 100), []ledger.Credit{publishCredit("ghost", 10)})
		if !errors.Is(err, ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
		if _, err := s.EntryByID(ctx, "entry-001"); !errors.Is(err, ErrEntryNotFound) {
			t.Fatalf("entry must not persist when the credit fails: %v", err)
		}
	})
}

func TestPublishEntrySkipsUnknownCoAuthors(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)

		credits := []ledger.Credit{
			publishCredit("user-1", 10),
			{UserID: "ghost", Delta: 5, Reason: ledger.ReasonCoAuthor},
		}
		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), credits); err != nil {
			t.Fatalf("unknown co-author must not fail the publish: %v", err)
		}
		profile, err := s.Profile(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if profile.Points != 10 {
			t.Fatalf("expected 10 points, got %d", profile.Points)
		}
	})
}

func TestEntryByFingerprintExcludesInfringing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)

		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), []ledger.Credit{publishCredit("user-1", 10)}); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}

		match, err := s.EntryByFingerprint(ctx, "f1")
		if err != nil {
			t.Fatalf("unexpected lookup error: %v", err)
		}
		if match == nil || match.EntryID != "entry-001" {
			t.Fatalf("expected entry-001 match, got %+v", match)
		}

		if err := s.MarkInfringing(ctx, "entry-001", ledger.Credit{UserID: "user-1", Delta: -50, Reason: ledger.ReasonTakedown}); err != nil {
			t.Fatalf("unexpected takedown error: %v", err)
		}

		match, err = s.EntryByFingerprint(ctx, "f1")
		if err != nil {
			t.Fatalf("unexpected lookup error: %v", err)
		}
		if match != nil {
			t.Fatalf("infringing entry must not match duplicate lookups, got %+v", match)
		}
	})
}

func TestMarkInfringingDebitsUploaderAndHidesEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 30)

		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), nil); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}
		if err := s.MarkInfringing(ctx, "entry-001", ledger.Credit{UserID: "user-1", Delta: -50, Reason: ledger.ReasonTakedown}); err != nil {
			t.Fatalf("unexpected takedown error: %v", err)
		}

		profile, err := s.Profile(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if profile.Points != -20 {
			t.Fatalf("expected balance -20 (no floor), got %d", profile.Points)
		}

		entries, err := s.ListEntries(ctx)
		if err != nil {
			t.Fatalf("unexpected list error: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("infringing entries must not appear in listings, got %d", len(entries))
		}

		// The record itself survives for direct reads.
		entry, err := s.EntryByID(ctx, "entry-001")
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		if entry.Status != catalog.StatusInfringing {
			t.Fatalf("expected infringing status, got %q", entry.Status)
		}
	})
}

func TestMarkInfringingIsTerminal(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)
		debit := ledger.Credit{UserID: "user-1", Delta: -50, Reason: ledger.ReasonTakedown}

		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), nil); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}
		if err := s.MarkInfringing(ctx, "entry-001", debit); err != nil {
			t.Fatalf("unexpected takedown error: %v", err)
		}
		if err := s.MarkInfringing(ctx, "entry-001", debit); !errors.Is(err, ErrAlreadyInfringing) {
			t.Fatalf("expected ErrAlreadyInfringing, got %v", err)
		}

		// The repeat attempt must not debit again.
		profile, err := s.Profile(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if profile.Points != -50 {
			t.Fatalf("expected single -50 debit, got %d", profile.Points)
		}
	})
}

func TestMarkInfringingUnknownEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		err := s.MarkInfringing(context.Background(), "missing", ledger.Credit{UserID: "user-1", Delta: -50, Reason: ledger.ReasonTakedown})
		if !errors.Is(err, ErrEntryNotFound) {
			t.Fatalf("expected ErrEntryNotFound, got %v", err)
		}
	})
}

func TestRepublishAfterTakedownSucceeds(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)
		seedProfile(t, s, "user-2", 0)

		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), []ledger.Credit{publishCredit("user-1", 30)}); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}
		if err := s.MarkInfringing(ctx, "entry-001", ledger.Credit{UserID: "user-1", Delta: -50, Reason: ledger.ReasonTakedown}); err != nil {
			t.Fatalf("unexpected takedown error: %v", err)
		}

		// The rightful owner republishes the same content.
		if err := s.PublishEntry(ctx, testEntry("entry-002", "user-2", "f1", 200), []ledger.Credit{publishCredit("user-2", 30)}); err != nil {
			t.Fatalf("takedown must unblock the fingerprint: %v", err)
		}
	})
}

func TestSaveProfilePreservesPointBalance(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)
		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), []ledger.Credit{publishCredit("user-1", 30)}); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}

		if err := s.SaveProfile(ctx, &users.Profile{UserID: "user-1", DisplayName: "Renamed", Role: "student"}); err != nil {
			t.Fatalf("unexpected save error: %v", err)
		}
		profile, err := s.Profile(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if profile.Points != 30 {
			t.Fatalf("profile save must not clobber points, got %d", profile.Points)
		}
		if profile.DisplayName != "Renamed" {
			t.Fatalf("expected updated display name, got %q", profile.DisplayName)
		}
	})
}

func TestSetFollowMaintainsCounters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)
		seedProfile(t, s, "user-2", 0)

		if err := s.SetFollow(ctx, "user-1", "user-2", true); err != nil {
			t.Fatalf("unexpected follow error: %v", err)
		}
		// Idempotent repeat.
		if err := s.SetFollow(ctx, "user-1", "user-2", true); err != nil {
			t.Fatalf("unexpected repeat follow error: %v", err)
		}

		target, err := s.Profile(ctx, "user-2")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if target.FollowersCount != 1 {
			t.Fatalf("expected 1 follower, got %d", target.FollowersCount)
		}
		if target.Points != 0 {
			t.Fatalf("following must not grant points, got %d", target.Points)
		}
		follower, err := s.Profile(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if follower.FollowingCount != 1 {
			t.Fatalf("expected following count 1, got %d", follower.FollowingCount)
		}

		if err := s.SetFollow(ctx, "user-1", "user-2", false); err != nil {
			t.Fatalf("unexpected unfollow error: %v", err)
		}
		target, err = s.Profile(ctx, "user-2")
		if err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
		if target.FollowersCount != 0 {
			t.Fatalf("expected 0 followers after unfollow, got %d", target.FollowersCount)
		}
	})
}

func TestBookmarksExcludeInfringingEntries(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedProfile(t, s, "user-1", 0)
		seedProfile(t, s, "user-2", 0)

		if err := s.PublishEntry(ctx, testEntry("entry-001", "user-1", "f1", 100), nil); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}
		if err := s.SetBookmark(ctx, "user-2", "entry-001", true); err != nil {
			t.Fatalf("unexpected bookmark error: %v", err)
		}

		marked, err := s.BookmarkedEntries(ctx, "user-2")
		if err != nil {
			t.Fatalf("unexpected bookmarks error: %v", err)
		}
		if len(marked) != 1 {
			t.Fatalf("expected 1 bookmarked entry, got %d", len(marked))
		}

		if err := s.MarkInfringing(ctx, "entry-001", ledger.Credit{UserID: "user-1", Delta: -50, Reason: ledger.ReasonTakedown}); err != nil {
			t.Fatalf("unexpected takedown error: %v", err)
		}
		marked, err = s.BookmarkedEntries(ctx, "user-2")
		if err != nil {
			t.Fatalf("unexpected bookmarks error: %v", err)
		}
		if len(marked) != 0 {
			t.Fatalf("infringing entries must vanish from bookmarks, got %d", len(marked))
		}
	})
}
