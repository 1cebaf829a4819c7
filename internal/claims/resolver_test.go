package claims

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/ledger"
	"github.com/scholarstack/scholarstack/backend/internal/store"
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

func newTestResolver(t *testing.T) (*Resolver, store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:claims_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&catalog.Entry{}, &users.Profile{}, &users.Follow{}, &users.Bookmark{}, &ledger.PointEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	backing, err := store.NewSQLStore(store.SQLConfig{Database: db, IDProvider: &sequenceIDProvider{}})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	resolver, err := NewResolver(ResolverConfig{Store: backing})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	return resolver, backing
}

func seedEntry(t *testing.T, backing store.Store, entryID, uploaderID string, credit int) {
	t.Helper()
	ctx := context.Background()
	if err := backing.SaveProfile(ctx, &users.Profile{UserID: uploaderID, DisplayName: uploaderID, Role: "student"}); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}
	entry := &catalog.Entry{
		EntryID:           entryID,
		SerialCode:        "NN-TESTAA",
		Title:             "Seeded entry",
		Subject:           "Math",
		TagsJSON:          "[]",
		UploaderID:        uploaderID,
		UploaderName:      uploaderID,
		ContributorsJSON:  fmt.Sprintf("[%q]", uploaderID),
		Fingerprint:       "fp-" + entryID,
		FileURL:           "https://files.example/" + entryID,
		FileType:          "application/pdf",
		QualityScore:      9,
		AIJSON:            "{}",
		Status:            catalog.StatusOriginal,
		UploadedAtSeconds: 100,
	}
	credits := []ledger.Credit{{UserID: uploaderID, Delta: credit, Reason: ledger.ReasonPublish}}
	if err := backing.PublishEntry(ctx, entry, credits); err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}
}

func TestResolveMarksEntryAndDebitsUploader(t *testing.T) {
	resolver, backing := newTestResolver(t)
	ctx := context.Background()
	seedEntry(t, backing, "entry-001", "user-1", 30)

	if err := resolver.Resolve(ctx, "entry-001", "user-3"); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}

	entry, err := backing.EntryByID(ctx, "entry-001")
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if entry.Status != catalog.StatusInfringing {
		t.Fatalf("expected infringing status, got %q", entry.Status)
	}
	profile, err := backing.Profile(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected profile error: %v", err)
	}
	if profile.Points != -20 {
		t.Fatalf("expected 30-50 = -20 points, got %d", profile.Points)
	}
	history, err := backing.PointHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected publish + takedown history rows, got %d", len(history))
	}
}

func TestResolveSelfClaimIsNoOp(t *testing.T) {
	resolver, backing := newTestResolver(t)
	ctx := context.Background()
	seedEntry(t, backing, "entry-001", "user-1", 30)

	err := resolver.Resolve(ctx, "entry-001", "user-1")
	if !errors.Is(err, ErrSelfClaim) {
		t.Fatalf("expected ErrSelfClaim, got %v", err)
	}

	entry, readErr := backing.EntryByID(ctx, "entry-001")
	if readErr != nil {
		t.Fatalf("unexpected read error: %v", readErr)
	}
	if entry.Status != catalog.StatusOriginal {
		t.Fatalf("self-claim must not change status, got %q", entry.Status)
	}
	profile, profileErr := backing.Profile(ctx, "user-1")
	if profileErr != nil {
		t.Fatalf("unexpected profile error: %v", profileErr)
	}
	if profile.Points != 30 {
		t.Fatalf("self-claim must not deduct points, got %d", profile.Points)
	}
}

func TestResolveRepeatClaimIsNoOp(t *testing.T) {
	resolver, backing := newTestResolver(t)
	ctx := context.Background()
	seedEntry(t, backing, "entry-001", "user-1", 30)

	if err := resolver.Resolve(ctx, "entry-001", "user-2"); err != nil {
		t.Fatalf("unexpected first claim error: %v", err)
	}
	err := resolver.Resolve(ctx, "entry-001", "user-3")
	if !errors.Is(err, ErrAlreadyInfringing) {
		t.Fatalf("expected ErrAlreadyInfringing, got %v", err)
	}

	profile, profileErr := backing.Profile(ctx, "user-1")
	if profileErr != nil {
		t.Fatalf("unexpected profile error: %v", profileErr)
	}
	if profile.Points != -20 {
		t.Fatalf("repeat claim must not debit again, got %d", profile.Points)
	}
}

func TestResolveMissingEntry(t *testing.T) {
	resolver, _ := newTestResolver(t)
	err := resolver.Resolve(context.Background(), "missing", "user-2")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

type failingStore struct {
	Store
	commitErr error
}

func (f *failingStore) MarkInfringing(_ context.Context, _ string, _ ledger.Credit) error {
	return f.commitErr
}

func TestResolveCommitFailureLeavesNoPartialState(t *testing.T) {
	_, backing := newTestResolver(t)
	ctx := context.Background()
	seedEntry(t, backing, "entry-001", "user-1", 30)

	commitErr := errors.New("disk full")
	resolver, err := NewResolver(ResolverConfig{Store: &failingStore{Store: backing, commitErr: commitErr}})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	resolveErr := resolver.Resolve(ctx, "entry-001", "user-2")
	if !errors.Is(resolveErr, commitErr) {
		t.Fatalf("expected commit error, got %v", resolveErr)
	}
	var serviceErr *ServiceError
	if !errors.As(resolveErr, &serviceErr) {
		t.Fatalf("expected service error, got %T", resolveErr)
	}
	if serviceErr.Code() != "claims.resolve.commit_failed" {
		t.Fatalf("unexpected error code: %s", serviceErr.Code())
	}

	entry, readErr := backing.EntryByID(ctx, "entry-001")
	if readErr != nil {
		t.Fatalf("unexpected read error: %v", readErr)
	}
	if entry.Status != catalog.StatusOriginal {
		t.Fatalf("failed commit must leave status untouched, got %q", entry.Status)
	}
	profile, profileErr := backing.Profile(ctx, "user-1")
	if profileErr != nil {
		t.Fatalf("unexpected profile error: %v", profileErr)
	}
	if profile.Points != 30 {
		t.Fatalf("failed commit must leave points untouched, got %d", profile.Points)
	}
}
