// Package store is the pluggable storage capability behind the
// catalog, profile and point-history data. Two implementations exist:
// the gorm/sqlite store used in production and an in-memory store for
// local/demo mode. The implementation is selected once at process
// start and injected; there is no ambient global state.
package store

import (
	"context"
	"errors"

	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/ledger"
	"github.com/scholarstack/scholarstack/backend/internal/users"
)

var (
	// ErrEntryNotFound indicates the referenced catalog entry does not exist.
	ErrEntryNotFound = errors.New("store: entry not found")
	// ErrProfileNotFound indicates the referenced user profile does not exist.
	ErrProfileNotFound = errors.New("store: profile not found")
	// ErrDuplicateFingerprint indicates a non-infringing entry with the
	// same fingerprint already exists. Raised by the publish-time
	// re-check inside the commit transaction.
	ErrDuplicateFingerprint = errors.New("store: fingerprint already cataloged")
	// ErrAlreadyInfringing indicates a takedown targeted an entry that
	// is already infringing. Treated as a benign no-op by callers.
	ErrAlreadyInfringing = errors.New("store: entry already infringing")
)

// Store is the storage capability consumed by the admission pipeline,
// the publish service, the claim resolver and the HTTP layer.
//
// PublishEntry and MarkInfringing are the two atomic units of the
// system: the entry mutation and its ledger deltas land together or
// not at all.
type Store interface {
	// PublishEntry inserts the entry and applies its credits in one
	// transaction. The fingerprint is re-checked against non-infringing
	// entries inside the transaction; a match fails the whole publish
	// with ErrDuplicateFingerprint. A missing profile for the primary
	// (publish-reason) credit aborts the transaction; co-author credits
	// for unknown profiles are skipped.
	PublishEntry(ctx context.Context, entry *catalog.Entry, credits []ledger.Credit) error

	// EntryByID returns the entry regardless of status, or
	// ErrEntryNotFound.
	EntryByID(ctx context.Context, entryID string) (*catalog.Entry, error)

	// EntryByFingerprint returns the first entry matching the
	// fingerprint with status != infringing, or (nil, nil) when no such
	// entry exists. Infringing entries never block a re-publish of the
	// same content.
	EntryByFingerprint(ctx context.Context, fp string) (*catalog.Entry, error)

	// ListEntries returns catalog listings, newest first, excluding
	// infringing entries.
	ListEntries(ctx context.Context) ([]catalog.Entry, error)

	// ListEntriesByUploader returns a user's non-infringing entries,
	// newest first.
	ListEntriesByUploader(ctx context.Context, uploaderID string) ([]catalog.Entry, error)

	// MarkInfringing flips the entry to infringing and applies the
	// uploader debit in one transaction. Returns ErrEntryNotFound or
	// ErrAlreadyInfringing without mutating anything.
	MarkInfringing(ctx context.Context, entryID string, debit ledger.Credit) error

	// Profile returns a user profile or ErrProfileNotFound.
	Profile(ctx context.Context, userID string) (*users.Profile, error)

	// SaveProfile creates or updates a profile record. Point balances
	// must not be mutated through this method.
	SaveProfile(ctx context.Context, profile *users.Profile) error

	// PointHistory returns the append-only point entries for a user,
	// newest first.
	PointHistory(ctx context.Context, userID string) ([]ledger.PointEntry, error)

	// SetFollow records or removes a follow edge and keeps the
	// follower/following counters consistent. Idempotent.
	SetFollow(ctx context.Context, followerID, targetID string, follow bool) error

	// SetBookmark records or removes a bookmark. Idempotent.
	SetBookmark(ctx context.Context, userID, entryID string, saved bool) error

	// BookmarkedEntries returns the user's bookmarked entries,
	// excluding any that have become infringing.
	BookmarkedEntries(ctx context.Context, userID string) ([]catalog.Entry, error)
}
