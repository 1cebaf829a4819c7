package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/ledger"
	"github.com/scholarstack/scholarstack/backend/internal/users"
)

// MemoryStore implements Store entirely in process memory. It backs
// local/demo deployments and tests; mutations are serialized by a
// single mutex, which makes each publish/takedown trivially atomic.
type MemoryStore struct {
	mu         sync.Mutex
	clock      func() time.Time
	idProvider catalog.IDProvider

	entries   map[string]catalog.Entry
	profiles  map[string]users.Profile
	history   []ledger.PointEntry
	follows   map[string]map[string]time.Time
	bookmarks map[string]map[string]time.Time
}

// MemoryConfig describes the dependencies of the in-memory store.
type MemoryConfig struct {
	Clock      func() time.Time
	IDProvider catalog.IDProvider
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		clock:      clock,
		idProvider: cfg.IDProvider,
		entries:    make(map[string]catalog.Entry),
		profiles:   make(map[string]users.Profile),
		follows:    make(map[string]map[string]time.Time),
		bookmarks:  make(map[string]map[string]time.Time),
	}, nil
}

// PublishEntry inserts the entry and applies its credits under the
// store lock.
func (s *MemoryStore) PublishEntry(_ context.Context, entry *catalog.Entry, credits []ledger.Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.entries {
		if stored.Fingerprint == entry.Fingerprint && stored.Status != catalog.StatusInfringing {
			return fmt.Errorf("%w: %s", ErrDuplicateFingerprint, stored.EntryID)
		}
	}

	staged := make(map[string]users.Profile, len(credits))
	stagedHistory := make([]ledger.PointEntry, 0, len(credits))
	for _, credit := range credits {
		profile, ok := s.profiles[credit.UserID]
		if stagedProfile, alreadyStaged := staged[credit.UserID]; alreadyStaged {
			profile, ok = stagedProfile, true
		}
		if !ok {
			if credit.Reason == ledger.ReasonCoAuthor {
				continue
			}
			return fmt.Errorf("%w: %s", ErrProfileNotFound, credit.UserID)
		}
		profile.Points += credit.Delta
		staged[credit.UserID] = profile

		pointEntryID, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		stagedHistory = append(stagedHistory, ledger.NewPointEntry(pointEntryID, credit.UserID, entry.EntryID, credit.Delta, credit.Reason, s.clock()))
	}

	s.entries[entry.EntryID] = *entry
	for userID, profile := range staged {
		s.profiles[userID] = profile
	}
	s.history = append(s.history, stagedHistory...)
	return nil
}

// EntryByID returns the entry regardless of status.
func (s *MemoryStore) EntryByID(_ context.Context, entryID string) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	copied := entry
	return &copied, nil
}

// EntryByFingerprint implements the duplicate registry lookup.
func (s *MemoryStore) EntryByFingerprint(_ context.Context, fp string) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var match *catalog.Entry
	for _, entry := range s.entries {
		if entry.Fingerprint != fp || entry.Status == catalog.StatusInfringing {
			continue
		}
		if match == nil || entry.UploadedAtSeconds < match.UploadedAtSeconds {
			copied := entry
			match = &copied
		}
	}
	return match, nil
}

// ListEntries returns non-infringing entries, newest first.
func (s *MemoryStore) ListEntries(_ context.Context) ([]catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]catalog.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.Status == catalog.StatusInfringing {
			continue
		}
		entries = append(entries, entry)
	}
	sortByUploadDesc(entries)
	return entries, nil
}

// ListEntriesByUploader returns a user's non-infringing entries.
func (s *MemoryStore) ListEntriesByUploader(_ context.Context, uploaderID string) ([]catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]catalog.Entry, 0)
	for _, entry := range s.entries {
		if entry.UploaderID != uploaderID || entry.Status == catalog.StatusInfringing {
			continue
		}
		entries = append(entries, entry)
	}
	sortByUploadDesc(entries)
	return entries, nil
}

// MarkInfringing flips the entry status and debits the uploader under
// the store lock.
func (s *MemoryStore) MarkInfringing(_ context.Context, entryID string, debit ledger.Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if entry.Status == catalog.StatusInfringing {
		return ErrAlreadyInfringing
	}
	profile, ok := s.profiles[debit.UserID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, debit.UserID)
	}
	pointEntryID, err := s.idProvider.NewID()
	if err != nil {
		return err
	}

	entry.Status = catalog.StatusInfringing
	s.entries[entryID] = entry
	profile.Points += debit.Delta
	s.profiles[debit.UserID] = profile
	s.history = append(s.history, ledger.NewPointEntry(pointEntryID, debit.UserID, entryID, debit.Delta, debit.Reason, s.clock()))
	return nil
}

// Profile returns a user profile.
func (s *MemoryStore) Profile(_ context.Context, userID string) (*users.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	copied := profile
	return &copied, nil
}

// SaveProfile upserts identity fields preserving the point balance and
// counters of an existing record.
func (s *MemoryStore) SaveProfile(_ context.Context, profile *users.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.profiles[profile.UserID]
	if !ok {
		s.profiles[profile.UserID] = *profile
		return nil
	}
	stored.Email = profile.Email
	stored.DisplayName = profile.DisplayName
	stored.Role = profile.Role
	s.profiles[profile.UserID] = stored
	return nil
}

// PointHistory returns the append-only ledger rows for a user, newest
// first.
func (s *MemoryStore) PointHistory(_ context.Context, userID string) ([]ledger.PointEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]ledger.PointEntry, 0)
	for _, record := range s.history {
		if record.UserID == userID {
			history = append(history, record)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].RecordedAtSeconds > history[j].RecordedAtSeconds
	})
	return history, nil
}

// SetFollow records or removes a follow edge, keeping counters in step.
func (s *MemoryStore) SetFollow(_ context.Context, followerID, targetID string, follow bool) error {
	if followerID == targetID {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	edges, ok := s.follows[followerID]
	if !ok {
		edges = make(map[string]time.Time)
		s.follows[followerID] = edges
	}
	_, exists := edges[targetID]
	if follow == exists {
		return nil
	}

	delta := 1
	if follow {
		edges[targetID] = s.clock()
	} else {
		delta = -1
		delete(edges, targetID)
	}
	if target, ok := s.profiles[targetID]; ok {
		target.FollowersCount += delta
		s.profiles[targetID] = target
	}
	if follower, ok := s.profiles[followerID]; ok {
		follower.FollowingCount += delta
		s.profiles[followerID] = follower
	}
	return nil
}

// SetBookmark records or removes a bookmark.
func (s *MemoryStore) SetBookmark(_ context.Context, userID, entryID string, saved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marks, ok := s.bookmarks[userID]
	if !ok {
		marks = make(map[string]time.Time)
		s.bookmarks[userID] = marks
	}
	if saved {
		if _, exists := marks[entryID]; !exists {
			marks[entryID] = s.clock()
		}
		return nil
	}
	delete(marks, entryID)
	return nil
}

// BookmarkedEntries returns a user's bookmarked, non-infringing entries.
func (s *MemoryStore) BookmarkedEntries(_ context.Context, userID string) ([]catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]catalog.Entry, 0)
	for entryID := range s.bookmarks[userID] {
		entry, ok := s.entries[entryID]
		if !ok || entry.Status == catalog.StatusInfringing {
			continue
		}
		entries = append(entries, entry)
	}
	sortByUploadDesc(entries)
	return entries, nil
}

func sortByUploadDesc(entries []catalog.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UploadedAtSeconds > entries[j].UploadedAtSeconds
	})
}
