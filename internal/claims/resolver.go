// Package claims implements the copyright takedown flow: an
// authenticated non-owner marks a catalog entry infringing, which
// debits the original uploader atomically with the status flip.
package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/ledger"
	"github.com/scholarstack/scholarstack/backend/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("claims: store is required")

	// ErrSelfClaim indicates a user attempted to claim their own entry.
	// Benign no-op: no status change, no point deduction.
	ErrSelfClaim = errors.New("claims: cannot claim own entry")
	// ErrAlreadyInfringing indicates the target entry was taken down
	// already. Benign no-op; takedowns are idempotent.
	ErrAlreadyInfringing = errors.New("claims: entry already infringing")
	// ErrEntryNotFound indicates the claim targeted a missing entry.
	ErrEntryNotFound = errors.New("claims: entry not found")
)

// ServiceError carries an operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code exposes the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const opResolve = "claims.resolve"

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Store is the storage surface the resolver needs: an entry read plus
// the atomic flip-and-debit commit.
type Store interface {
	EntryByID(ctx context.Context, entryID string) (*catalog.Entry, error)
	MarkInfringing(ctx context.Context, entryID string, debit ledger.Credit) error
}

// ResolverConfig describes resolver dependencies.
type ResolverConfig struct {
	Store  Store
	Logger *zap.Logger
}

// Resolver handles copyright claims against catalog entries.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver constructs the claim resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: cfg.Store, logger: logger}, nil
}

// Resolve marks the entry infringing and debits its uploader. The
// transition is irreversible: there is no un-claim. If the commit
// fails, neither the status flip nor the debit becomes visible.
func (r *Resolver) Resolve(ctx context.Context, entryID, claimantID string) error {
	entry, err := r.store.EntryByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
		}
		return err
	}
	if entry.UploaderID == claimantID {
		return ErrSelfClaim
	}
	if entry.Status == catalog.StatusInfringing {
		return ErrAlreadyInfringing
	}

	debit := ledger.Credit{
		UserID: entry.UploaderID,
		Delta:  ledger.TakedownDebit(),
		Reason: ledger.ReasonTakedown,
	}
	if err := r.store.MarkInfringing(ctx, entryID, debit); err != nil {
		// The stored entry may have flipped between the read and the
		// commit; a lost race is still a benign no-op.
		if errors.Is(err, store.ErrAlreadyInfringing) {
			return ErrAlreadyInfringing
		}
		if errors.Is(err, store.ErrEntryNotFound) {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
		}
		r.logger.Error("takedown commit failed",
			zap.String("entry_id", entryID),
			zap.String("claimant_id", claimantID),
			zap.Error(err))
		return newServiceError(opResolve, "commit_failed", err)
	}

	r.logger.Info("entry marked infringing",
		zap.String("entry_id", entryID),
		zap.String("uploader_id", entry.UploaderID),
		zap.String("claimant_id", claimantID))
	return nil
}
