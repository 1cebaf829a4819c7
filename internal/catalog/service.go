package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scholarstack/scholarstack/backend/internal/ledger"
	"go.uber.org/zap"
)

var (
	errMissingPublisher   = errors.New("publisher is required")
	errMissingIDProvider  = errors.New("id provider is required")
	errMissingTitle       = errors.New("entry title is required")
	errMissingFingerprint = errors.New("entry fingerprint is required")
	noOpLogger            = zap.NewNop()
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

const (
	opServiceNew = "catalog.service.new"
	opPublish    = "catalog.publish"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Publisher commits a finalized entry and its reputation credits as one
// atomic unit. Implementations must guarantee that either both the
// entry insert and every credit land, or nothing does.
type Publisher interface {
	PublishEntry(ctx context.Context, entry *Entry, credits []ledger.Credit) error
}

// IDProvider issues entry identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes publish-service dependencies.
type ServiceConfig struct {
	Publisher  Publisher
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service finalizes admitted uploads into catalog entries.
type Service struct {
	publisher  Publisher
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the publish service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Publisher == nil {
		return nil, newServiceError(opServiceNew, "missing_publisher", errMissingPublisher)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{publisher: cfg.Publisher, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Draft is the finalized payload emitted by the admission pipeline,
// ready for persistence plus ledger credit as one atomic unit.
type Draft struct {
	Title        string
	Subject      string
	Tags         []string
	UploaderID   string
	UploaderName string
	CoAuthorIDs  []string
	Fingerprint  string
	FileURL      string
	FileType     string
	Artifacts    Artifacts
}

// Publish assigns identity and serial code to the draft, then commits
// the entry together with the uploader's publish credit (and co-author
// bonuses) atomically.
func (s *Service) Publish(ctx context.Context, draft Draft) (*Entry, error) {
	uploaderID, err := NewUserID(draft.UploaderID)
	if err != nil {
		return nil, newServiceError(opPublish, "invalid_uploader", err)
	}
	if draft.Title == "" {
		return nil, newServiceError(opPublish, "missing_title", errMissingTitle)
	}
	if draft.Fingerprint == "" {
		return nil, newServiceError(opPublish, "missing_fingerprint", errMissingFingerprint)
	}

	entryID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPublish, "id_generation_failed", err)
		return nil, newServiceError(opPublish, "id_generation_failed", err)
	}
	serialCode, err := NewSerialCode()
	if err != nil {
		s.logError(opPublish, "serial_generation_failed", err)
		return nil, newServiceError(opPublish, "serial_generation_failed", err)
	}

	contributors := append([]string{uploaderID}, draft.CoAuthorIDs...)
	qualityScore := 0
	if draft.Artifacts.Quality != nil {
		qualityScore = draft.Artifacts.Quality.Score
	}

	entry := &Entry{
		EntryID:           entryID,
		SerialCode:        serialCode,
		Title:             draft.Title,
		Subject:           draft.Subject,
		TagsJSON:          marshalOrDefault(NormalizeTags(draft.Tags), "[]"),
		UploaderID:        uploaderID,
		UploaderName:      draft.UploaderName,
		ContributorsJSON:  marshalOrDefault(dedupe(contributors), "[]"),
		Fingerprint:       draft.Fingerprint,
		FileURL:           draft.FileURL,
		FileType:          draft.FileType,
		QualityScore:      qualityScore,
		AIJSON:            marshalOrDefault(draft.Artifacts, "{}"),
		Status:            StatusOriginal,
		UploadedAtSeconds: s.clock().UTC().Unix(),
	}

	credits := ledger.PublishCredits(uploaderID, dedupe(draft.CoAuthorIDs), qualityScore)
	if err := s.publisher.PublishEntry(ctx, entry, credits); err != nil {
		s.logError(opPublish, "commit_failed", err,
			zap.String("uploader_id", uploaderID),
			zap.String("fingerprint", draft.Fingerprint))
		return nil, newServiceError(opPublish, "commit_failed", err)
	}

	s.logger.Info("entry published",
		zap.String("entry_id", entry.EntryID),
		zap.String("serial_code", entry.SerialCode),
		zap.String("uploader_id", uploaderID),
		zap.Int("quality_score", qualityScore))
	return entry, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("catalog service error", attrs...)
}
